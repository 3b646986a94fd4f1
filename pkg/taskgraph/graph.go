package taskgraph

import (
	"io"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/vercel/turborepo-sub010/pkg/aggregation"
	"github.com/vercel/turborepo-sub010/pkg/aggregation/tree"
	errs "github.com/vercel/turborepo-sub010/pkg/errors"
	"github.com/vercel/turborepo-sub010/pkg/observability"
)

// Graph is a concurrent task graph with live aggregation. All methods are
// safe for concurrent use.
type Graph struct {
	mu    sync.RWMutex
	tasks map[TaskID]*task

	// structMu serializes Connect so a cycle check and the edge it admits
	// are one step.
	structMu sync.Mutex

	engine    *aggregation.Engine[TaskID, Aggregated, TaskChange]
	workspace *tree.Tree[TaskID, Totals, Totals]
	logger    *log.Logger

	schedMu   sync.Mutex
	scheduled map[TaskID]struct{}
}

var _ aggregation.Context[TaskID, Aggregated, TaskChange] = (*Graph)(nil)

// Option configures a [Graph].
type Option func(*options)

type options struct {
	logger         *log.Logger
	engine         []aggregation.Option
	bottomCapacity int
}

// WithLogger sets the logger for the graph and its engine.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
		o.engine = append(o.engine, aggregation.WithLogger(l))
	}
}

// WithMaxUppers is passed through to [aggregation.WithMaxUppers].
func WithMaxUppers(n int) Option {
	return func(o *options) { o.engine = append(o.engine, aggregation.WithMaxUppers(n)) }
}

// WithHooks is passed through to [aggregation.WithHooks].
func WithHooks(h observability.AggregationHooks) Option {
	return func(o *options) { o.engine = append(o.engine, aggregation.WithHooks(h)) }
}

// WithBottomCapacity sets the cluster size of the workspace tree.
func WithBottomCapacity(n int) Option {
	return func(o *options) { o.bottomCapacity = n }
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	o := options{bottomCapacity: tree.DefaultBottomCapacity}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(io.Discard)
	}
	g := &Graph{
		tasks:     make(map[TaskID]*task),
		logger:    o.logger,
		scheduled: make(map[TaskID]struct{}),
		workspace: tree.New[TaskID, Totals, Totals](totalsAggregator{}, tree.WithBottomCapacity(o.bottomCapacity)),
	}
	g.engine = aggregation.New[TaskID, Aggregated, TaskChange](g, o.engine...)
	return g
}

// =============================================================================
// Engine context
// =============================================================================

func (g *Graph) lookup(id TaskID) (*task, error) {
	g.mu.RLock()
	t := g.tasks[id]
	g.mu.RUnlock()
	if t == nil {
		return nil, errs.New(errs.ErrCodeTaskNotFound, "task %q not found", id)
	}
	return t, nil
}

// Node locks the task. Unknown ids panic; the engine only asks for ids it
// got from the graph.
func (g *Graph) Node(id TaskID) aggregation.NodeGuard[TaskID, Aggregated, TaskChange] {
	t, err := g.lookup(id)
	if err != nil {
		panic(err)
	}
	t.mu.Lock()
	return &taskGuard{t: t}
}

func (g *Graph) InProgressCounter(id TaskID) *atomic.Uint32 {
	t, err := g.lookup(id)
	if err != nil {
		panic(err)
	}
	return &t.inProgress
}

// ApplyChange folds c into d. On a root it also queues tasks that became
// dirty and forwards the totals to the workspace tree.
func (g *Graph) ApplyChange(d *Aggregated, c TaskChange) (TaskChange, bool) {
	raised := d.apply(c)
	if d.RootType != RootNone {
		g.schedule(raised...)
		if delta := c.totals(); !delta.IsZero() {
			g.workspace.Update(d.owner, delta)
		}
	}
	return c, !c.IsEmpty()
}

func (g *Graph) DataToAddChange(d *Aggregated) (TaskChange, bool) {
	c := d.change(1)
	return c, !c.IsEmpty()
}

func (g *Graph) DataToRemoveChange(d *Aggregated) (TaskChange, bool) {
	c := d.change(-1)
	return c, !c.IsEmpty()
}

func (g *Graph) schedule(ids ...TaskID) {
	if len(ids) == 0 {
		return
	}
	g.schedMu.Lock()
	defer g.schedMu.Unlock()
	for _, id := range ids {
		g.scheduled[id] = struct{}{}
	}
}

// =============================================================================
// Structure
// =============================================================================

// AddTask adds a task without edges.
func (g *Graph) AddTask(id TaskID, state State) error {
	if err := errs.ValidateTaskID(string(id)); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tasks[id]; ok {
		return errs.New(errs.ErrCodeDuplicateTask, "task %q already exists", id)
	}
	g.tasks[id] = &task{id: id, state: state}
	return nil
}

// Connect adds the edge parent -> child. Edges that would close a cycle are
// rejected. Connecting the same pair twice adds a second edge.
func (g *Graph) Connect(parent, child TaskID) error {
	p, err := g.lookup(parent)
	if err != nil {
		return err
	}
	if _, err := g.lookup(child); err != nil {
		return err
	}

	g.structMu.Lock()
	defer g.structMu.Unlock()
	if parent == child || g.reaches(child, parent) {
		return errs.New(errs.ErrCodeCycle, "edge %s -> %s would create a cycle", parent, child)
	}

	p.mu.Lock()
	p.children = append(p.children, child)
	g.engine.HandleNewEdge(&taskGuard{t: p}, parent, child)
	g.logger.Debug("connected", "parent", parent, "child", child)
	return nil
}

// Disconnect removes one parent -> child edge.
func (g *Graph) Disconnect(parent, child TaskID) error {
	p, err := g.lookup(parent)
	if err != nil {
		return err
	}
	p.mu.Lock()
	i := slices.Index(p.children, child)
	if i < 0 {
		p.mu.Unlock()
		return errs.New(errs.ErrCodeNotFound, "no edge %s -> %s", parent, child)
	}
	p.children = slices.Delete(p.children, i, i+1)
	g.engine.HandleLostEdge(&taskGuard{t: p}, parent, child)
	g.logger.Debug("disconnected", "parent", parent, "child", child)
	return nil
}

// reaches reports whether to is reachable from from. Tasks are locked one
// at a time; callers hold structMu so no edge can be added meanwhile.
func (g *Graph) reaches(from, to TaskID) bool {
	seen := map[TaskID]bool{from: true}
	stack := []TaskID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == to {
			return true
		}
		t, err := g.lookup(id)
		if err != nil {
			continue
		}
		t.mu.Lock()
		children := slices.Clone(t.children)
		t.mu.Unlock()
		for _, c := range children {
			if !seen[c] {
				seen[c] = true
				stack = append(stack, c)
			}
		}
	}
	return false
}

// =============================================================================
// Contributions
// =============================================================================

// SetState changes the state of a task.
func (g *Graph) SetState(id TaskID, s State) error {
	t, err := g.lookup(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.state == s {
		t.mu.Unlock()
		return nil
	}
	delta := t.contribution(-1)
	t.state = s
	delta = delta.Merge(t.contribution(1))
	if delta.IsEmpty() {
		t.mu.Unlock()
		return nil
	}
	g.engine.HandleChange(&taskGuard{t: t}, id, delta)
	return nil
}

// State returns the state of a task.
func (g *Graph) State(id TaskID) (State, error) {
	t, err := g.lookup(id)
	if err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state, nil
}

// Emit records that id emitted value under trait.
func (g *Graph) Emit(id TaskID, trait Trait, value string) error {
	t, err := g.lookup(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.emit(trait, value, 1)
	change := TaskChange{Collectibles: []CollectibleDelta{{Trait: trait, Value: value, Count: 1}}}
	g.engine.HandleChange(&taskGuard{t: t}, id, change)
	return nil
}

// Unemit withdraws one emission of value under trait.
func (g *Graph) Unemit(id TaskID, trait Trait, value string) error {
	t, err := g.lookup(id)
	if err != nil {
		return err
	}
	t.mu.Lock()
	if t.collectibles[trait][value] <= 0 {
		t.mu.Unlock()
		return errs.New(errs.ErrCodeNotFound, "task %q has not emitted %s %q", id, trait, value)
	}
	t.emit(trait, value, -1)
	change := TaskChange{Collectibles: []CollectibleDelta{{Trait: trait, Value: value, Count: -1}}}
	g.engine.HandleChange(&taskGuard{t: t}, id, change)
	return nil
}

// =============================================================================
// Roots
// =============================================================================

// MarkRoot promotes id to a root aggregator and gives it a root type. Dirty
// tasks already covered by the root are queued for scheduling.
func (g *Graph) MarkRoot(id TaskID, rt RootType) error {
	if rt == RootNone {
		return errs.New(errs.ErrCodeInvalidInput, "root type is required")
	}
	if _, err := g.lookup(id); err != nil {
		return err
	}
	dg := g.engine.AggregationData(id)
	defer dg.Unlock()
	d := dg.Data()
	was := d.RootType
	d.RootType = rt
	if was == RootNone {
		g.workspace.Insert(id, d.totals())
		g.schedule(d.dirty()...)
	}
	g.logger.Debug("marked root", "id", id, "type", rt)
	return nil
}

// UnmarkRoot clears the root type of id. The task stays an aggregator.
func (g *Graph) UnmarkRoot(id TaskID) error {
	if _, err := g.lookup(id); err != nil {
		return err
	}
	guard := g.Node(id)
	defer guard.Unlock()
	n := guard.State()
	if !n.IsRoot() || n.Data().RootType == RootNone {
		return errs.New(errs.ErrCodeInvalidState, "task %q is not a root", id)
	}
	n.Data().RootType = RootNone
	g.workspace.Remove(id)
	return nil
}

// Roots returns the tasks that currently have a root type, sorted.
func (g *Graph) Roots() []TaskID {
	var out []TaskID
	for _, id := range g.IDs() {
		guard := g.Node(id)
		n := guard.State()
		if n.IsRoot() && n.Data().RootType != RootNone {
			out = append(out, id)
		}
		guard.Unlock()
	}
	return out
}

// Summary is a read-out of a root aggregate.
type Summary struct {
	ID           TaskID             `json:"id"`
	RootType     RootType           `json:"root_type,omitempty"`
	Unfinished   int                `json:"unfinished"`
	Dirty        []TaskID           `json:"dirty,omitempty"`
	Collectibles map[Trait][]string `json:"collectibles,omitempty"`
}

// Done reports whether nothing under the root is unfinished.
func (s Summary) Done() bool { return s.Unfinished <= 0 }

// Summary waits for the contributions already routed to id, makes it a
// root aggregator if it is not one yet and reads its aggregate. A change
// still travelling up from further below may land after the read.
func (g *Graph) Summary(id TaskID) (Summary, error) {
	if _, err := g.lookup(id); err != nil {
		return Summary{}, err
	}
	g.engine.WaitQuiescent(id)
	dg := g.engine.AggregationData(id)
	defer dg.Unlock()
	d := dg.Data()
	return Summary{
		ID:           id,
		RootType:     d.RootType,
		Unfinished:   d.Unfinished,
		Dirty:        d.dirty(),
		Collectibles: d.collected(),
	}, nil
}

// IsActive reports whether any root with a root type covers id.
func (g *Graph) IsActive(id TaskID) (bool, error) {
	if _, err := g.lookup(id); err != nil {
		return false, err
	}
	active := false
	g.engine.QueryRootInfo(id, aggregation.RootQueryFunc[Aggregated](func(d *Aggregated) aggregation.ControlFlow {
		if d.RootType != RootNone {
			active = true
			return aggregation.Break
		}
		return aggregation.Continue
	}))
	return active, nil
}

// TakeScheduled returns, sorted, the dirty tasks that reached a root since
// the last call and forgets them.
func (g *Graph) TakeScheduled() []TaskID {
	g.schedMu.Lock()
	defer g.schedMu.Unlock()
	out := make([]TaskID, 0, len(g.scheduled))
	for id := range g.scheduled {
		out = append(out, id)
	}
	clear(g.scheduled)
	slices.Sort(out)
	return out
}

// Workspace returns the totals over every root.
func (g *Graph) Workspace() Totals {
	var t Totals
	g.workspace.View(func(d *Totals) { t = *d })
	return t
}

// =============================================================================
// Introspection
// =============================================================================

// IDs returns all task ids, sorted.
func (g *Graph) IDs() []TaskID {
	g.mu.RLock()
	out := make([]TaskID, 0, len(g.tasks))
	for id := range g.tasks {
		out = append(out, id)
	}
	g.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Check verifies the engine invariants over every task. It is only
// meaningful while no operation is running.
func (g *Graph) Check() error {
	return g.engine.CheckInvariants(g.IDs())
}
