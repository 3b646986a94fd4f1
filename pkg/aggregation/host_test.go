package aggregation

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
)

// testData sums node values. owner is the id of the aggregator holding it.
type testData struct {
	owner int
	value int
}

type testNode struct {
	mu         sync.Mutex
	value      int
	children   []int
	state      Node[int, testData]
	inProgress atomic.Uint32
}

// testGraph is a minimal host: integer ids, integer values, sums as data.
type testGraph struct {
	mu    sync.RWMutex
	nodes map[int]*testNode
}

var _ Context[int, testData, int] = (*testGraph)(nil)

func newTestGraph() *testGraph {
	return &testGraph{nodes: make(map[int]*testNode)}
}

func (g *testGraph) add(id, value int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id] = &testNode{value: value}
}

func (g *testGraph) get(id int) *testNode {
	g.mu.RLock()
	n := g.nodes[id]
	g.mu.RUnlock()
	if n == nil {
		panic(fmt.Sprintf("unknown node %d", id))
	}
	return n
}

func (g *testGraph) ids() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]int, 0, len(g.nodes))
	for id := range g.nodes {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (g *testGraph) Node(id int) NodeGuard[int, testData, int] {
	n := g.get(id)
	n.mu.Lock()
	return &testGuard{id: id, n: n}
}

func (g *testGraph) InProgressCounter(id int) *atomic.Uint32 {
	return &g.get(id).inProgress
}

func (g *testGraph) ApplyChange(d *testData, c int) (int, bool) {
	d.value += c
	return c, c != 0
}

func (g *testGraph) DataToAddChange(d *testData) (int, bool) {
	return d.value, d.value != 0
}

func (g *testGraph) DataToRemoveChange(d *testData) (int, bool) {
	return -d.value, d.value != 0
}

type testGuard struct {
	id int
	n  *testNode
}

func (t *testGuard) State() *Node[int, testData] { return &t.n.state }
func (t *testGuard) Children() []int             { return slices.Clone(t.n.children) }
func (t *testGuard) AddChange() (int, bool)      { return t.n.value, t.n.value != 0 }
func (t *testGuard) RemoveChange() (int, bool)   { return -t.n.value, t.n.value != 0 }
func (t *testGuard) InitialData() testData       { return testData{owner: t.id, value: t.n.value} }
func (t *testGuard) Unlock()                     { t.n.mu.Unlock() }

// =============================================================================
// Recording hooks
// =============================================================================

type lostEvent struct{ upper, follower any }

type recordingHooks struct {
	mu       sync.Mutex
	promoted map[any]uint32
	raised   int
	lost     []lostEvent
	balanced int
}

func newRecordingHooks() *recordingHooks {
	return &recordingHooks{promoted: make(map[any]uint32)}
}

func (r *recordingHooks) OnPromote(id any, number uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promoted[id] = number
}

func (r *recordingHooks) OnNumberRaised(any, uint32, uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.raised++
}

func (r *recordingHooks) OnFollowerLost(upper, follower any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lost = append(r.lost, lostEvent{upper, follower})
}

func (r *recordingHooks) OnBalanceEdge(any, any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balanced++
}

func (r *recordingHooks) lostCount(upper, follower int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.lost {
		if e.upper == upper && e.follower == follower {
			n++
		}
	}
	return n
}

func (r *recordingHooks) counts() (promoted, raised, lost, balanced int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.promoted), r.raised, len(r.lost), r.balanced
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	t     *testing.T
	g     *testGraph
	e     *Engine[int, testData, int]
	hooks *recordingHooks
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	g := newTestGraph()
	hooks := newRecordingHooks()
	opts = append([]Option{WithHooks(hooks)}, opts...)
	return &harness{t: t, g: g, e: New[int, testData, int](g, opts...), hooks: hooks}
}

func (h *harness) add(id, value int) { h.g.add(id, value) }

func (h *harness) guard(id int) *testGuard {
	return h.g.Node(id).(*testGuard)
}

func (h *harness) connect(parent, child int) {
	g := h.guard(parent)
	g.n.children = append(g.n.children, child)
	h.e.HandleNewEdge(g, parent, child)
}

func (h *harness) disconnect(parent, child int) {
	g := h.guard(parent)
	i := slices.Index(g.n.children, child)
	if i < 0 {
		g.Unlock()
		h.t.Fatalf("disconnect(%d, %d): no such edge", parent, child)
	}
	g.n.children = slices.Delete(g.n.children, i, i+1)
	h.e.HandleLostEdge(g, parent, child)
}

func (h *harness) setValue(id, value int) {
	g := h.guard(id)
	delta := value - g.n.value
	g.n.value = value
	if delta == 0 {
		g.Unlock()
		return
	}
	h.e.HandleChange(g, id, delta)
}

func (h *harness) rootValue(id int) int {
	dg := h.e.AggregationData(id)
	defer dg.Unlock()
	return dg.Data().value
}

func (h *harness) number(id int) uint32 {
	return h.e.Inspect(id).Number
}

func (h *harness) check() {
	h.t.Helper()
	if err := h.e.CheckInvariants(h.g.ids()); err != nil {
		h.t.Fatalf("CheckInvariants() = %v", err)
	}
}
