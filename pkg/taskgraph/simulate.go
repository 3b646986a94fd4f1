package taskgraph

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	errs "github.com/vercel/turborepo-sub010/pkg/errors"
	"github.com/vercel/turborepo-sub010/pkg/observability"
)

// DefaultWorkers is the worker count used when Simulator.Workers is zero.
const DefaultWorkers = 4

// Simulator drives every unfinished task of a graph to Done, children
// before parents, from a pool of concurrent workers. Along the way it
// randomly cuts and restores edges of completed tasks so that the engine
// sees structural churn while values are changing.
type Simulator struct {
	Graph   *Graph
	Workers int
	Seed    uint64
	// Rewire is the probability that completing a task also disconnects
	// and reconnects one of its edges.
	Rewire float64
	// Check runs the engine invariant checker after the run.
	Check  bool
	Logger *log.Logger
	Hooks  observability.SimulationHooks
}

// Result describes a finished simulation.
type Result struct {
	RunID     string
	Completed int
	Rewired   int
	Duration  time.Duration
	Roots     []Summary
	Workspace Totals
	// Scheduled lists the dirty tasks that reached a root during the run
	// or before it.
	Scheduled []TaskID
}

// Run executes the simulation. It fails if any root still reports
// unfinished work afterwards.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	workers := s.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := s.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	hooks := s.Hooks
	if hooks == nil {
		hooks = observability.Simulation()
	}

	runID := uuid.NewString()
	logger = logger.With("run", runID[:8])
	p := newPlan(s.Graph.Snapshot())
	hooks.OnRunStart(ctx, runID, p.left, workers)
	logger.Info("simulation started", "tasks", p.left, "workers", workers)

	start := time.Now()
	var completed, rewired atomic.Int64
	eg, egCtx := errgroup.WithContext(ctx)
	for w := range workers {
		rng := rand.New(rand.NewPCG(s.Seed, uint64(w)))
		eg.Go(func() error {
			for {
				select {
				case <-egCtx.Done():
					return egCtx.Err()
				case id, ok := <-p.ready:
					if !ok {
						return nil
					}
					began := time.Now()
					did, err := s.complete(id, p.children[id], rng)
					if err != nil {
						return err
					}
					if did {
						rewired.Add(1)
					}
					completed.Add(1)
					hooks.OnTaskComplete(egCtx, runID, string(id), time.Since(began))
					logger.Debug("task done", "task", id, "worker", w)
					p.finish(id)
				}
			}
		})
	}

	res := &Result{RunID: runID}
	err := eg.Wait()
	if err == nil {
		err = s.verify(res)
	}
	res.Completed = int(completed.Load())
	res.Rewired = int(rewired.Load())
	res.Duration = time.Since(start)
	hooks.OnRunComplete(ctx, runID, res.Duration, err)
	if err != nil {
		logger.Error("simulation failed", "err", err)
		return nil, err
	}
	logger.Info("simulation finished", "completed", res.Completed, "rewired", res.Rewired, "duration", res.Duration)
	return res, nil
}

func (s *Simulator) complete(id TaskID, children []TaskID, rng *rand.Rand) (bool, error) {
	if err := s.Graph.SetState(id, InProgress); err != nil {
		return false, err
	}
	if err := s.Graph.SetState(id, Done); err != nil {
		return false, err
	}
	if len(children) == 0 || rng.Float64() >= s.Rewire {
		return false, nil
	}
	c := children[rng.IntN(len(children))]
	if err := s.Graph.Disconnect(id, c); err != nil {
		return false, err
	}
	if err := s.Graph.Connect(id, c); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Simulator) verify(res *Result) error {
	for _, id := range s.Graph.Roots() {
		sum, err := s.Graph.Summary(id)
		if err != nil {
			return err
		}
		if !sum.Done() {
			return errs.New(errs.ErrCodeInvalidState, "root %q still has %d unfinished tasks", id, sum.Unfinished)
		}
		res.Roots = append(res.Roots, sum)
	}
	if s.Check {
		if err := s.Graph.Check(); err != nil {
			return err
		}
	}
	res.Workspace = s.Graph.Workspace()
	res.Scheduled = s.Graph.TakeScheduled()
	return nil
}

// plan hands out tasks whose children are all done.
type plan struct {
	mu       sync.Mutex
	waiting  map[TaskID]int
	parents  map[TaskID][]TaskID
	children map[TaskID][]TaskID
	ready    chan TaskID
	left     int
}

func newPlan(snap *Snapshot) *plan {
	p := &plan{
		waiting:  make(map[TaskID]int),
		parents:  make(map[TaskID][]TaskID),
		children: make(map[TaskID][]TaskID),
	}
	done := make(map[TaskID]bool, len(snap.Tasks))
	for _, t := range snap.Tasks {
		done[t.ID] = t.State == Done
		p.children[t.ID] = t.Children
		for _, c := range t.Children {
			p.parents[c] = append(p.parents[c], t.ID)
		}
	}

	var pending []TaskID
	for _, t := range snap.Tasks {
		if done[t.ID] {
			continue
		}
		pending = append(pending, t.ID)
		n := 0
		for _, c := range t.Children {
			if !done[c] {
				n++
			}
		}
		p.waiting[t.ID] = n
	}

	p.left = len(pending)
	p.ready = make(chan TaskID, len(pending))
	for _, id := range pending {
		if p.waiting[id] == 0 {
			p.ready <- id
		}
	}
	if p.left == 0 {
		close(p.ready)
	}
	return p
}

func (p *plan) finish(id TaskID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, parent := range p.parents[id] {
		n, ok := p.waiting[parent]
		if !ok {
			continue
		}
		p.waiting[parent] = n - 1
		if n == 1 {
			p.ready <- parent
		}
	}
	p.left--
	if p.left == 0 {
		close(p.ready)
	}
}
