package aggregation

import "fmt"

// Prepared is the second half of a two-phase update. It is produced while a
// node guard is held and must be applied exactly once after that guard has
// been released. Every pending step holds one unit of its target's
// in-progress counter, so dropping a Prepared without applying it leaves
// the target permanently busy.
//
// The zero value applies nothing.
type Prepared[I comparable, D, C any] struct {
	r *run[I, D, C]
}

// Apply runs the prepared steps and everything they cause, including
// rebalancing, to completion.
func (p Prepared[I, D, C]) Apply() {
	if p.r == nil {
		return
	}
	p.r.drain()
}

// Empty reports whether applying p would do nothing.
func (p Prepared[I, D, C]) Empty() bool {
	return p.r == nil || (p.r.pending() == 0 && p.r.queue.Len() == 0)
}

// step is one unit of deferred work addressed to a node. It is processed
// without any node lock held and locks at most one node at a time.
type step[I comparable, D, C any] interface {
	target() I
	apply(r *run[I, D, C])
}

// run owns the worklist and balance queue of one top-level operation.
type run[I comparable, D, C any] struct {
	e     *Engine[I, D, C]
	steps []step[I, D, C]
	head  int
	later []step[I, D, C]
	queue *BalanceQueue[I]
}

func (e *Engine[I, D, C]) newRun() *run[I, D, C] {
	return &run[I, D, C]{e: e, queue: NewBalanceQueue[I]()}
}

func (r *run[I, D, C]) prepared() Prepared[I, D, C] {
	if r.pending() == 0 && r.queue.Len() == 0 {
		return Prepared[I, D, C]{}
	}
	return Prepared[I, D, C]{r: r}
}

func (r *run[I, D, C]) pending() int { return len(r.steps) - r.head + len(r.later) }

// push starts the target's in-progress counter and queues s. It is safe to
// call while holding any node guard.
func (r *run[I, D, C]) push(s step[I, D, C]) {
	r.e.StartInProgress(s.target())
	r.steps = append(r.steps, s)
}

// pushLater is push for steps that must only run once everything queued
// so far, and everything that causes, is done.
func (r *run[I, D, C]) pushLater(s step[I, D, C]) {
	r.e.StartInProgress(s.target())
	r.later = append(r.later, s)
}

func (r *run[I, D, C]) drainSteps() {
	for {
		for r.head < len(r.steps) {
			s := r.steps[r.head]
			r.steps[r.head] = nil
			r.head++
			s.apply(r)
		}
		r.steps = r.steps[:0]
		r.head = 0
		if len(r.later) == 0 {
			return
		}
		r.steps, r.later = r.later, r.steps
	}
}

// drain processes steps and balance work until neither produces more.
func (r *run[I, D, C]) drain() {
	for {
		r.drainSteps()
		if r.queue.Len() == 0 {
			return
		}
		r.queue.Process(r)
	}
}

// lostFollower records that follower no longer counts towards upper.
func (r *run[I, D, C]) lostFollower(upper, follower I) {
	r.e.observe().OnFollowerLost(upper, follower)
	r.push(&notifyLostFollower[I, D, C]{upper: upper, follower: follower})
}

// =============================================================================
// Steps
// =============================================================================

// addFollower raises the follower count on an aggregator.
type addFollower[I comparable, D, C any] struct {
	upper, follower I
	count           int
}

func (s *addFollower[I, D, C]) target() I { return s.upper }

func (s *addFollower[I, D, C]) apply(r *run[I, D, C]) {
	g := r.e.ctx.Node(s.upper)
	n := mustAggregate(g, s.upper)
	if n.agg.followers.Add(s.follower, s.count) {
		r.push(&notifyNewFollower[I, D, C]{upper: s.upper, follower: s.follower, upperNumber: n.agg.number})
	}
	r.e.FinishInProgress(g, s.upper)
	g.Unlock()
}

// removeFollower lowers the follower count on an aggregator.
type removeFollower[I comparable, D, C any] struct {
	upper, follower I
	count           int
}

func (s *removeFollower[I, D, C]) target() I { return s.upper }

func (s *removeFollower[I, D, C]) apply(r *run[I, D, C]) {
	g := r.e.ctx.Node(s.upper)
	n := mustAggregate(g, s.upper)
	if n.agg.followers.Remove(s.follower, s.count) == Removed {
		r.lostFollower(s.upper, s.follower)
	}
	r.e.FinishInProgress(g, s.upper)
	g.Unlock()
}

// notifyNewFollower links a new follower to its upper and folds the
// follower's contribution into the upper.
type notifyNewFollower[I comparable, D, C any] struct {
	upper, follower I
	upperNumber     uint32
}

func (s *notifyNewFollower[I, D, C]) target() I { return s.upper }

func (s *notifyNewFollower[I, D, C]) apply(r *run[I, D, C]) {
	defer r.e.FinishInProgressWithoutNode(s.upper)

	g := r.e.ctx.Node(s.follower)
	n := g.State()
	if n.agg == nil && r.e.maxUppers > 0 && !n.uppers.Contains(s.upper) && n.uppers.Len() >= r.e.maxUppers {
		r.promoteLocked(g, s.follower, 1)
	}
	if !n.uppers.Add(s.upper, 1) {
		// A removal got here first; the pair cancels out.
		g.Unlock()
		return
	}
	if n.agg == nil {
		change, ok := g.AddChange()
		children := g.Children()
		g.Unlock()
		if ok {
			r.push(&applyChange[I, D, C]{node: s.upper, change: change})
		}
		for _, c := range children {
			r.push(&addFollower[I, D, C]{upper: s.upper, follower: c, count: 1})
		}
		return
	}
	change, ok := r.e.ctx.DataToAddChange(&n.agg.data)
	number := n.agg.number
	g.Unlock()
	if ok {
		r.push(&applyChange[I, D, C]{node: s.upper, change: change})
	}
	if number != RootNumber && s.upperNumber != RootNumber && number >= s.upperNumber {
		r.queue.Balance(s.upper, s.upperNumber, s.follower, number)
	}
}

// notifyLostFollower unlinks a follower from its upper and subtracts the
// follower's contribution from the upper.
type notifyLostFollower[I comparable, D, C any] struct {
	upper, follower I
}

func (s *notifyLostFollower[I, D, C]) target() I { return s.upper }

func (s *notifyLostFollower[I, D, C]) apply(r *run[I, D, C]) {
	defer r.e.FinishInProgressWithoutNode(s.upper)

	g := r.e.ctx.Node(s.follower)
	n := g.State()
	if n.uppers.Remove(s.upper, 1) != Removed {
		// The matching add has not arrived yet.
		g.Unlock()
		return
	}
	if n.agg == nil {
		change, ok := g.RemoveChange()
		children := g.Children()
		g.Unlock()
		if ok {
			r.push(&applyChange[I, D, C]{node: s.upper, change: change})
		}
		for _, c := range children {
			r.push(&removeFollower[I, D, C]{upper: s.upper, follower: c, count: 1})
		}
		return
	}
	change, ok := r.e.ctx.DataToRemoveChange(&n.agg.data)
	g.Unlock()
	if ok {
		r.push(&applyChange[I, D, C]{node: s.upper, change: change})
	}
}

// applyChange folds a change into an aggregator and forwards the resulting
// change to each of its uppers.
type applyChange[I comparable, D, C any] struct {
	node   I
	change C
}

func (s *applyChange[I, D, C]) target() I { return s.node }

func (s *applyChange[I, D, C]) apply(r *run[I, D, C]) {
	g := r.e.ctx.Node(s.node)
	n := mustAggregate(g, s.node)
	if next, ok := r.e.ctx.ApplyChange(&n.agg.data, s.change); ok {
		r.forward(n, next)
	}
	r.e.FinishInProgress(g, s.node)
	g.Unlock()
}

// forward queues change for every upper of n. The caller holds n's guard.
func (r *run[I, D, C]) forward(n *Node[I, D], change C) {
	for _, u := range n.uppers.Items() {
		r.push(&applyChange[I, D, C]{node: u, change: change})
	}
}

func mustAggregate[I comparable, D, C any](g NodeGuard[I, D, C], id I) *Node[I, D] {
	n := g.State()
	if n.agg == nil {
		panic(fmt.Sprintf("aggregation: %v is a leaf but was used as an aggregator", id))
	}
	return n
}
