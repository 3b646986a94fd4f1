package aggregation

import "fmt"

// StartInProgress announces one contribution that is about to be folded
// into the node.
func (e *Engine[I, D, C]) StartInProgress(id I) {
	e.StartInProgressCount(id, 1)
}

// StartInProgressCount announces count contributions.
func (e *Engine[I, D, C]) StartInProgressCount(id I, count uint32) {
	if count == 0 {
		return
	}
	e.ctx.InProgressCounter(id).Add(count)
}

// FinishInProgress retires one contribution while the caller holds the
// node's guard g. The node's waiter is notified when the counter reaches
// zero.
func (e *Engine[I, D, C]) FinishInProgress(g NodeGuard[I, D, C], id I) {
	if e.decrement(id) == 0 {
		g.State().waiter.Notify()
	}
}

// FinishInProgressWithoutNode retires one contribution without holding the
// node. When the counter reaches zero the node is locked briefly to notify
// its waiter.
func (e *Engine[I, D, C]) FinishInProgressWithoutNode(id I) {
	if e.decrement(id) != 0 {
		return
	}
	g := e.ctx.Node(id)
	// Someone may have started new work since the decrement. Their finish
	// will notify instead.
	if e.ctx.InProgressCounter(id).Load() == 0 {
		g.State().waiter.Notify()
	}
	g.Unlock()
}

func (e *Engine[I, D, C]) decrement(id I) uint32 {
	next := e.ctx.InProgressCounter(id).Add(^uint32(0))
	if next == ^uint32(0) {
		panic(fmt.Sprintf("aggregation: in-progress counter underflow on %v", id))
	}
	return next
}

// InProgress returns the node's current in-progress count.
func (e *Engine[I, D, C]) InProgress(id I) uint32 {
	return e.ctx.InProgressCounter(id).Load()
}

// WaitQuiescent blocks until the node's in-progress counter is zero.
// There is no timeout; callers that need one wrap the call themselves.
func (e *Engine[I, D, C]) WaitQuiescent(id I) {
	g := e.ctx.Node(id)
	if e.ctx.InProgressCounter(id).Load() == 0 {
		g.Unlock()
		return
	}
	w := g.State().waiter.Get()
	g.Unlock()
	w.Wait()
}
