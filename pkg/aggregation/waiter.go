package aggregation

import "sync"

// Waiter is a one-shot broadcast. Once notified it stays notified.
type Waiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	notified bool
}

// NewWaiter returns a waiter that has not been notified.
func NewWaiter() *Waiter {
	w := &Waiter{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Wait blocks until Notify has been called. It has no timeout.
func (w *Waiter) Wait() {
	w.mu.Lock()
	for !w.notified {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

// Notify wakes every current and future caller of Wait.
func (w *Waiter) Notify() {
	w.mu.Lock()
	w.notified = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// Notified reports whether Notify has been called.
func (w *Waiter) Notified() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notified
}

// PotentialWaiter holds a Waiter that is only allocated once somebody wants
// to wait. It is not safe for concurrent use; the owning node's lock guards it.
type PotentialWaiter struct {
	w *Waiter
}

// Get returns the current waiter, creating it if needed.
func (p *PotentialWaiter) Get() *Waiter {
	if p.w == nil {
		p.w = NewWaiter()
	}
	return p.w
}

// Notify notifies and drops the current waiter, if any. The next Get starts
// a fresh one.
func (p *PotentialWaiter) Notify() {
	if p.w == nil {
		return
	}
	p.w.Notify()
	p.w = nil
}

// Pending reports whether a waiter has been allocated and not yet notified.
func (p *PotentialWaiter) Pending() bool {
	return p.w != nil
}
