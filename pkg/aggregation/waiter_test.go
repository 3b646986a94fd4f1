package aggregation

import (
	"sync"
	"testing"
	"time"
)

func TestWaiterBroadcast(t *testing.T) {
	w := NewWaiter()
	if w.Notified() {
		t.Fatal("new waiter is already notified")
	}

	const waiters = 5
	var wg sync.WaitGroup
	done := make(chan struct{}, waiters)
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Wait()
			done <- struct{}{}
		}()
	}

	select {
	case <-done:
		t.Fatal("Wait returned before Notify")
	case <-time.After(20 * time.Millisecond):
	}

	w.Notify()
	wg.Wait()
	if got := len(done); got != waiters {
		t.Errorf("woken waiters = %d, want %d", got, waiters)
	}

	// Late callers return immediately.
	w.Wait()
	if !w.Notified() {
		t.Error("Notified() = false after Notify")
	}
}

func TestPotentialWaiter(t *testing.T) {
	var p PotentialWaiter
	if p.Pending() {
		t.Fatal("zero PotentialWaiter is pending")
	}
	p.Notify()

	w := p.Get()
	if p.Get() != w {
		t.Error("Get() allocated a second waiter")
	}
	if !p.Pending() {
		t.Error("Pending() = false after Get")
	}

	p.Notify()
	if !w.Notified() {
		t.Error("waiter not notified")
	}
	if p.Pending() {
		t.Error("Pending() = true after Notify")
	}
	if next := p.Get(); next == w || next.Notified() {
		t.Error("Get() after Notify returned the old waiter")
	}
}
