// Package clock abstracts the system clock behind a small interface so the
// time-driven polling loops can be tested deterministically.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock provides the two primitives the polling loops need: reading the
// current instant and waking up after a delay.
type Clock interface {
	Now() time.Time
	// After returns a channel that delivers one value once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// System is the production Clock backed by the time package.
type System struct{}

// Now returns the current wall-clock time.
func (System) Now() time.Time { return time.Now() }

// After waits for d to elapse on the system clock.
func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Fake is a manually advanced Clock for tests. Timers fire only when Advance
// moves the fake instant past their deadline, so tests control exactly how
// much time a loop observes. Use NewFake; the zero value is not usable.
type Fake struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []waiter
}

type waiter struct {
	at time.Time
	ch chan time.Time
}

// NewFake returns a Fake pinned to a fixed arbitrary instant.
func NewFake() *Fake {
	f := &Fake{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Now returns the fake instant.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After registers a timer that fires when the fake instant reaches now+d.
// A non-positive d fires immediately.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan time.Time, 1)
	at := f.now.Add(d)
	if d <= 0 {
		ch <- at
		return ch
	}
	f.waiters = append(f.waiters, waiter{at: at, ch: ch})
	f.cond.Broadcast()
	return ch
}

// Advance moves the fake instant forward by d and fires every timer whose
// deadline has been reached, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due []waiter
	rest := f.waiters[:0]
	for _, w := range f.waiters {
		if w.at.After(now) {
			rest = append(rest, w)
		} else {
			due = append(due, w)
		}
	}
	f.waiters = rest
	f.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, w := range due {
		w.ch <- now
	}
}

// BlockUntil returns once at least n timers are pending on the fake clock.
// Tests call it to synchronize with a loop goroutine before advancing time.
func (f *Fake) BlockUntil(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.waiters) < n {
		f.cond.Wait()
	}
}
