package scheduler

import (
	"sync"
	"time"
)

// Debouncer collapses bursts of triggers into one call of Fn, made Wait after
// the last trigger.
type Debouncer struct {
	Clock Clock
	Wait  time.Duration
	Fn    func()

	mu      sync.Mutex
	timer   Timer
	armed   uint64 // generation of timer
	stopped bool
}

func NewDebouncer(clock Clock, wait time.Duration, fn func()) *Debouncer {
	if clock == nil {
		clock = RealClock{}
	}
	return &Debouncer{Clock: clock, Wait: wait, Fn: fn}
}

// Trigger (re)arms the timer. Triggers after Stop are ignored.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.armed++
	gen := d.armed
	d.timer = d.Clock.AfterFunc(d.Wait, func() { d.fire(gen) })
}

// Pending reports whether a call is armed.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop disarms the timer and rejects further triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// fire runs Fn for the timer of generation gen. A timer that was replaced
// before its callback got the lock does nothing.
func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if d.stopped || gen != d.armed {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()

	d.Fn()
}
