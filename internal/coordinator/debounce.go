package coordinator

import (
	"sync"
	"time"
)

// Debouncer is a single-slot pending-timer state machine: idle or
// pending(deadline). Every Trigger within the window cancels and
// reschedules the deadline; the callback fires once the window elapses
// with no new triggers.
type Debouncer struct {
	clock  Clock
	window time.Duration
	fn     func()

	mu    sync.Mutex
	timer Timer
}

func NewDebouncer(clock Clock, window time.Duration, fn func()) *Debouncer {
	return &Debouncer{clock: clock, window: window, fn: fn}
}

// Trigger arms the timer, or pushes the deadline out if already armed.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Reset(d.window)
		return
	}
	d.timer = d.clock.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Pending reports whether a fire is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

// Stop cancels any scheduled fire.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
