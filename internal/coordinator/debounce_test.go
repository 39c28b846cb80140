package coordinator

import (
	"sync"
	"testing"
	"time"
)

// fakeTimer records resets and stops instead of scheduling anything.
type fakeTimer struct {
	clock *fakeClock
	fn    func()

	resets  int
	stopped bool
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.resets++
	return true
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

// fakeClock hands out fakeTimers and fires them on demand.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, fn: f}
	c.timers = append(c.timers, t)
	return t
}

// advance fires every live timer, simulating the window elapsing.
func (c *fakeClock) advance() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, t := range timers {
		if !t.stopped {
			t.fn()
		}
	}
}

func TestDebouncer_CoalescesTriggers(t *testing.T) {
	clock := &fakeClock{}
	fired := 0
	d := NewDebouncer(clock, 100*time.Millisecond, func() { fired++ })

	for i := 0; i < 5; i++ {
		d.Trigger()
	}

	if len(clock.timers) != 1 {
		t.Fatalf("scheduled %d timers, want 1", len(clock.timers))
	}
	if resets := clock.timers[0].resets; resets != 4 {
		t.Errorf("timer resets = %d, want 4 (one per repeat trigger)", resets)
	}
	if !d.Pending() {
		t.Error("Pending() = false before the window elapsed")
	}

	clock.advance()
	if fired != 1 {
		t.Errorf("fired %d times, want exactly 1", fired)
	}
	if d.Pending() {
		t.Error("Pending() = true after fire")
	}
}

func TestDebouncer_RearmsAfterFire(t *testing.T) {
	clock := &fakeClock{}
	fired := 0
	d := NewDebouncer(clock, time.Second, func() { fired++ })

	d.Trigger()
	clock.advance()
	d.Trigger()
	clock.advance()

	if fired != 2 {
		t.Errorf("fired %d times across two windows, want 2", fired)
	}
}

func TestDebouncer_Stop(t *testing.T) {
	clock := &fakeClock{}
	fired := 0
	d := NewDebouncer(clock, time.Second, func() { fired++ })

	d.Trigger()
	d.Stop()
	clock.advance()

	if fired != 0 {
		t.Errorf("fired %d times after Stop, want 0", fired)
	}
	if d.Pending() {
		t.Error("Pending() = true after Stop")
	}
}
