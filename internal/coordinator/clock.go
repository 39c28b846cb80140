package coordinator

import "time"

// Timer is the slice of *time.Timer the debouncer needs.
type Timer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

// Clock abstracts timer creation so the debounce state machine can be
// driven by a fake clock in tests.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// NewRealClock returns a Clock backed by the runtime timers.
func NewRealClock() Clock { return realClock{} }
