// Package clock abstracts wall time and one-shot timers so that debounce
// windows can be driven deterministically in tests.
package clock

import "time"

// Clock is the subset of the time package the sync engine depends on.
// Production code injects Real(); tests inject Fake().
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc waits for d, then calls f. The returned Timer cancels
	// the pending call with Stop. d must be positive.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a scheduled one-shot callback.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns true if the call stops
// the timer, false if it has already fired or been stopped.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}
