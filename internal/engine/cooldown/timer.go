// Package cooldown provides the timers that stop routine decisions from
// re-triggering before the world has had a chance to react to them.
//
// Nothing in this package is safe for concurrent use. A Routine owns its
// timers and the host serialises evaluation passes.
package cooldown

import "time"

// Clock returns the current time. Production code passes time.Now; tests
// pass a controllable fake.
type Clock func() time.Time

// Timer is a resettable cooldown.
//
// A zero-reset Timer is already elapsed, so a freshly created cooldown never
// blocks the first decision it guards.
type Timer struct {
	duration  time.Duration
	lastReset time.Time
	now       Clock
}

// NewTimer creates an elapsed Timer with the given duration.
//
// Precondition: duration >= 0; now must not be nil.
func NewTimer(duration time.Duration, now Clock) *Timer {
	if now == nil {
		panic("cooldown.NewTimer: clock must not be nil")
	}
	return &Timer{duration: duration, now: now}
}

// Duration returns the configured cooldown length.
func (t *Timer) Duration() time.Duration {
	return t.duration
}

// Reset re-arms the timer from now.
//
// Postcondition: Elapsed() is false until Duration() has passed, unless Duration() == 0.
func (t *Timer) Reset() {
	t.lastReset = t.now()
}

// Elapsed reports whether at least Duration() has passed since the last Reset.
func (t *Timer) Elapsed() bool {
	if t.lastReset.IsZero() {
		return true
	}
	return t.now().Sub(t.lastReset) >= t.duration
}

// Remaining returns the time left before Elapsed becomes true; 0 when elapsed.
func (t *Timer) Remaining() time.Duration {
	if t.Elapsed() {
		return 0
	}
	return t.duration - t.now().Sub(t.lastReset)
}
