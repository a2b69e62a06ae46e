package cooldown

import "time"

// Map holds per-decision "not again before" deadlines keyed by decision
// identity (for example the totem spell name).
//
// Invariant: a key is only written by the decision it belongs to, right after
// that decision returned true.
type Map struct {
	until map[string]time.Time
	now   Clock
}

// NewMap returns an empty Map.
//
// Precondition: now must not be nil.
func NewMap(now Clock) *Map {
	if now == nil {
		panic("cooldown.NewMap: clock must not be nil")
	}
	return &Map{until: make(map[string]time.Time), now: now}
}

// Blocked reports whether key has an armed deadline that is still in the future.
func (m *Map) Blocked(key string) bool {
	until, ok := m.until[key]
	return ok && until.After(m.now())
}

// Arm blocks key for d from now, replacing any existing deadline.
//
// Postcondition: Blocked(key) is true until d has passed (for d > 0).
func (m *Map) Arm(key string, d time.Duration) time.Time {
	until := m.now().Add(d)
	m.until[key] = until
	return until
}

// Until returns the deadline armed for key, or false if none was ever armed.
func (m *Map) Until(key string) (time.Time, bool) {
	until, ok := m.until[key]
	return until, ok
}

// Clear drops the deadline for key. Clearing an unknown key is a no-op.
func (m *Map) Clear(key string) {
	delete(m.until, key)
}
