package cooldown_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/totembot/internal/engine/cooldown"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTimer_NewTimerIsElapsed(t *testing.T) {
	clk := newFakeClock()
	tm := cooldown.NewTimer(500*time.Millisecond, clk.Now)
	assert.True(t, tm.Elapsed())
	assert.Equal(t, time.Duration(0), tm.Remaining())
}

func TestTimer_ResetBlocksUntilDuration(t *testing.T) {
	clk := newFakeClock()
	tm := cooldown.NewTimer(500*time.Millisecond, clk.Now)
	tm.Reset()
	assert.False(t, tm.Elapsed())
	assert.Equal(t, 500*time.Millisecond, tm.Remaining())

	clk.Advance(499 * time.Millisecond)
	assert.False(t, tm.Elapsed())
	assert.Equal(t, time.Millisecond, tm.Remaining())

	clk.Advance(time.Millisecond)
	assert.True(t, tm.Elapsed())
}

func TestTimer_NilClockPanics(t *testing.T) {
	assert.Panics(t, func() { cooldown.NewTimer(time.Second, nil) })
}

func TestProperty_Timer_ElapsedIffWaitAtLeastDuration(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := time.Duration(rapid.Int64Range(0, int64(10*time.Second)).Draw(rt, "duration"))
		w := time.Duration(rapid.Int64Range(0, int64(20*time.Second)).Draw(rt, "wait"))
		clk := newFakeClock()
		tm := cooldown.NewTimer(d, clk.Now)
		tm.Reset()
		clk.Advance(w)
		if got, want := tm.Elapsed(), w >= d; got != want {
			rt.Fatalf("Elapsed()=%v with duration=%s wait=%s, want %v", got, d, w, want)
		}
	})
}
