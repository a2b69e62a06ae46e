package driver

import (
	"errors"
	"sync"

	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Action is one executor call made during a pass.
type Action struct {
	Kind     string      `json:"kind"`
	Spell    string      `json:"spell,omitempty"`
	Target   int64       `json:"target,omitempty"`
	At       world.Point `json:"at"`
	Reason   string      `json:"reason,omitempty"`
	Flask    int         `json:"flask,omitempty"`
	Declined bool        `json:"declined,omitempty"`
}

// Recorder is a world.Executor that forwards to next and remembers every
// call until the next Drain.
type Recorder struct {
	next world.Executor

	mu      sync.Mutex
	actions []Action
}

// NewRecorder wraps next.
//
// Precondition: next must not be nil.
func NewRecorder(next world.Executor) *Recorder {
	if next == nil {
		panic("driver.NewRecorder: next must not be nil")
	}
	return &Recorder{next: next}
}

func (r *Recorder) record(a Action, err error) error {
	a.Declined = errors.Is(err, world.ErrDeclined)
	r.mu.Lock()
	r.actions = append(r.actions, a)
	r.mu.Unlock()
	return err
}

// Cast implements world.Executor.
func (r *Recorder) Cast(spell string, target int64) error {
	return r.record(Action{Kind: "cast", Spell: spell, Target: target}, r.next.Cast(spell, target))
}

// CastAt implements world.Executor.
func (r *Recorder) CastAt(spell string, at world.Point) error {
	return r.record(Action{Kind: "cast_at", Spell: spell, At: at}, r.next.CastAt(spell, at))
}

// MoveTo implements world.Executor.
func (r *Recorder) MoveTo(at world.Point, reason string) error {
	return r.record(Action{Kind: "move", At: at, Reason: reason}, r.next.MoveTo(at, reason))
}

// UseFlask implements world.Executor.
func (r *Recorder) UseFlask(f world.Flask) error {
	return r.record(Action{Kind: "use_flask", Flask: f.Slot}, r.next.UseFlask(f))
}

// Drain returns and forgets the calls recorded since the previous Drain.
func (r *Recorder) Drain() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.actions
	r.actions = nil
	return out
}
