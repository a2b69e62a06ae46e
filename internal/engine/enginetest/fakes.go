// Package enginetest provides in-memory collaborators for engine tests.
package enginetest

import (
	"sync"
	"time"

	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a Clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Sight answers LOS from explicit blocked sets; everything else is visible.
type Sight struct {
	BlockedMelee  map[world.Point]bool
	BlockedRanged map[world.Point]bool
}

// NewSight returns a Sight where every point is visible.
func NewSight() *Sight {
	return &Sight{
		BlockedMelee:  make(map[world.Point]bool),
		BlockedRanged: make(map[world.Point]bool),
	}
}

// Block hides p from both sight kinds.
func (f *Sight) Block(p world.Point) {
	f.BlockedMelee[p] = true
	f.BlockedRanged[p] = true
}

// LineOfSight reports whether b is visible; a is ignored.
func (f *Sight) LineOfSight(kind world.LOSKind, a, b world.Point) bool {
	if kind == world.LOSMelee {
		return !f.BlockedMelee[b]
	}
	return !f.BlockedRanged[b]
}

// Distance is Euclidean.
func (f *Sight) Distance(a, b world.Point) float64 {
	return a.Distance(b)
}

// SpellBook is a map-backed world.SpellBook.
type SpellBook map[string]world.SpellInfo

// Spell implements world.SpellBook.
func (b SpellBook) Spell(name string) (world.SpellInfo, bool) {
	info, ok := b[name]
	return info, ok
}

// Learn adds a castable spell.
func (b SpellBook) Learn(info world.SpellInfo) {
	info.CanCast = true
	b[info.Name] = info
}

// Command is one recorded executor call.
type Command struct {
	Kind   string
	Spell  string
	Target int64
	At     world.Point
	Reason string
	Flask  int
}

// Executor records every dispatch. Decline makes every call return
// world.ErrDeclined.
type Executor struct {
	Decline  bool
	Commands []Command
}

func (e *Executor) record(c Command) error {
	if e.Decline {
		return world.ErrDeclined
	}
	e.Commands = append(e.Commands, c)
	return nil
}

func (e *Executor) Cast(spell string, target int64) error {
	return e.record(Command{Kind: "cast", Spell: spell, Target: target})
}

func (e *Executor) CastAt(spell string, at world.Point) error {
	return e.record(Command{Kind: "cast_at", Spell: spell, At: at})
}

func (e *Executor) MoveTo(at world.Point, reason string) error {
	return e.record(Command{Kind: "move", At: at, Reason: reason})
}

func (e *Executor) UseFlask(f world.Flask) error {
	return e.record(Command{Kind: "use_flask", Flask: f.Slot})
}

// Last returns the most recent command, or the zero Command.
func (e *Executor) Last() Command {
	if len(e.Commands) == 0 {
		return Command{}
	}
	return e.Commands[len(e.Commands)-1]
}

// Reset forgets recorded commands.
func (e *Executor) Reset() {
	e.Commands = nil
}
