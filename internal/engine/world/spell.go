package world

import (
	"errors"
	"time"
)

// Stat keys read from SpellInfo.Stats.
const (
	StatTotemRange    = "totem_range"
	StatTotemsAllowed = "skill_display_number_of_totems_allowed"
)

// Deployment is a persistent construct (totem, trap) placed by a spell.
type Deployment struct {
	ID       int64
	Position Point
	Spell    string
}

// SpellInfo is the metadata the routine needs about one skill on the bar.
type SpellInfo struct {
	Name     string
	CastTime time.Duration
	ManaCost int
	// Deployable marks skills whose effect is a placed construct (totems).
	Deployable bool
	// CanCast is false while the skill is on engine cooldown or unaffordable.
	CanCast  bool
	Stats    map[string]int
	Deployed []Deployment
}

// Stat returns the numeric stat stored under key, or 0.
func (s SpellInfo) Stat(key string) int {
	return s.Stats[key]
}

// MaxDeployments returns how many constructs of this spell may be active at once.
func (s SpellInfo) MaxDeployments() int {
	return s.Stat(StatTotemsAllowed)
}

// LOSKind selects the line-of-sight variant. The two are not interchangeable:
// melee sight lines are blocked by terrain a projectile can cross.
type LOSKind int

const (
	LOSMelee LOSKind = iota
	LOSRanged
)

// String returns "melee" or "ranged".
func (k LOSKind) String() string {
	if k == LOSRanged {
		return "ranged"
	}
	return "melee"
}

// Sight answers spatial queries.
type Sight interface {
	// LineOfSight reports whether b is visible from a along a kind sight line.
	LineOfSight(kind LOSKind, a, b Point) bool
	// Distance returns the distance between a and b.
	Distance(a, b Point) float64
}

// SpellBook looks up the skills the agent currently knows.
type SpellBook interface {
	// Spell returns the metadata for name, or false when the agent does not know it.
	Spell(name string) (SpellInfo, bool)
}

// ErrDeclined is returned by an Executor that refuses an action.
var ErrDeclined = errors.New("world: action declined")

// Executor dispatches actions to the game. Every method returns immediately;
// a nil error only means the action was sent.
type Executor interface {
	Cast(spell string, target int64) error
	CastAt(spell string, at Point) error
	MoveTo(at Point, reason string) error
	UseFlask(f Flask) error
}
