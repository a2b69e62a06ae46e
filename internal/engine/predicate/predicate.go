// Package predicate provides the guards the routine composes into its trees.
//
// Every target-dependent guard is false when the target function returns nil,
// so an empty candidate list fails the branch instead of dereferencing.
package predicate

import (
	"time"

	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/target"
	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// HealthBelow is true while the agent's health ratio is strictly below ratio.
func HealthBelow(ratio float64) behavior.Guard {
	return func(s *world.Snapshot) bool {
		return s.Self.HealthRatio < ratio
	}
}

// ManaBelow is true while the agent's mana ratio is strictly below ratio.
func ManaBelow(ratio float64) behavior.Guard {
	return func(s *world.Snapshot) bool {
		return s.Self.ManaRatio < ratio
	}
}

// SelfHasAura is true while the agent carries name (display or internal)
// with at least minCharges charges and at least minLeft remaining.
// Non-positive minimums are not checked.
func SelfHasAura(name string, minCharges int, minLeft time.Duration) behavior.Guard {
	return func(s *world.Snapshot) bool {
		return s.Self.Auras.HasAtLeast(name, minCharges, minLeft)
	}
}

// LacksAura is true while the agent has no aura called name.
func LacksAura(name string) behavior.Guard {
	has := SelfHasAura(name, 0, 0)
	return func(s *world.Snapshot) bool {
		return !has(s)
	}
}

// HasAura is SelfHasAura for the target. False without a target.
func HasAura(tgt target.Func, name string, minCharges int, minLeft time.Duration) behavior.Guard {
	return func(s *world.Snapshot) bool {
		c := tgt(s)
		return c != nil && c.Auras.HasAtLeast(name, minCharges, minLeft)
	}
}

// TargetNeedsAura is true when the target exists and either lacks name or
// has less than refreshBelow of it left. A non-positive refreshBelow only
// checks presence.
func TargetNeedsAura(tgt target.Func, name string, refreshBelow time.Duration) behavior.Guard {
	has := HasAura(tgt, name, 0, refreshBelow)
	return func(s *world.Snapshot) bool {
		return tgt(s) != nil && !has(s)
	}
}

// HasTarget is true when tgt selects a candidate.
func HasTarget(tgt target.Func) behavior.Guard {
	return func(s *world.Snapshot) bool {
		return tgt(s) != nil
	}
}

// TargetLacksAura is true when the target exists and has no aura called name.
func TargetLacksAura(tgt target.Func, name string) behavior.Guard {
	return func(s *world.Snapshot) bool {
		c := tgt(s)
		return c != nil && !c.Auras.Has(name)
	}
}

// Visible is true when the target exists and a kind sight line reaches it.
func Visible(tgt target.Func, kind world.LOSKind) behavior.Guard {
	return func(s *world.Snapshot) bool {
		c := tgt(s)
		return c != nil && s.Sight.LineOfSight(kind, s.Self.Position, c.Position)
	}
}

// NotVisible is true when the target exists and no kind sight line reaches it.
// It is not the negation of Visible: both are false without a target.
func NotVisible(tgt target.Func, kind world.LOSKind) behavior.Guard {
	return func(s *world.Snapshot) bool {
		c := tgt(s)
		return c != nil && !s.Sight.LineOfSight(kind, s.Self.Position, c.Position)
	}
}

// FartherThan is true when the target exists and is strictly farther than dist.
func FartherThan(tgt target.Func, dist float64) behavior.Guard {
	return func(s *world.Snapshot) bool {
		c := tgt(s)
		return c != nil && s.Sight.Distance(s.Self.Position, c.Position) > dist
	}
}

// WithinRange is true when the target exists and is no farther than dist.
func WithinRange(tgt target.Func, dist float64) behavior.Guard {
	return func(s *world.Snapshot) bool {
		c := tgt(s)
		return c != nil && s.Sight.Distance(s.Self.Position, c.Position) <= dist
	}
}

// MobsNear is true when at least count other candidates are within radius of
// the target.
func MobsNear(tgt target.Func, radius float64, count int) behavior.Guard {
	return func(s *world.Snapshot) bool {
		return s.NumberOfMobsNear(tgt(s), radius, count)
	}
}

// Curseable is true when the target is alive and not flagged immune to curses.
func Curseable(tgt target.Func) behavior.Guard {
	return func(s *world.Snapshot) bool {
		c := tgt(s)
		return c != nil && c.Alive && !c.CannotBeCursed
	}
}

// HighValue is true when the target is rare or unique.
func HighValue(tgt target.Func) behavior.Guard {
	return func(s *world.Snapshot) bool {
		c := tgt(s)
		return c != nil && c.Rarity.HighValue()
	}
}

// Any combines guards with short-circuit OR. With no guards it is false.
func Any(guards ...behavior.Guard) behavior.Guard {
	return func(s *world.Snapshot) bool {
		for _, g := range guards {
			if g(s) {
				return true
			}
		}
		return false
	}
}
