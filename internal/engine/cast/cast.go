// Package cast builds the action leaves that dispatch through a world.Executor.
package cast

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/target"
	"github.com/cory-johannsen/totembot/internal/engine/world"
)

var (
	// ErrNoTarget is returned when the target function selects nothing.
	ErrNoTarget = errors.New("cast: no target")
	// ErrUnknownSpell is returned when the agent does not know the spell.
	ErrUnknownSpell = errors.New("cast: spell not known")
	// ErrNotReady is returned while the spell is on engine cooldown or unaffordable.
	ErrNotReady = errors.New("cast: spell cannot be cast")
)

// Ready checks that spell is known and castable in s.
func Ready(s *world.Snapshot, spell string) error {
	info, ok := s.Spells.Spell(spell)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSpell, spell)
	}
	if !info.CanCast {
		return fmt.Errorf("%w: %q", ErrNotReady, spell)
	}
	return nil
}

// Spell returns an Action casting spell on the selected target.
//
// Postcondition: the Action fails without dispatching when there is no
// target or Ready reports an error.
func Spell(b *behavior.Builder, spell string, tgt target.Func, exec world.Executor) *behavior.Action {
	return b.Action("cast "+spell, func(s *world.Snapshot) error {
		c := tgt(s)
		if c == nil {
			return ErrNoTarget
		}
		if err := Ready(s, spell); err != nil {
			return err
		}
		return exec.Cast(spell, c.ID)
	})
}

// SpellAt returns an Action casting spell at the selected target's position.
func SpellAt(b *behavior.Builder, spell string, tgt target.Func, exec world.Executor) *behavior.Action {
	return b.Action("cast "+spell+" at target", func(s *world.Snapshot) error {
		c := tgt(s)
		if c == nil {
			return ErrNoTarget
		}
		if err := Ready(s, spell); err != nil {
			return err
		}
		return exec.CastAt(spell, c.Position)
	})
}

// Guarded is Spell behind guard, the usual shape of one combat branch.
func Guarded(b *behavior.Builder, spell string, guard behavior.Guard, tgt target.Func, exec world.Executor) *behavior.Decorator {
	return b.Decorator(spell, guard, Spell(b, spell, tgt, exec))
}

// MoveToward returns an Action moving the agent to the selected target.
func MoveToward(b *behavior.Builder, reason string, tgt target.Func, exec world.Executor) *behavior.Action {
	return b.Action("move: "+reason, func(s *world.Snapshot) error {
		c := tgt(s)
		if c == nil {
			return ErrNoTarget
		}
		return exec.MoveTo(c.Position, reason)
	})
}
