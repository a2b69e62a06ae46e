// Package routine assembles the buff and combat trees and runs them per tick.
package routine

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/cast"
	"github.com/cory-johannsen/totembot/internal/engine/cooldown"
	"github.com/cory-johannsen/totembot/internal/engine/curse"
	"github.com/cory-johannsen/totembot/internal/engine/flask"
	"github.com/cory-johannsen/totembot/internal/engine/predicate"
	"github.com/cory-johannsen/totembot/internal/engine/target"
	"github.com/cory-johannsen/totembot/internal/engine/totem"
	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Defaults used when a Config field is left zero.
const (
	DefaultMaxRange      = 50.0
	DefaultTrapSpell     = "Cold Snap"
	DefaultTrapRadius    = 16.0
	DefaultTrapCount     = 3
	DefaultDebuffSpell   = "Wither"
	DefaultDebuffAura    = "withered"
	DefaultDebuffRange   = 40.0
	DefaultFallbackSpell = "Default Attack"
)

var (
	// ErrInitialized is returned by a second Initialize.
	ErrInitialized = errors.New("routine: already initialized")
	// ErrDisposed is returned by Initialize after Dispose.
	ErrDisposed = errors.New("routine: disposed")
)

// ParseEngagement maps "melee" or "ranged" to the sight line used by the
// move-to-line-of-sight branch.
func ParseEngagement(s string) (world.LOSKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "melee":
		return world.LOSMelee, nil
	case "ranged":
		return world.LOSRanged, nil
	default:
		return 0, fmt.Errorf("routine.ParseEngagement: unknown engagement style %q", s)
	}
}

// Config tunes every branch of the combat tree.
type Config struct {
	Totem totem.Config
	Flask flask.Config
	Curse curse.Eligibility

	// Engagement selects the sight line the agent needs to its target.
	Engagement world.LOSKind
	// MaxRange is the distance beyond which the agent closes in.
	MaxRange float64

	TrapSpell  string
	TrapRadius float64
	TrapCount  int

	DebuffSpell string
	DebuffAura  string
	DebuffRange float64

	FallbackSpell string
}

func (c Config) withDefaults() Config {
	if c.MaxRange <= 0 {
		c.MaxRange = DefaultMaxRange
	}
	if c.TrapSpell == "" {
		c.TrapSpell = DefaultTrapSpell
	}
	if c.TrapRadius <= 0 {
		c.TrapRadius = DefaultTrapRadius
	}
	if c.TrapCount <= 0 {
		c.TrapCount = DefaultTrapCount
	}
	if c.DebuffSpell == "" {
		c.DebuffSpell = DefaultDebuffSpell
	}
	if c.DebuffAura == "" {
		c.DebuffAura = DefaultDebuffAura
	}
	if c.DebuffRange <= 0 {
		c.DebuffRange = DefaultDebuffRange
	}
	if c.FallbackSpell == "" {
		c.FallbackSpell = DefaultFallbackSpell
	}
	return c
}

// Routine owns the two trees and all cooldown state for one agent.
//
// Invariant: not safe for concurrent use; the host runs one pass at a time.
type Routine struct {
	cfg    Config
	spells world.SpellBook
	exec   world.Executor
	curses []curse.Registration
	now    cooldown.Clock
	logger *zap.Logger

	buff     *behavior.PrioritySelector
	combat   *behavior.PrioritySelector
	disposed bool
}

// New creates an uninitialized Routine. spells is consulted once, during
// Initialize, to decide which curses to register.
//
// Precondition: spells, exec, now and logger must not be nil.
func New(cfg Config, spells world.SpellBook, exec world.Executor, curses []curse.Registration, now cooldown.Clock, logger *zap.Logger) *Routine {
	switch {
	case spells == nil:
		panic("routine.New: spells must not be nil")
	case exec == nil:
		panic("routine.New: exec must not be nil")
	case now == nil:
		panic("routine.New: clock must not be nil")
	case logger == nil:
		panic("routine.New: logger must not be nil")
	}
	return &Routine{
		cfg:    cfg.withDefaults(),
		spells: spells,
		exec:   exec,
		curses: curses,
		now:    now,
		logger: logger,
	}
}

// Config returns the effective configuration.
func (r *Routine) Config() Config {
	return r.cfg
}

// Initialize builds both trees.
//
// Postcondition: the trees are fixed; returns ErrInitialized on a second
// call and ErrDisposed after Dispose.
func (r *Routine) Initialize() error {
	if r.disposed {
		return ErrDisposed
	}
	if r.buff != nil {
		return ErrInitialized
	}
	b := behavior.NewBuilder(r.logger)
	r.buff = b.Priority("buff")
	n := curse.Register(b, r.buff, r.curses, r.spells, r.exec, r.logger)
	r.combat = r.buildCombat(b)
	r.logger.Info("routine initialized",
		zap.Int("curses", n),
		zap.Int("curses_dropped", len(r.curses)-n),
		zap.Int("combat_branches", r.combat.Len()),
		zap.String("engagement", r.cfg.Engagement.String()),
	)
	return nil
}

// buildCombat lays out the fixed combat order: flasks, reposition for sight,
// reposition for range, totem, trap, ranged debuff, fallback attack.
func (r *Routine) buildCombat(b *behavior.Builder) *behavior.PrioritySelector {
	cooldowns := cooldown.NewMap(r.now)
	flasks := flask.NewPolicy(r.cfg.Flask, r.now, r.logger)
	totems := totem.NewPolicy(r.cfg.Totem, cooldowns, r.logger)
	tgt := target.Resolve

	return b.Priority("combat",
		flasks.Node(b, r.exec),
		b.Decorator("move to line of sight",
			predicate.NotVisible(tgt, r.cfg.Engagement),
			cast.MoveToward(b, "line of sight", tgt, r.exec)),
		b.Decorator("move to range",
			predicate.FartherThan(tgt, r.cfg.MaxRange),
			cast.MoveToward(b, "range", tgt, r.exec)),
		totems.Node(b, tgt, r.exec),
		b.Decorator("trap",
			predicate.MobsNear(tgt, r.cfg.TrapRadius, r.cfg.TrapCount),
			cast.SpellAt(b, r.cfg.TrapSpell, tgt, r.exec)),
		b.Decorator("ranged debuff",
			behavior.All(
				predicate.WithinRange(tgt, r.cfg.DebuffRange),
				predicate.TargetLacksAura(tgt, r.cfg.DebuffAura),
			),
			cast.Spell(b, r.cfg.DebuffSpell, tgt, r.exec)),
		b.Decorator("fallback attack",
			predicate.HasTarget(tgt),
			cast.Spell(b, r.cfg.FallbackSpell, tgt, r.exec)),
	)
}

// EvaluateBuff runs the upkeep tree. Failed before Initialize or after Dispose.
func (r *Routine) EvaluateBuff(s *world.Snapshot) behavior.Status {
	return r.evaluate(r.buff, s)
}

// EvaluateCombat runs the combat tree. Failed before Initialize or after Dispose.
func (r *Routine) EvaluateCombat(s *world.Snapshot) behavior.Status {
	return r.evaluate(r.combat, s)
}

func (r *Routine) evaluate(tree *behavior.PrioritySelector, s *world.Snapshot) behavior.Status {
	if r.disposed || tree == nil || s == nil {
		return behavior.Failed
	}
	return tree.Evaluate(s)
}

// Dispose drops both trees. Further evaluations return Failed.
func (r *Routine) Dispose() {
	r.disposed = true
	r.buff = nil
	r.combat = nil
}
