// Package totem decides when to (re)deploy the routine's totem near its target.
package totem

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/cast"
	"github.com/cory-johannsen/totembot/internal/engine/cooldown"
	"github.com/cory-johannsen/totembot/internal/engine/target"
	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Defaults used when a Config field is left zero.
const (
	DefaultSpell                = "Flame Totem"
	DefaultMinEffectiveDistance = 20.0
	DefaultSafetyMargin         = 500 * time.Millisecond
)

// Config tunes the placement policy.
type Config struct {
	// Spell is the deployable spell; it doubles as the cooldown key.
	Spell string
	// MinEffectiveDistance is the farthest a deployment may sit from the
	// target and still count as useful.
	MinEffectiveDistance float64
	// SafetyMargin is added to the cast time when arming the cooldown.
	SafetyMargin time.Duration
}

func (c Config) withDefaults() Config {
	if c.Spell == "" {
		c.Spell = DefaultSpell
	}
	if c.MinEffectiveDistance <= 0 {
		c.MinEffectiveDistance = DefaultMinEffectiveDistance
	}
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = DefaultSafetyMargin
	}
	return c
}

// Policy is the placement decision. It shares the routine's cooldown map.
type Policy struct {
	cfg       Config
	cooldowns *cooldown.Map
	logger    *zap.Logger
}

// NewPolicy builds a Policy.
//
// Precondition: cooldowns and logger must not be nil.
func NewPolicy(cfg Config, cooldowns *cooldown.Map, logger *zap.Logger) *Policy {
	if cooldowns == nil {
		panic("totem.NewPolicy: cooldowns must not be nil")
	}
	if logger == nil {
		panic("totem.NewPolicy: logger must not be nil")
	}
	return &Policy{cfg: cfg.withDefaults(), cooldowns: cooldowns, logger: logger}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// ShouldDeploy reports whether a new deployment should be placed at tgt.
//
// It is true when fewer than the allowed number of deployments are active, or
// when any active deployment is farther than the effective distance from tgt
// or has no ranged sight line to it. The effective distance is
// MinEffectiveDistance, shortened to the spell's totem_range stat when that
// is smaller. A spell reporting no deployment limit is treated as allowing one.
// A spell that cannot be cast right now never deploys and arms nothing.
//
// Postcondition: a true result arms the cooldown for cast time plus
// SafetyMargin; until it expires ShouldDeploy returns false without scanning.
func (p *Policy) ShouldDeploy(s *world.Snapshot, tgt *world.Candidate) bool {
	if tgt == nil {
		return false
	}
	if p.cooldowns.Blocked(p.cfg.Spell) {
		if until, ok := p.cooldowns.Until(p.cfg.Spell); ok {
			p.logger.Debug("totem on cooldown", zap.String("spell", p.cfg.Spell), zap.Time("retry_after", until))
		}
		return false
	}
	info, ok := s.Spells.Spell(p.cfg.Spell)
	if !ok || !info.CanCast {
		return false
	}
	reach := p.reach(info)
	limit := info.MaxDeployments()
	if limit < 1 {
		limit = 1
	}
	deploy := len(info.Deployed) < limit
	if !deploy {
		for _, d := range info.Deployed {
			if stale(s, d, tgt, reach) {
				deploy = true
				break
			}
		}
	}
	if !deploy {
		return false
	}
	until := p.cooldowns.Arm(p.cfg.Spell, info.CastTime+p.cfg.SafetyMargin)
	p.logger.Debug("casting totem",
		zap.String("spell", p.cfg.Spell),
		zap.Int("active", len(info.Deployed)),
		zap.Int("max", limit),
		zap.Int64("target", tgt.ID),
		zap.Time("retry_after", until),
	)
	return true
}

// reach is the farthest a deployment may sit from its target for this spell.
func (p *Policy) reach(info world.SpellInfo) float64 {
	if r := float64(info.Stat(world.StatTotemRange)); r > 0 && r < p.cfg.MinEffectiveDistance {
		return r
	}
	return p.cfg.MinEffectiveDistance
}

func stale(s *world.Snapshot, d world.Deployment, tgt *world.Candidate, reach float64) bool {
	if s.Sight.Distance(d.Position, tgt.Position) > reach {
		return true
	}
	return !s.Sight.LineOfSight(world.LOSRanged, d.Position, tgt.Position)
}

// Node returns the placement branch: a Decorator over ShouldDeploy that casts
// the totem at the target's position. A cast that fails to dispatch clears
// the cooldown so the next pass may try again.
func (p *Policy) Node(b *behavior.Builder, tgt target.Func, exec world.Executor) behavior.Node {
	guard := func(s *world.Snapshot) bool {
		return p.ShouldDeploy(s, tgt(s))
	}
	place := cast.SpellAt(b, p.cfg.Spell, tgt, exec)
	retry := b.Leaf("place "+p.cfg.Spell, func(s *world.Snapshot) behavior.Status {
		st := place.Evaluate(s)
		if st == behavior.Failed {
			p.cooldowns.Clear(p.cfg.Spell)
		}
		return st
	})
	return b.Decorator("totem placement", guard, retry)
}
