// Package flask decides when the agent drinks a life or mana flask.
package flask

import (
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/totembot/internal/engine/behavior"
	"github.com/cory-johannsen/totembot/internal/engine/cooldown"
	"github.com/cory-johannsen/totembot/internal/engine/predicate"
	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Defaults used when a Config field is left zero.
const (
	DefaultCooldown      = 500 * time.Millisecond
	DefaultLifeThreshold = 0.70
	DefaultManaThreshold = 0.20
	DefaultLifeAura      = "flask_effect_life"
	DefaultManaAura      = "flask_effect_mana"
)

// ErrNoFlask is returned by a flask action when nothing matching is usable.
var ErrNoFlask = errors.New("flask: no usable flask")

// Config tunes the resource policy.
type Config struct {
	Cooldown      time.Duration
	LifeThreshold float64
	ManaThreshold float64
	LifeAura      string
	ManaAura      string
}

func (c Config) withDefaults() Config {
	if c.Cooldown <= 0 {
		c.Cooldown = DefaultCooldown
	}
	if c.LifeThreshold <= 0 {
		c.LifeThreshold = DefaultLifeThreshold
	}
	if c.ManaThreshold <= 0 {
		c.ManaThreshold = DefaultManaThreshold
	}
	if c.LifeAura == "" {
		c.LifeAura = DefaultLifeAura
	}
	if c.ManaAura == "" {
		c.ManaAura = DefaultManaAura
	}
	return c
}

// Policy owns the single flask cooldown shared by every category.
type Policy struct {
	cfg    Config
	timer  *cooldown.Timer
	logger *zap.Logger
}

// NewPolicy builds a Policy whose cooldown starts elapsed.
//
// Precondition: now and logger must not be nil.
func NewPolicy(cfg Config, now cooldown.Clock, logger *zap.Logger) *Policy {
	if logger == nil {
		panic("flask.NewPolicy: logger must not be nil")
	}
	cfg = cfg.withDefaults()
	return &Policy{cfg: cfg, timer: cooldown.NewTimer(cfg.Cooldown, now), logger: logger}
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// Ready reports whether the shared cooldown has elapsed.
func (p *Policy) Ready() bool {
	return p.timer.Elapsed()
}

// LifeFlasks returns the usable life flasks, best first.
func LifeFlasks(flasks []world.Flask) []world.Flask {
	return rank(flasks,
		func(f world.Flask) int { return f.HealthRecover },
		world.Flask.HealthPerSecond,
	)
}

// ManaFlasks returns the usable mana flasks, best first.
func ManaFlasks(flasks []world.Flask) []world.Flask {
	return rank(flasks,
		func(f world.Flask) int { return f.ManaRecover },
		world.Flask.ManaPerSecond,
	)
}

// rank keeps usable flasks with a positive amount and orders them by score,
// descending: the full amount for instant flasks, the per-second rate for
// the rest. Belt order breaks ties.
func rank(flasks []world.Flask, amount func(world.Flask) int, rate func(world.Flask) float64) []world.Flask {
	out := make([]world.Flask, 0, len(flasks))
	for _, f := range flasks {
		if f.CanUse && amount(f) > 0 {
			out = append(out, f)
		}
	}
	score := func(f world.Flask) float64 {
		if f.Instant {
			return float64(amount(f))
		}
		return rate(f)
	}
	slices.SortStableFunc(out, func(a, b world.Flask) int {
		sa, sb := score(a), score(b)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Node returns the flask selector: life first, then mana.
//
// Postcondition: at most one flask is used per evaluation. Deciding to drink
// resets the shared cooldown before dispatch, so neither category can fire
// again until it elapses.
func (p *Policy) Node(b *behavior.Builder, exec world.Executor) *behavior.PrioritySelector {
	return b.Priority("flask logic",
		p.category(b, exec, "life flask", predicate.HealthBelow(p.cfg.LifeThreshold), p.cfg.LifeAura, LifeFlasks),
		p.category(b, exec, "mana flask", predicate.ManaBelow(p.cfg.ManaThreshold), p.cfg.ManaAura, ManaFlasks),
	)
}

func (p *Policy) category(
	b *behavior.Builder,
	exec world.Executor,
	name string,
	threshold behavior.Guard,
	aura string,
	pick func([]world.Flask) []world.Flask,
) behavior.Node {
	guard := behavior.All(
		threshold,
		p.cooledDown(name),
		predicate.LacksAura(aura),
		func(s *world.Snapshot) bool { return len(pick(s.Self.Flasks)) > 0 },
	)
	use := b.Action("use "+name, func(s *world.Snapshot) error {
		ranked := pick(s.Self.Flasks)
		if len(ranked) == 0 {
			return ErrNoFlask
		}
		best := ranked[0]
		p.timer.Reset()
		p.logger.Debug("using flask",
			zap.String("category", name),
			zap.Int("slot", best.Slot),
			zap.String("flask", best.Name),
			zap.Float64("health", s.Self.HealthRatio),
			zap.Float64("mana", s.Self.ManaRatio),
		)
		return exec.UseFlask(best)
	})
	return b.Decorator(name, guard, use)
}

func (p *Policy) cooledDown(category string) behavior.Guard {
	return func(*world.Snapshot) bool {
		if left := p.timer.Remaining(); left > 0 {
			p.logger.Debug("flask on cooldown", zap.String("category", category), zap.Duration("remaining", left))
			return false
		}
		return true
	}
}
