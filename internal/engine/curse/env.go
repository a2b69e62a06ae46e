package curse

import (
	"time"

	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Env is what a catalog condition can see about the current target.
// Health and Mana are the agent's own ratios.
type Env struct {
	Rarity   string
	Health   float64
	Mana     float64
	Distance float64
	// Hostiles counts every candidate in the snapshot, the target included.
	// MobsNear counts only the others.
	Hostiles int

	snap   *world.Snapshot
	target *world.Candidate
}

func newEnv(s *world.Snapshot, c *world.Candidate) Env {
	return Env{
		Rarity:   c.Rarity.String(),
		Health:   s.Self.HealthRatio,
		Mana:     s.Self.ManaRatio,
		Distance: s.Sight.Distance(s.Self.Position, c.Position),
		Hostiles: len(s.Targets),
		snap:     s,
		target:   c,
	}
}

// MobsNear counts the other hostiles strictly within radius of the target.
func (e Env) MobsNear(radius float64) int {
	if e.snap == nil {
		return 0
	}
	return e.snap.MobsNear(e.target, radius)
}

// TargetHasAura reports whether the target carries an aura called name.
func (e Env) TargetHasAura(name string) bool {
	return e.target != nil && e.target.Auras.Has(name)
}

// TargetAuraAtLeast reports whether the target carries name with at least
// charges charges and at least seconds left. Non-positive minimums are not
// checked.
func (e Env) TargetAuraAtLeast(name string, charges int, seconds float64) bool {
	if e.target == nil {
		return false
	}
	left := time.Duration(seconds * float64(time.Second))
	return e.target.Auras.HasAtLeast(name, charges, left)
}

// facts flattens the env for Lua hooks.
func (e Env) facts(clusterRadius float64) map[string]any {
	return map[string]any{
		"rarity":    e.Rarity,
		"health":    e.Health,
		"mana":      e.Mana,
		"distance":  e.Distance,
		"hostiles":  e.Hostiles,
		"mobs_near": e.MobsNear(clusterRadius),
		"target_id": e.target.ID,
		"name":      e.target.Name,
	}
}
