// Package world defines the read-only per-tick view of the game that the
// routine decides from, plus the narrow interfaces it uses to query and act
// on the game.
package world

import (
	"fmt"
	"math"
	"strings"
)

// Point is an integer grid position.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	dx := float64(p.X - q.X)
	dy := float64(p.Y - q.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// Rarity is a hostile's threat class.
type Rarity int

const (
	RarityNormal Rarity = iota
	RarityMagic
	RarityRare
	RarityUnique
)

var rarityNames = [...]string{"normal", "magic", "rare", "unique"}

// String returns the lower-case rarity name.
func (r Rarity) String() string {
	if r < 0 || int(r) >= len(rarityNames) {
		return fmt.Sprintf("rarity(%d)", int(r))
	}
	return rarityNames[r]
}

// HighValue reports whether the rarity marks a dangerous single target.
func (r Rarity) HighValue() bool {
	return r >= RarityRare
}

// UnmarshalText parses a rarity name case-insensitively.
func (r *Rarity) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, name := range rarityNames {
		if name == s {
			*r = Rarity(i)
			return nil
		}
	}
	return fmt.Errorf("world: unknown rarity %q", string(text))
}

// MarshalText returns the rarity name.
func (r Rarity) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// Candidate is a hostile entity the routine may target.
type Candidate struct {
	ID       int64
	Name     string
	Position Point
	Alive    bool
	Rarity   Rarity
	Auras    AuraSet
	// CannotBeCursed marks hostiles immune to curses (hexproof).
	CannotBeCursed bool
}

// Agent is the routine's own character.
type Agent struct {
	ID          int64
	Position    Point
	HealthRatio float64 // current/max life in [0, 1]
	ManaRatio   float64 // current/max mana in [0, 1]
	Auras       AuraSet
	Flasks      []Flask
}

// Snapshot is one tick's view of the world.
//
// Invariant: Sight and Spells are non-nil for any snapshot handed to a Routine.
// Targets is ranked by the host (nearest / highest threat first).
type Snapshot struct {
	Self    Agent
	Targets []Candidate
	Sight   Sight
	Spells  SpellBook
}

// MainTarget returns the first ranked candidate, or nil when there is none.
func (s *Snapshot) MainTarget() *Candidate {
	if len(s.Targets) == 0 {
		return nil
	}
	return &s.Targets[0]
}

// NumberOfMobsNear reports whether at least count other candidates are
// strictly closer than radius to target. The target itself is never counted.
//
// Postcondition: false when target is nil or count > len(Targets)-1.
func (s *Snapshot) NumberOfMobsNear(target *Candidate, radius float64, count int) bool {
	if target == nil {
		return false
	}
	return s.MobsNear(target, radius) >= count
}

// MobsNear counts the other candidates strictly closer than radius to target.
func (s *Snapshot) MobsNear(target *Candidate, radius float64) int {
	if target == nil {
		return 0
	}
	n := 0
	for i := range s.Targets {
		mob := &s.Targets[i]
		if mob.ID == target.ID {
			continue
		}
		if mob.Position.Distance(target.Position) < radius {
			n++
		}
	}
	return n
}
