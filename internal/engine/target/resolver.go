// Package target picks which hostile the routine acts on.
package target

import (
	"fmt"

	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Func selects a target from a snapshot; nil means no target.
type Func func(s *world.Snapshot) *world.Candidate

// Selector tokens accepted by ByName.
const (
	SelectResolved = "resolved"
	SelectMain     = "main"
	SelectRarest   = "rarest"
)

// Resolve returns the primary hostile for this tick.
//
// The first ranked candidate wins if the agent has a ranged sight line to it.
// Otherwise the remaining candidates are scanned in rank order, skipping dead
// ones, and the first visible one wins. If nothing is visible the first
// candidate is returned anyway.
//
// Postcondition: nil only when s.Targets is empty.
func Resolve(s *world.Snapshot) *world.Candidate {
	if len(s.Targets) == 0 {
		return nil
	}
	first := &s.Targets[0]
	if visible(s, first) {
		return first
	}
	for i := 1; i < len(s.Targets); i++ {
		c := &s.Targets[i]
		if !c.Alive {
			continue
		}
		if visible(s, c) {
			return c
		}
	}
	return first
}

// Main returns the first ranked candidate without any sight preference.
func Main(s *world.Snapshot) *world.Candidate {
	return s.MainTarget()
}

// Rarest returns the living, visible candidate with the highest rarity (rank
// order breaks ties), falling back to Resolve.
func Rarest(s *world.Snapshot) *world.Candidate {
	var best *world.Candidate
	for i := range s.Targets {
		c := &s.Targets[i]
		if !c.Alive || !visible(s, c) {
			continue
		}
		if best == nil || c.Rarity > best.Rarity {
			best = c
		}
	}
	if best != nil {
		return best
	}
	return Resolve(s)
}

// ByName maps a selector token to its Func. An empty token means resolved.
//
// Postcondition: returns an error for unknown tokens.
func ByName(token string) (Func, error) {
	switch token {
	case "", SelectResolved:
		return Resolve, nil
	case SelectMain:
		return Main, nil
	case SelectRarest:
		return Rarest, nil
	default:
		return nil, fmt.Errorf("target.ByName: unknown selector %q", token)
	}
}

func visible(s *world.Snapshot, c *world.Candidate) bool {
	return s.Sight.LineOfSight(world.LOSRanged, s.Self.Position, c.Position)
}
