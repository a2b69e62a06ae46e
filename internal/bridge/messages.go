// Package bridge connects the game client to the engine over a websocket.
// The client streams terrain and snapshots; the bot answers with commands.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cory-johannsen/totembot/internal/engine/world"
)

// Client message types.
const (
	TypeTerrain  = "terrain"
	TypeSnapshot = "snapshot"
)

// Server message types.
const (
	TypeCommand = "command"
	TypeError   = "error"
)

// ErrNoTerrain is returned when a snapshot arrives before any terrain.
var ErrNoTerrain = errors.New("bridge: snapshot before terrain")

// ClientMessage is any message sent by the game client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Rows    []string        `json:"rows,omitempty"`
	Self    *AgentState     `json:"self,omitempty"`
	Targets []CandidateInfo `json:"targets,omitempty"`
	Spells  []SpellState    `json:"spells,omitempty"`
}

// AuraState is an aura as reported by the client.
type AuraState struct {
	Name         string `json:"name"`
	InternalName string `json:"internal_name,omitempty"`
	Charges      int    `json:"charges,omitempty"`
	TimeLeftMs   int64  `json:"time_left_ms,omitempty"`
}

// FlaskState is a flask slot as reported by the client.
type FlaskState struct {
	Slot          int    `json:"slot"`
	Name          string `json:"name"`
	HealthRecover int    `json:"health_recover,omitempty"`
	ManaRecover   int    `json:"mana_recover,omitempty"`
	Instant       bool   `json:"instant,omitempty"`
	DurationMs    int64  `json:"duration_ms,omitempty"`
	CanUse        bool   `json:"can_use"`
}

// AgentState is the controlled character.
type AgentState struct {
	ID       int64        `json:"id"`
	Position world.Point  `json:"position"`
	Health   float64      `json:"health"`
	Mana     float64      `json:"mana"`
	Auras    []AuraState  `json:"auras,omitempty"`
	Flasks   []FlaskState `json:"flasks,omitempty"`
}

// CandidateInfo is one hostile.
type CandidateInfo struct {
	ID             int64        `json:"id"`
	Name           string       `json:"name"`
	Position       world.Point  `json:"position"`
	Alive          bool         `json:"alive"`
	Rarity         world.Rarity `json:"rarity"`
	Auras          []AuraState  `json:"auras,omitempty"`
	CannotBeCursed bool         `json:"cannot_be_cursed,omitempty"`
}

// DeploymentState is a live placed object.
type DeploymentState struct {
	ID       int64       `json:"id"`
	Position world.Point `json:"position"`
}

// SpellState is a known spell and its current castability.
type SpellState struct {
	Name       string            `json:"name"`
	CastTimeMs int64             `json:"cast_time_ms,omitempty"`
	ManaCost   int               `json:"mana_cost,omitempty"`
	Deployable bool              `json:"deployable,omitempty"`
	CanCast    bool              `json:"can_cast"`
	Stats      map[string]int    `json:"stats,omitempty"`
	Deployed   []DeploymentState `json:"deployed,omitempty"`
}

// Command is a single dispatch sent to the client.
type Command struct {
	Type   string       `json:"type"`
	Kind   string       `json:"kind"`
	Spell  string       `json:"spell,omitempty"`
	Target int64        `json:"target,omitempty"`
	At     *world.Point `json:"at,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Flask  *int         `json:"flask,omitempty"`
}

// ErrorMessage reports a rejected client message.
type ErrorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// spellBook is the per-snapshot world.SpellBook.
type spellBook map[string]world.SpellInfo

func (b spellBook) Spell(name string) (world.SpellInfo, bool) {
	info, ok := b[name]
	return info, ok
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func auras(in []AuraState) world.AuraSet {
	if len(in) == 0 {
		return nil
	}
	out := make(world.AuraSet, len(in))
	for i, a := range in {
		out[i] = world.Aura{
			Name:         a.Name,
			InternalName: a.InternalName,
			Charges:      a.Charges,
			TimeLeft:     millis(a.TimeLeftMs),
		}
	}
	return out
}

// DecodeClientMessage parses one websocket payload.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("bridge.DecodeClientMessage: %w", err)
	}
	switch msg.Type {
	case TypeTerrain, TypeSnapshot:
		return msg, nil
	default:
		return ClientMessage{}, fmt.Errorf("bridge.DecodeClientMessage: unknown message type %q", msg.Type)
	}
}

// Terrain builds the sight grid from a terrain message.
func (m ClientMessage) Terrain() (*world.Terrain, error) {
	return world.ParseTerrain(m.Rows)
}

// Snapshot builds the world snapshot from a snapshot message.
//
// Precondition: sight must not be nil; otherwise ErrNoTerrain is returned.
// Postcondition: targets keep the client's order, so the first is the main target.
func (m ClientMessage) Snapshot(sight world.Sight) (*world.Snapshot, error) {
	if sight == nil {
		return nil, ErrNoTerrain
	}
	if m.Self == nil {
		return nil, errors.New("bridge: snapshot without self")
	}
	s := &world.Snapshot{
		Self: world.Agent{
			ID:          m.Self.ID,
			Position:    m.Self.Position,
			HealthRatio: m.Self.Health,
			ManaRatio:   m.Self.Mana,
			Auras:       auras(m.Self.Auras),
		},
		Targets: make([]world.Candidate, len(m.Targets)),
		Sight:   sight,
	}
	for _, f := range m.Self.Flasks {
		s.Self.Flasks = append(s.Self.Flasks, world.Flask{
			Slot:          f.Slot,
			Name:          f.Name,
			HealthRecover: f.HealthRecover,
			ManaRecover:   f.ManaRecover,
			Instant:       f.Instant,
			Duration:      millis(f.DurationMs),
			CanUse:        f.CanUse,
		})
	}
	for i, c := range m.Targets {
		s.Targets[i] = world.Candidate{
			ID:             c.ID,
			Name:           c.Name,
			Position:       c.Position,
			Alive:          c.Alive,
			Rarity:         c.Rarity,
			Auras:          auras(c.Auras),
			CannotBeCursed: c.CannotBeCursed,
		}
	}
	book := make(spellBook, len(m.Spells))
	for _, sp := range m.Spells {
		info := world.SpellInfo{
			Name:       sp.Name,
			CastTime:   millis(sp.CastTimeMs),
			ManaCost:   sp.ManaCost,
			Deployable: sp.Deployable,
			CanCast:    sp.CanCast,
			Stats:      sp.Stats,
		}
		for _, d := range sp.Deployed {
			info.Deployed = append(info.Deployed, world.Deployment{ID: d.ID, Position: d.Position, Spell: sp.Name})
		}
		book[sp.Name] = info
	}
	s.Spells = book
	return s, nil
}
