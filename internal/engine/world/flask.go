package world

import "time"

// Flask is a consumable in the agent's flask belt.
type Flask struct {
	Slot          int
	Name          string
	HealthRecover int
	ManaRecover   int
	// Instant flasks restore everything on use; others over Duration.
	Instant  bool
	Duration time.Duration
	CanUse   bool
}

// HealthPerSecond returns the over-time health recovery rate; 0 for instant
// flasks or a zero Duration.
func (f Flask) HealthPerSecond() float64 {
	if f.Instant || f.Duration <= 0 {
		return 0
	}
	return float64(f.HealthRecover) / f.Duration.Seconds()
}

// ManaPerSecond returns the over-time mana recovery rate; 0 for instant
// flasks or a zero Duration.
func (f Flask) ManaPerSecond() float64 {
	if f.Instant || f.Duration <= 0 {
		return 0
	}
	return float64(f.ManaRecover) / f.Duration.Seconds()
}
