package world

import "time"

// Aura is a buff or debuff active on an actor.
type Aura struct {
	Name         string
	InternalName string
	Charges      int
	TimeLeft     time.Duration
}

// AuraSet is the list of auras on one actor.
type AuraSet []Aura

// Find returns the first aura whose display or internal name equals name.
func (s AuraSet) Find(name string) (Aura, bool) {
	for _, a := range s {
		if a.Name == name || a.InternalName == name {
			return a, true
		}
	}
	return Aura{}, false
}

// Has reports whether an aura called name is present.
func (s AuraSet) Has(name string) bool {
	_, ok := s.Find(name)
	return ok
}

// HasAtLeast reports whether name is present with at least minCharges charges
// and at least minLeft remaining. Non-positive requirements are ignored.
func (s AuraSet) HasAtLeast(name string, minCharges int, minLeft time.Duration) bool {
	a, ok := s.Find(name)
	if !ok {
		return false
	}
	if minCharges > 0 && a.Charges < minCharges {
		return false
	}
	if minLeft > 0 && a.TimeLeft < minLeft {
		return false
	}
	return true
}
