package territory

import "sort"

type OwnershipState string

const (
	Neutral   OwnershipState = "NEUTRAL"
	Contested OwnershipState = "CONTESTED"
	Dominant  OwnershipState = "DOMINANT"
	Exclusive OwnershipState = "EXCLUSIVE"
)

// Ownership is derived from a unit's influence rows and never stored.
// Holder is set for Dominant/Exclusive; Rivals lists the contesting factions
// (sorted) for Contested.
type Ownership struct {
	State  OwnershipState
	Holder string
	Rivals []string
}

// Bands are the influence thresholds the derivation runs on. All values are
// tunable configuration, not contracts.
type Bands struct {
	ExclusiveMin      float64 `yaml:"exclusive_min"`
	ExclusiveOtherMax float64 `yaml:"exclusive_other_max"`
	DominantMin       float64 `yaml:"dominant_min"`
	DominantLead      float64 `yaml:"dominant_lead"`
	ContestedMin      float64 `yaml:"contested_min"`
}

func DefaultBands() Bands {
	return Bands{
		ExclusiveMin:      80,
		ExclusiveOtherMax: 20,
		DominantMin:       41,
		DominantLead:      20,
		ContestedMin:      40,
	}
}

// DeriveOwnership classifies a unit from its current influence values.
// Pure function: same input always yields the same Ownership. Ties between
// equal values break on faction id so the holder is stable across calls.
func DeriveOwnership(values map[string]float64, b Bands) Ownership {
	if len(values) == 0 {
		return Ownership{State: Neutral}
	}

	factions := make([]string, 0, len(values))
	for f := range values {
		factions = append(factions, f)
	}
	sort.Strings(factions)

	top, second := "", ""
	for _, f := range factions {
		v := values[f]
		switch {
		case top == "" || v > values[top]:
			second = top
			top = f
		case second == "" || v > values[second]:
			second = f
		}
	}

	topVal := values[top]
	secondVal := 0.0
	if second != "" {
		secondVal = values[second]
	}

	if topVal >= b.ExclusiveMin && secondVal < b.ExclusiveOtherMax {
		return Ownership{State: Exclusive, Holder: top}
	}
	if topVal >= b.DominantMin && topVal-secondVal >= b.DominantLead {
		return Ownership{State: Dominant, Holder: top}
	}
	var rivals []string
	for _, f := range factions {
		if values[f] >= b.ContestedMin {
			rivals = append(rivals, f)
		}
	}
	if len(rivals) >= 2 {
		return Ownership{State: Contested, Rivals: rivals}
	}
	return Ownership{State: Neutral}
}
