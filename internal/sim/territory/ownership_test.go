package territory

import (
	"reflect"
	"testing"
)

func TestDeriveOwnership_Bands(t *testing.T) {
	b := DefaultBands()

	cases := []struct {
		name   string
		values map[string]float64
		want   Ownership
	}{
		{"empty", nil, Ownership{State: Neutral}},
		{"single_low", map[string]float64{"red": 10}, Ownership{State: Neutral}},
		{"exclusive", map[string]float64{"red": 85, "blue": 10}, Ownership{State: Exclusive, Holder: "red"}},
		{"exclusive_at_floor", map[string]float64{"red": 80, "blue": 19.9}, Ownership{State: Exclusive, Holder: "red"}},
		{"exclusive_blocked_by_rival", map[string]float64{"red": 85, "blue": 20}, Ownership{State: Dominant, Holder: "red"}},
		{"dominant", map[string]float64{"red": 60, "blue": 30}, Ownership{State: Dominant, Holder: "red"}},
		{"dominant_lead_short", map[string]float64{"red": 55, "blue": 40}, Ownership{State: Contested, Rivals: []string{"blue", "red"}}},
		{"contested_pair", map[string]float64{"red": 45, "blue": 45}, Ownership{State: Contested, Rivals: []string{"blue", "red"}}},
		{"contested_floor", map[string]float64{"red": 40, "blue": 40}, Ownership{State: Contested, Rivals: []string{"blue", "red"}}},
		{"one_above_floor", map[string]float64{"red": 40, "blue": 39}, Ownership{State: Neutral}},
		{"three_way", map[string]float64{"red": 42, "blue": 41, "green": 44}, Ownership{State: Contested, Rivals: []string{"blue", "green", "red"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeriveOwnership(tc.values, b)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %+v want %+v", got, tc.want)
			}
		})
	}
}

// The derivation is evaluated exclusive-first: a faction meeting both the
// exclusive and dominant conditions classifies as Exclusive.
func TestDeriveOwnership_Precedence(t *testing.T) {
	got := DeriveOwnership(map[string]float64{"red": 95, "blue": 5}, DefaultBands())
	if got.State != Exclusive {
		t.Fatalf("want EXCLUSIVE, got %s", got.State)
	}
}

// Same input, same output: ties between equal values break on faction id.
func TestDeriveOwnership_DeterministicTieBreak(t *testing.T) {
	values := map[string]float64{"zeta": 60, "alpha": 60}
	first := DeriveOwnership(values, DefaultBands())
	for i := 0; i < 50; i++ {
		if got := DeriveOwnership(values, DefaultBands()); !reflect.DeepEqual(got, first) {
			t.Fatalf("nondeterministic derivation: %+v vs %+v", got, first)
		}
	}
	// Equal at 60 with zero lead: contested would need >=40 for both.
	if first.State != Contested {
		t.Fatalf("equal top values should contest, got %s", first.State)
	}
}
