package territory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type UnitKind string

const (
	KindRegion       UnitKind = "REGION"
	KindDistrict     UnitKind = "DISTRICT"
	KindControlPoint UnitKind = "CONTROL_POINT"
)

// Unit is a node in the Region/District/ControlPoint hierarchy. Units are
// created at map-load time and immutable afterwards; only influence changes
// at runtime.
type Unit struct {
	ID             string
	ParentID       string
	Kind           UnitKind
	StrategicValue int
}

// Map is the static world layout plus the faction roster.
type Map struct {
	Factions []string
	Units    []Unit
}

type mapFile struct {
	Factions []string     `yaml:"factions"`
	Regions  []regionNode `yaml:"regions"`
}

type regionNode struct {
	ID             string         `yaml:"id"`
	StrategicValue int            `yaml:"strategic_value"`
	Districts      []districtNode `yaml:"districts"`
}

type districtNode struct {
	ID             string      `yaml:"id"`
	StrategicValue int         `yaml:"strategic_value"`
	Points         []pointNode `yaml:"points"`
}

type pointNode struct {
	ID             string `yaml:"id"`
	StrategicValue int    `yaml:"strategic_value"`
}

// LoadMap reads the world map YAML. The nested file shape guarantees every
// control point has exactly one district ancestor and every district exactly
// one region ancestor; duplicate ids are rejected.
func LoadMap(path string) (*Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf mapFile
	if err := yaml.Unmarshal(raw, &mf); err != nil {
		return nil, fmt.Errorf("worldmap.yaml: %w", err)
	}
	return buildMap(mf)
}

func buildMap(mf mapFile) (*Map, error) {
	if len(mf.Factions) < 2 {
		return nil, fmt.Errorf("worldmap: need at least 2 factions, got %d", len(mf.Factions))
	}
	if len(mf.Regions) == 0 {
		return nil, fmt.Errorf("worldmap: no regions")
	}
	seen := map[string]struct{}{}
	for _, f := range mf.Factions {
		if f == "" {
			return nil, fmt.Errorf("worldmap: empty faction id")
		}
		if _, dup := seen[f]; dup {
			return nil, fmt.Errorf("worldmap: duplicate faction %q", f)
		}
		seen[f] = struct{}{}
	}

	m := &Map{Factions: append([]string(nil), mf.Factions...)}
	ids := map[string]struct{}{}
	add := func(u Unit) error {
		if u.ID == "" {
			return fmt.Errorf("worldmap: empty unit id under %q", u.ParentID)
		}
		if _, dup := ids[u.ID]; dup {
			return fmt.Errorf("worldmap: duplicate unit id %q", u.ID)
		}
		ids[u.ID] = struct{}{}
		m.Units = append(m.Units, u)
		return nil
	}
	for _, r := range mf.Regions {
		if err := add(Unit{ID: r.ID, Kind: KindRegion, StrategicValue: r.StrategicValue}); err != nil {
			return nil, err
		}
		for _, d := range r.Districts {
			if err := add(Unit{ID: d.ID, ParentID: r.ID, Kind: KindDistrict, StrategicValue: d.StrategicValue}); err != nil {
				return nil, err
			}
			for _, p := range d.Points {
				if err := add(Unit{ID: p.ID, ParentID: d.ID, Kind: KindControlPoint, StrategicValue: p.StrategicValue}); err != nil {
					return nil, err
				}
			}
		}
	}
	return m, nil
}
