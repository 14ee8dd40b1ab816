package territory

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnitNotFound = errors.New("territory: unit not found")
var ErrFactionNotFound = errors.New("territory: faction not found")

// Store holds the unit hierarchy and per-faction influence rows.
//
// Reads take the shared lock and may run concurrently from any goroutine.
// Writes go exclusively through SetInfluence, called by the mutation engine
// from the hub loop, so mutations to a unit are totally ordered by arrival.
type Store struct {
	mu sync.RWMutex

	units     map[string]*Unit
	children  map[string][]string
	order     []string // unit ids in map-file order, for deterministic iteration
	factions  map[string]struct{}
	bands     Bands
	mapDigest string

	rows map[string]map[string]*Row
}

// Row is one FactionInfluence entry. Rows are created lazily on first write
// and never deleted; they only decay toward zero.
type Row struct {
	Value       float64
	DecayRate   float64 // influence lost per minute of inactivity
	UpdatedTick uint64
}

func NewStore(m *Map, bands Bands) *Store {
	s := &Store{
		units:    make(map[string]*Unit, len(m.Units)),
		children: make(map[string][]string),
		factions: make(map[string]struct{}, len(m.Factions)),
		bands:    bands,
		rows:     make(map[string]map[string]*Row),
	}
	for i := range m.Units {
		u := m.Units[i]
		s.units[u.ID] = &u
		s.order = append(s.order, u.ID)
		if u.ParentID != "" {
			s.children[u.ParentID] = append(s.children[u.ParentID], u.ID)
		}
	}
	for _, f := range m.Factions {
		s.factions[f] = struct{}{}
	}
	s.mapDigest = digestMap(m)
	return s
}

func digestMap(m *Map) string {
	h := sha256.New()
	for _, f := range m.Factions {
		fmt.Fprintf(h, "f:%s\n", f)
	}
	for _, u := range m.Units {
		fmt.Fprintf(h, "u:%s|%s|%s|%d\n", u.ID, u.ParentID, u.Kind, u.StrategicValue)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store) Bands() Bands { return s.bands }

// MapDigest identifies the loaded map topology. Snapshots carry it so a
// resume against a different map fails loudly instead of replaying onto the
// wrong units.
func (s *Store) MapDigest() string { return s.mapDigest }

func (s *Store) Unit(id string) (Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return Unit{}, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	return *u, nil
}

func (s *Store) HasFaction(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.factions[id]
	return ok
}

func (s *Store) Factions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.factions))
	for f := range s.factions {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// UnitIDs returns all unit ids in map-file order.
func (s *Store) UnitIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *Store) Children(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.units[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	return append([]string(nil), s.children[id]...), nil
}

// Ancestry returns the unit id followed by its ancestors up to the region.
// Broadcast filters match against this chain.
func (s *Store) Ancestry(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, id)
	}
	chain := []string{u.ID}
	for u.ParentID != "" {
		u = s.units[u.ParentID]
		chain = append(chain, u.ID)
	}
	return chain, nil
}

func (s *Store) Influence(unitID, factionID string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.units[unitID]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}
	if _, ok := s.factions[factionID]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrFactionNotFound, factionID)
	}
	r, ok := s.rows[unitID][factionID]
	if !ok {
		return 0, nil
	}
	return r.Value, nil
}

// SetInfluence writes a row value. Engine-internal: callers outside the
// mutation engine must go through ApplyDelta so events and invariants are
// never bypassed. Values outside [0,100] are a programming error and abort
// the operation without touching the store.
func (s *Store) SetInfluence(unitID, factionID string, value, decayRate float64, tick uint64) error {
	if value < 0 || value > 100 {
		return fmt.Errorf("territory: influence %v out of range for %s/%s", value, unitID, factionID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[unitID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}
	if _, ok := s.factions[factionID]; !ok {
		return fmt.Errorf("%w: %s", ErrFactionNotFound, factionID)
	}
	byFaction := s.rows[unitID]
	if byFaction == nil {
		byFaction = make(map[string]*Row)
		s.rows[unitID] = byFaction
	}
	r := byFaction[factionID]
	if r == nil {
		r = &Row{DecayRate: decayRate}
		byFaction[factionID] = r
	}
	r.Value = value
	r.UpdatedTick = tick
	return nil
}

// Values returns a copy of the unit's influence rows.
func (s *Store) Values(unitID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.units[unitID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
	}
	out := make(map[string]float64, len(s.rows[unitID]))
	for f, r := range s.rows[unitID] {
		out[f] = r.Value
	}
	return out, nil
}

func (s *Store) OwnershipOf(unitID string) (Ownership, error) {
	vals, err := s.Values(unitID)
	if err != nil {
		return Ownership{}, err
	}
	return DeriveOwnership(vals, s.bands), nil
}

// RowRef is a point-in-time view of one influence row, used by the decay
// sweep and snapshot export.
type RowRef struct {
	UnitID      string
	FactionID   string
	Value       float64
	DecayRate   float64
	UpdatedTick uint64
}

// NonZeroRows returns every row with a positive value, units in map-file
// order and factions sorted within a unit.
func (s *Store) NonZeroRows() []RowRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RowRef
	for _, uid := range s.order {
		for _, f := range sortedKeys(s.rows[uid]) {
			r := s.rows[uid][f]
			if r.Value <= 0 {
				continue
			}
			out = append(out, RowRef{UnitID: uid, FactionID: f, Value: r.Value, DecayRate: r.DecayRate, UpdatedTick: r.UpdatedTick})
		}
	}
	return out
}

// AllRows returns every row, including zeros, for snapshot export.
func (s *Store) AllRows() []RowRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RowRef
	for _, uid := range s.order {
		for _, f := range sortedKeys(s.rows[uid]) {
			r := s.rows[uid][f]
			out = append(out, RowRef{UnitID: uid, FactionID: f, Value: r.Value, DecayRate: r.DecayRate, UpdatedTick: r.UpdatedTick})
		}
	}
	return out
}

func sortedKeys(m map[string]*Row) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
