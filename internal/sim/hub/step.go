package hub

import (
	"encoding/json"
	"time"

	"warfront.gg/internal/protocol"
	"warfront.gg/internal/sim/engine"
	"warfront.gg/internal/sim/siege"
	"warfront.gg/internal/sim/territory"
)

func (h *Hub) step(leaves []string, submits []SubmitEnvelope) {
	stepStart := time.Now()
	now := h.tick.Load()

	for _, id := range leaves {
		if s, ok := h.sessions[id]; ok {
			delete(h.sessions, id)
			close(s.Kick)
		}
	}

	var units []diffRecord
	var sieges []siegeRecord

	// Apply submissions in arrival order (FIFO per unit follows).
	for _, env := range submits {
		h.applySubmit(env, now, &units, &sieges)
	}

	// Decay sweep on its fixed cadence, same ApplyDelta path as gameplay.
	if h.engine.ShouldDecay(now) {
		for _, ch := range h.engine.DecayTick(now) {
			h.recordChange(ch, now, &units, &sieges)
		}
	}

	h.tickSieges(now, &units, &sieges)

	h.broadcast(now, units, sieges)

	if h.snapshotSink != nil && now != 0 && h.cfg.SnapshotEveryTicks > 0 &&
		now%uint64(h.cfg.SnapshotEveryTicks) == 0 {
		select {
		case h.snapshotSink <- h.ExportSnapshot(now):
		default:
			// Sink backed up; the next interval retries.
		}
	}

	h.tick.Add(1)
	h.metrics.Store(Metrics{
		Tick:     now + 1,
		Sessions: len(h.sessions),
		Sieges:   len(h.siegesByID),
		EventSeq: h.engine.EventSeq(),
		StepMS:   float64(time.Since(stepStart).Microseconds()) / 1000.0,
		Kicked:   h.kicked,
		QueueDepths: QueueDepths{
			Submit: len(h.submit),
			Join:   len(h.join),
			Leave:  len(h.leave),
		},
	})
}

// recordChange appends the unit diff and reacts to ownership transitions:
// siege creation on entering Contested, siege teardown when the unit leaves
// Contested on its own, and holder-change notices for the asset pipeline.
func (h *Hub) recordChange(ch engine.Change, now uint64, units *[]diffRecord, sieges *[]siegeRecord) {
	ancestry, err := h.store.Ancestry(ch.Event.UnitID)
	if err != nil {
		return
	}
	*units = append(*units, diffRecord{
		Unit: protocol.UnitDiff{
			UnitID:    ch.Event.UnitID,
			FactionID: ch.Event.FactionID,
			Influence: ch.Event.Value,
			Ownership: string(ch.Next.State),
			Holder:    holderOf(ch.Next),
			Cause:     string(ch.Event.Cause),
		},
		Ancestry: ancestry,
	})

	unit, err := h.store.Unit(ch.Event.UnitID)
	if err != nil {
		return
	}

	enteredContested := ch.Next.State == territory.Contested && ch.Prev.State != territory.Contested
	leftContested := ch.Prev.State == territory.Contested && ch.Next.State != territory.Contested

	if enteredContested && unit.Kind == territory.KindControlPoint {
		if _, live := h.siegesByUnit[unit.ID]; !live {
			h.createSiege(unit.ID, ch.Next, now, ancestry, sieges)
		}
	}
	if leftContested {
		if si, live := h.siegesByUnit[unit.ID]; live {
			// Influence collapse resolved the contest outside the siege.
			h.removeSiege(si)
			*sieges = append(*sieges, siegeRecord{Diff: h.siegeDiff(si, protocol.SiegeAbandoned, ""), Ancestry: ancestry})
			h.audit(AuditEntry{Tick: now, Kind: "SIEGE_ABANDONED", UnitID: unit.ID, SiegeID: si.ID})
		}
	}

	if h.notifier != nil {
		oldHolder, newHolder := holderOf(ch.Prev), holderOf(ch.Next)
		if oldHolder != newHolder {
			h.notifier.NotifyOwnership(protocol.OwnershipNotice{
				SchemaVersion: protocol.Version,
				UnitID:        unit.ID,
				OldHolder:     oldHolder,
				NewHolder:     newHolder,
				Tick:          now,
			})
		}
	}
}

// createSiege picks sides from the current influence standings: the faction
// holding the most ground defends, the strongest challenger attacks.
func (h *Hub) createSiege(unitID string, own territory.Ownership, now uint64, ancestry []string, sieges *[]siegeRecord) {
	values, err := h.store.Values(unitID)
	if err != nil || len(own.Rivals) < 2 {
		return
	}
	defender, attacker := own.Rivals[0], own.Rivals[1]
	for _, f := range own.Rivals {
		if values[f] > values[defender] {
			defender = f
		}
	}
	for _, f := range own.Rivals {
		if f == defender {
			continue
		}
		if attacker == defender || values[f] > values[attacker] {
			attacker = f
		}
	}

	si := siege.New(h.newSiegeID(), unitID, attacker, defender, own.Rivals, h.cfg.Siege)
	h.siegesByUnit[unitID] = si
	h.siegesByID[si.ID] = si
	h.siegeOrder = append(h.siegeOrder, si.ID)

	*sieges = append(*sieges, siegeRecord{Diff: h.siegeDiff(si, protocol.SiegeCreated, ""), Ancestry: ancestry})
	h.audit(AuditEntry{Tick: now, Kind: "SIEGE_CREATED", UnitID: unitID, SiegeID: si.ID})
}

func (h *Hub) removeSiege(si *siege.Instance) {
	delete(h.siegesByUnit, si.UnitID)
	delete(h.siegesByID, si.ID)
	for i, id := range h.siegeOrder {
		if id == si.ID {
			h.siegeOrder = append(h.siegeOrder[:i], h.siegeOrder[i+1:]...)
			break
		}
	}
}

func (h *Hub) tickSieges(now uint64, units *[]diffRecord, sieges *[]siegeRecord) {
	// Iterate a copy: resolution mutates the order slice.
	order := append([]string(nil), h.siegeOrder...)
	for _, id := range order {
		si := h.siegesByID[id]
		if si == nil {
			continue
		}
		res := si.Tick(now)
		ancestry, err := h.store.Ancestry(si.UnitID)
		if err != nil {
			continue
		}
		if res.Outcome != nil {
			// Remove first so the ownership change below is not taken
			// for an external collapse.
			h.removeSiege(si)
			ch, err := h.engine.ApplyDelta(now, si.UnitID, res.Outcome.Winner, si.VictoryDelta(), engine.CauseSiegeResolved, si.ID)
			if err != nil {
				if h.logger != nil {
					h.logger.Printf("siege %s resolve: %v", si.ID, err)
				}
			} else {
				h.recordChange(ch, now, units, sieges)
			}
			d := h.siegeDiff(si, protocol.SiegeResolved, res.Outcome.Winner)
			*sieges = append(*sieges, siegeRecord{Diff: d, Ancestry: ancestry})
			h.audit(AuditEntry{
				Tick: now, Kind: "SIEGE_RESOLVED", UnitID: si.UnitID, SiegeID: si.ID,
				Message: res.Outcome.Reason + " winner=" + res.Outcome.Winner,
			})
			// The influence clamp can leave the point contested even after
			// the victory swing. A contested control point always carries a
			// live siege, so open a fresh one.
			if _, live := h.siegesByUnit[si.UnitID]; !live {
				if own, oerr := h.store.OwnershipOf(si.UnitID); oerr == nil && own.State == territory.Contested {
					h.createSiege(si.UnitID, own, now, ancestry, sieges)
				}
			}
			continue
		}
		if res.PhaseChanged {
			*sieges = append(*sieges, siegeRecord{Diff: h.siegeDiff(si, protocol.SiegePhase, ""), Ancestry: ancestry})
			h.audit(AuditEntry{Tick: now, Kind: "SIEGE_PHASE", UnitID: si.UnitID, SiegeID: si.ID, Message: string(si.Phase)})
		}
	}
}

func (h *Hub) siegeDiff(si *siege.Instance, event, winner string) protocol.SiegeDiff {
	return protocol.SiegeDiff{
		SiegeID:         si.ID,
		UnitID:          si.UnitID,
		Event:           event,
		Phase:           string(si.Phase),
		Dominance:       si.Dominance,
		Attacker:        si.Attacker,
		Defender:        si.Defender,
		AttackerTickets: si.AttackerTickets,
		DefenderTickets: si.DefenderTickets,
		Winner:          winner,
	}
}

// broadcast builds one DIFF per subscriber, filtered by unit ancestry, and
// pushes it on the session's bounded queue. A full queue drops the session,
// never the global broadcast.
func (h *Hub) broadcast(now uint64, units []diffRecord, sieges []siegeRecord) {
	if len(units) == 0 && len(sieges) == 0 {
		return
	}
	for _, s := range h.sessions {
		msg := protocol.DiffMsg{
			Type:            protocol.TypeDiff,
			ProtocolVersion: protocol.Version,
			Tick:            now,
		}
		for _, r := range units {
			if s.matches(r.Ancestry) {
				msg.Units = append(msg.Units, r.Unit)
			}
		}
		for _, r := range sieges {
			if s.matches(r.Ancestry) {
				msg.Sieges = append(msg.Sieges, r.Diff)
			}
		}
		if len(msg.Units) == 0 && len(msg.Sieges) == 0 {
			continue
		}
		b, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		select {
		case s.Out <- b:
		default:
			h.dropSession(s, "outbound queue overflow")
		}
	}
}
