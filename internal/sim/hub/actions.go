package hub

import (
	"encoding/json"

	"warfront.gg/internal/protocol"
	"warfront.gg/internal/sim/engine"
	"warfront.gg/internal/sim/siege"
)

// applySubmit validates and applies every action in one ACT envelope. Each
// action gets an explicit ACK; rejects are logged and never mutate state.
// This is the sole admission point: components below the hub trust their
// input.
func (h *Hub) applySubmit(env SubmitEnvelope, now uint64, units *[]diffRecord, sieges *[]siegeRecord) {
	s := h.sessions[env.SessionID]
	if s == nil {
		return
	}

	stale := env.Act.Tick != 0 &&
		(env.Act.Tick+h.cfg.StaleTickWindow < now || env.Act.Tick > now+1)

	for _, a := range env.Act.Actions {
		var code, msg string
		if stale {
			code, msg = protocol.ErrStale, "act tick out of range"
		} else {
			code, msg = h.applyAction(s, a, now, units, sieges)
		}
		h.ack(s, a.ID, now, code, msg)
		if code != "" {
			h.audit(AuditEntry{
				Tick: now, SessionID: s.ID, ActionID: a.ID, Kind: a.Kind,
				UnitID: a.UnitID, SiegeID: a.SiegeID, Code: code, Message: msg,
			})
		}
	}
}

func (h *Hub) applyAction(s *session, a protocol.ActionReq, now uint64, units *[]diffRecord, sieges *[]siegeRecord) (code, msg string) {
	faction := a.FactionID
	if faction == "" {
		faction = s.FactionID
	}
	if faction != s.FactionID {
		return protocol.ErrNoPermission, "session not authorized for faction"
	}
	unit, err := h.store.Unit(a.UnitID)
	if err != nil {
		return protocol.ErrUnknownUnit, a.UnitID
	}
	// FALL is a pure ticket event and carries no magnitude.
	if a.Kind != protocol.ActionFall && (a.Magnitude <= 0 || a.Magnitude > h.cfg.MaxMagnitude) {
		return protocol.ErrBadRequest, "magnitude out of range"
	}

	switch a.Kind {
	case protocol.ActionSecure:
		cause := engine.CauseObjective
		if s.Kind == KindAgent {
			cause = engine.CauseAIAction
		}
		ch, err := h.engine.ApplyDelta(now, unit.ID, faction, a.Magnitude, cause, s.ID)
		if err != nil {
			if h.logger != nil {
				h.logger.Printf("apply %s/%s: %v", unit.ID, faction, err)
			}
			return protocol.ErrInternal, "apply failed"
		}
		h.recordChange(ch, now, units, sieges)
		return "", ""

	case protocol.ActionStrike:
		si, code, msg := h.siegeFor(a, faction)
		if code != "" {
			return code, msg
		}
		if !si.AcceptsStrikes() {
			return protocol.ErrBadPhase, string(si.Phase)
		}
		si.Contribute(faction, a.Magnitude*h.cfg.StrikeWeight)
		return "", ""

	case protocol.ActionFall:
		si, code, msg := h.siegeFor(a, faction)
		if code != "" {
			return code, msg
		}
		// Only the two sides hold ticket pools. A third rival can strike
		// but has nothing to fall from.
		if faction != si.Attacker && faction != si.Defender {
			return protocol.ErrNoPermission, "faction holds no ticket pool in this siege"
		}
		si.LoseTicket(faction)
		return "", ""

	default:
		return protocol.ErrBadRequest, "unknown action kind"
	}
}

func (h *Hub) siegeFor(a protocol.ActionReq, faction string) (si *siege.Instance, code, msg string) {
	live := h.siegesByUnit[a.UnitID]
	if live == nil {
		return nil, protocol.ErrNoSiege, "no active siege on unit"
	}
	if a.SiegeID != "" && a.SiegeID != live.ID {
		return nil, protocol.ErrNoSiege, "siege id mismatch"
	}
	if !live.IsParticipant(faction) {
		return nil, protocol.ErrNoPermission, "faction not a siege participant"
	}
	return live, "", ""
}

func (h *Hub) ack(s *session, actionID string, now uint64, code, msg string) {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
		if msg == "" {
			msg = "unknown error code"
		}
	}
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          actionID,
		Accepted:        code == "",
		Code:            code,
		Message:         msg,
		ServerTick:      now,
	})
	if err != nil {
		return
	}
	select {
	case s.Out <- b:
	default:
		h.dropSession(s, "outbound queue overflow")
	}
}
