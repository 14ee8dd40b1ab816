package protocol

// Action kinds accepted in ACT messages.
const (
	ActionSecure = "SECURE" // completed objective, influence gain
	ActionStrike = "STRIKE" // siege dominance contribution
	ActionFall   = "FALL"   // combat loss, own-side ticket decrement
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	ClientName      string            `json:"client_name"`
	FactionID       string            `json:"faction_id"`
	Capabilities    HelloCapabilities `json:"capabilities,omitempty"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
	Filter          []string          `json:"filter,omitempty"`
}

type HelloCapabilities struct {
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	SessionID       string    `json:"session_id"`
	FactionID       string    `json:"faction_id"`
	Tick            uint64    `json:"tick"`
	MapParams       MapParams `json:"map_params"`
}

type MapParams struct {
	TickRateHz    int `json:"tick_rate_hz"`
	Regions       int `json:"regions"`
	Districts     int `json:"districts"`
	ControlPoints int `json:"control_points"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	Actions         []ActionReq `json:"actions"`
}

type ActionReq struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	UnitID    string  `json:"unit_id"`
	FactionID string  `json:"faction_id"`
	Magnitude float64 `json:"magnitude,omitempty"`
	SiegeID   string  `json:"siege_id,omitempty"`
}

// ACK (server -> client): explicit accept/reject per submitted action.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	ServerTick      uint64 `json:"server_tick,omitempty"`
}

// SUBSCRIBE (client -> server): replaces the session's broadcast filter.
// An empty filter matches every unit.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Filter          []string `json:"filter"`
}

// DIFF (server -> client): one batch per tick, commit order preserved.
type DiffMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Tick            uint64      `json:"tick"`
	Units           []UnitDiff  `json:"units,omitempty"`
	Sieges          []SiegeDiff `json:"sieges,omitempty"`
}

type UnitDiff struct {
	UnitID    string  `json:"unit_id"`
	FactionID string  `json:"faction_id"`
	Influence float64 `json:"influence"`
	Ownership string  `json:"ownership"`
	Holder    string  `json:"holder,omitempty"`
	Cause     string  `json:"cause,omitempty"`
}

// Siege lifecycle markers carried in SiegeDiff.Event.
const (
	SiegeCreated   = "CREATED"
	SiegePhase     = "PHASE"
	SiegeResolved  = "RESOLVED"
	SiegeAbandoned = "ABANDONED"
)

type SiegeDiff struct {
	SiegeID         string  `json:"siege_id"`
	UnitID          string  `json:"unit_id"`
	Event           string  `json:"event"`
	Phase           string  `json:"phase"`
	Dominance       float64 `json:"dominance"`
	Attacker        string  `json:"attacker"`
	Defender        string  `json:"defender"`
	AttackerTickets int     `json:"attacker_tickets"`
	DefenderTickets int     `json:"defender_tickets"`
	Winner          string  `json:"winner,omitempty"`
}

// OwnershipNotice is the fire-and-forget payload posted to the asset
// pipeline when a unit's holder changes. Consumers cannot reply.
type OwnershipNotice struct {
	SchemaVersion string `json:"schema_version"`
	UnitID        string `json:"unit_id"`
	OldHolder     string `json:"old_holder"`
	NewHolder     string `json:"new_holder"`
	Tick          uint64 `json:"tick"`
}
