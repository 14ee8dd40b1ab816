package hub

import (
	snapshotpkg "warfront.gg/internal/persistence/snapshot"
	"warfront.gg/internal/protocol"
	"warfront.gg/internal/sim/siege"
	"warfront.gg/internal/sim/territory"
)

// Session kinds.
const (
	KindPlayer = "PLAYER"
	KindAgent  = "AGENT" // synthetic faction-agent (AI strategy module)
)

type Config struct {
	TickRateHz         int
	SnapshotEveryTicks int
	MaxSubscribers     int
	MaxMagnitude       float64
	StrikeWeight       float64 // dominance per magnitude unit
	StaleTickWindow    uint64
	Siege              siege.Config
}

func (c *Config) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 10
	}
	if c.MaxSubscribers <= 0 {
		c.MaxSubscribers = 256
	}
	if c.MaxMagnitude <= 0 {
		c.MaxMagnitude = 10
	}
	if c.StrikeWeight <= 0 {
		c.StrikeWeight = 0.005
	}
	if c.StaleTickWindow <= 0 {
		c.StaleTickWindow = uint64(3 * c.TickRateHz)
	}
	if c.Siege == (siege.Config{}) {
		c.Siege = siege.DefaultConfig()
	}
}

type JoinRequest struct {
	ClientName string
	FactionID  string
	Kind       string // KindPlayer or KindAgent
	Filter     []string
	Out        chan []byte
	Resp       chan JoinResponse
}

// JoinResponse carries either a welcome or a rejection code (e.g. capacity).
// Kick is closed by the hub when it drops the session; transports must stop
// writing and close the connection.
type JoinResponse struct {
	SessionID string
	Code      string
	Welcome   protocol.WelcomeMsg
	Kick      <-chan struct{}
}

type SubmitEnvelope struct {
	SessionID string
	Act       protocol.ActMsg
}

type SubscribeRequest struct {
	SessionID string
	Filter    []string
}

type session struct {
	ID        string
	Name      string
	FactionID string
	Kind      string
	Out       chan []byte
	Kick      chan struct{} // closed by the hub when the session is dropped
	Filter    map[string]struct{}
}

func (s *session) matches(ancestry []string) bool {
	if len(s.Filter) == 0 {
		return true
	}
	for _, id := range ancestry {
		if _, ok := s.Filter[id]; ok {
			return true
		}
	}
	return false
}

// AuditEntry records a rejected submission or a siege lifecycle step.
// Implemented in internal/persistence/log.
type AuditEntry struct {
	Tick      uint64 `json:"tick"`
	SessionID string `json:"session_id,omitempty"`
	ActionID  string `json:"action_id,omitempty"`
	Kind      string `json:"kind"`
	UnitID    string `json:"unit_id,omitempty"`
	SiegeID   string `json:"siege_id,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// Notifier receives fire-and-forget ownership-change notices for the asset
// pipeline. Implementations must never block the hub loop.
type Notifier interface {
	NotifyOwnership(protocol.OwnershipNotice)
}

type Metrics struct {
	Tick     uint64  `json:"tick"`
	Sessions int     `json:"sessions"`
	Sieges   int     `json:"sieges"`
	EventSeq uint64  `json:"event_seq"`
	StepMS   float64 `json:"step_ms"`
	Kicked   uint64  `json:"kicked"`

	QueueDepths QueueDepths `json:"queue_depths"`
}

type QueueDepths struct {
	Submit int `json:"submit"`
	Join   int `json:"join"`
	Leave  int `json:"leave"`
}

// diffRecord pairs a committed change with the unit's ancestry chain so the
// broadcast fan-out can match subscriber filters without re-querying.
type diffRecord struct {
	Unit     protocol.UnitDiff
	Ancestry []string
}

type siegeRecord struct {
	Diff     protocol.SiegeDiff
	Ancestry []string
}

type snapReq struct {
	Resp chan snapshotpkg.SnapshotV1
}

func holderOf(o territory.Ownership) string {
	if o.State == territory.Dominant || o.State == territory.Exclusive {
		return o.Holder
	}
	return ""
}
