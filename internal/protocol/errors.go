package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Admission/resource layer.
	ErrCapacity = "E_CAPACITY"
	ErrTimeout  = "E_TIMEOUT"

	// Action validation layer.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrUnknownUnit    = "E_UNKNOWN_UNIT"
	ErrUnknownFaction = "E_UNKNOWN_FACTION"
	ErrNoPermission   = "E_NO_PERMISSION"
	ErrNoSiege        = "E_NO_SIEGE"
	ErrBadPhase       = "E_BAD_PHASE"
	ErrStale          = "E_STALE"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrCapacity:        {},
	ErrTimeout:         {},
	ErrBadRequest:      {},
	ErrUnknownUnit:     {},
	ErrUnknownFaction:  {},
	ErrNoPermission:    {},
	ErrNoSiege:         {},
	ErrBadPhase:        {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
