package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session state.
	ErrNotJoined    = "E_NOT_JOINED"
	ErrWorldBusy    = "E_WORLD_BUSY"
	ErrAlreadyTaken = "E_ALREADY_TAKEN"

	// Dialogue layer.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidTarget = "E_INVALID_TARGET"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrStale         = "E_STALE"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrNotJoined:       {},
	ErrWorldBusy:       {},
	ErrAlreadyTaken:    {},
	ErrBadRequest:      {},
	ErrInvalidTarget:   {},
	ErrRateLimit:       {},
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
