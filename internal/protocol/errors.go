package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// War rule layer.
	ErrNoSuchWar     = "E_NO_SUCH_WAR"
	ErrAlreadyAtWar  = "E_ALREADY_AT_WAR"
	ErrSelfWar       = "E_SELF_WAR"
	ErrNotKage       = "E_NOT_KAGE"
	ErrUnknownPlayer = "E_UNKNOWN_PLAYER"
	ErrGrantFailed   = "E_GRANT_FAILED"

	// Infrastructure.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrPersistFailed = "E_PERSIST_FAILED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrNoSuchWar:       {},
	ErrAlreadyAtWar:    {},
	ErrSelfWar:         {},
	ErrNotKage:         {},
	ErrUnknownPlayer:   {},
	ErrGrantFailed:     {},
	ErrBadRequest:      {},
	ErrPersistFailed:   {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
