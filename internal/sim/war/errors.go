package war

import (
	"errors"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/protocol"
)

var (
	ErrUnknownPlayer = errors.New("target player not found")
	ErrNotKage       = errors.New("only Kage can do that")
	ErrTargetNotKage = errors.New("you can only declare war on another Kage")
	ErrSelfWar       = errors.New("you cannot declare war on yourself")
	ErrAlreadyAtWar  = errors.New("you are already at war with that player")
	ErrNoSuchWar     = errors.New("no active war with that player")
)

// Code maps a store error onto its protocol error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownPlayer):
		return protocol.ErrUnknownPlayer
	case errors.Is(err, ErrNotKage), errors.Is(err, ErrTargetNotKage):
		return protocol.ErrNotKage
	case errors.Is(err, ErrSelfWar):
		return protocol.ErrSelfWar
	case errors.Is(err, ErrAlreadyAtWar):
		return protocol.ErrAlreadyAtWar
	case errors.Is(err, ErrNoSuchWar):
		return protocol.ErrNoSuchWar
	}
	return protocol.ErrInternal
}
