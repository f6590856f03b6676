// Package claims tracks per-player claim-protection sessions and exposes
// the bypass toggles the war store needs. A session exists only while the
// player is online; toggles against an unloaded session fail and the caller
// retries later.
package claims

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/rank"
)

// Session is the live claim config for one online player.
type Session struct {
	// Protect guards the player's claims from raids. Wars flip this off.
	Protect bool
	// BonusClaims is the rank-derived claim allowance.
	BonusClaims int
	// Used counts claims currently placed.
	Used int
}

type Service struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	logger   *log.Logger
}

func NewService(logger *log.Logger) *Service {
	return &Service{
		sessions: make(map[uuid.UUID]*Session),
		logger:   logger,
	}
}

// LoadSession registers p's claim config. Protection defaults on.
func (s *Service) LoadSession(p uuid.UUID, r rank.Rank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.sessions[p]; ok {
		// Double load without an unload in between keeps the protect
		// state and only refreshes the allowance.
		old.BonusClaims = r.ClaimLimit()
		return
	}
	s.sessions[p] = &Session{Protect: true, BonusClaims: r.ClaimLimit()}
}

func (s *Service) UnloadSession(p uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, p)
}

func (s *Service) SessionOf(p uuid.UUID) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[p]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// ApplyClaimLimit updates p's allowance after a rank change. No-op when
// the session is not loaded; the next login picks up the new rank.
func (s *Service) ApplyClaimLimit(p uuid.UUID, r rank.Rank) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[p]
	if !ok {
		return false
	}
	sess.BonusClaims = r.ClaimLimit()
	return true
}

// TryPlaceClaim reserves one claim slot if the allowance permits.
func (s *Service) TryPlaceClaim(p uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[p]
	if !ok || sess.Used >= sess.BonusClaims {
		return false
	}
	sess.Used++
	return true
}

func (s *Service) ReleaseClaim(p uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[p]; ok && sess.Used > 0 {
		sess.Used--
	}
}

func (s *Service) setProtect(p uuid.UUID, on bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[p]
	if !ok {
		return false
	}
	if sess.Protect != on {
		sess.Protect = on
		if s.logger != nil {
			s.logger.Printf("claims: protect=%v for %s", on, p)
		}
	}
	return true
}

// Bridge adapts the claim service to the war store's gateway. Grant means
// the player's claims become raidable; revoke restores protection. Both
// report false when the player has no loaded session, which the war tick
// retries until the player logs in.
type Bridge struct {
	svc *Service
}

func NewBridge(svc *Service) *Bridge { return &Bridge{svc: svc} }

func (b *Bridge) GrantBypass(p uuid.UUID) bool  { return b.svc.setProtect(p, false) }
func (b *Bridge) RevokeBypass(p uuid.UUID) bool { return b.svc.setProtect(p, true) }
