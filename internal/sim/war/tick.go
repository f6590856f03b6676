package war

import (
	"time"

	"github.com/google/uuid"
)

// Tick re-evaluates every live war at the given time. Wars whose grace has
// elapsed get the bypass grant attempted (and retried here on later ticks if
// a Kage was offline); wars already granted still cascade so allies who
// joined or logged in late get theirs. This is the only retry path that
// needs no command.
func (s *Store) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.allKeysLocked() {
		if !s.graceOverLocked(k, now) {
			continue
		}
		if _, ok := s.applied[k]; ok {
			s.cascadeAlliesLocked(k, now)
			continue
		}
		if s.tryGrantLocked(k) {
			s.persistLocked()
			s.cascadeAlliesLocked(k, now)
		}
	}
}

// tryGrantLocked asks the gateway to grant bypass to both Kage and marks the
// war applied when both succeed. Partial grants are rolled forward, not
// back: the next tick retries until both sides are reachable.
func (s *Store) tryGrantLocked(k key) bool {
	if !s.gateway.GrantBypass(k.initiator) || !s.gateway.GrantBypass(k.target) {
		return false
	}
	s.applied[k] = struct{}{}
	s.logger.Printf("war bypass activated: %s vs %s",
		s.oracle.NameOf(k.initiator), s.oracle.NameOf(k.target))
	return true
}

// HandleLogin re-syncs a principal that just came online: retries grants for
// wars it leads whose grace has elapsed, re-applies already-active bypasses
// (a fresh session always comes up protected, so the grant must be issued
// again), and starts any of its unset ally grace clocks (ally grace begins
// at first login after joining, not at join time). Returns the number of
// wars with a pending invite for the principal so the caller can nudge it
// to opt in.
func (s *Store) HandleLogin(p uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	pendingInvites := 0
	for _, k := range s.allKeysLocked() {
		if p == k.initiator || p == k.target {
			if s.graceOverLocked(k, now) {
				if _, ok := s.applied[k]; ok {
					s.gateway.GrantBypass(p)
				} else if s.tryGrantLocked(k) {
					s.persistLocked()
				}
				s.cascadeAlliesLocked(k, now)
			}
			continue
		}
		if s.allies[k].has(p) {
			s.startAllyGraceLocked(k, p, now)
			if granted := s.allyApplied[k]; granted != nil {
				if _, ok := granted[p]; ok {
					s.gateway.GrantBypass(p)
				}
			}
		}
		if s.pending[k].has(p) {
			pendingInvites++
		}
	}
	return pendingInvites
}
