package war

import "github.com/google/uuid"

// BypassStatus is the outcome of one RequestBypass call.
type BypassStatus int

const (
	BypassNoSuchWar BypassStatus = iota
	BypassRecorded
	BypassAlreadyVoted
	BypassAlreadyActive
	BypassActivated
	BypassGrantFailed // both agreed but the gateway could not grant
)

func (b BypassStatus) String() string {
	switch b {
	case BypassNoSuchWar:
		return "NO_SUCH_WAR"
	case BypassRecorded:
		return "RECORDED"
	case BypassAlreadyVoted:
		return "ALREADY_VOTED"
	case BypassAlreadyActive:
		return "ALREADY_ACTIVE"
	case BypassActivated:
		return "ACTIVATED"
	case BypassGrantFailed:
		return "GRANT_FAILED"
	}
	return "UNKNOWN"
}

// RequestBypass records requester's vote to skip the remaining grace of the
// war between requester and counterpart (either direction). When both Kage
// have voted the bypass is granted immediately; a failed grant keeps the
// votes so either side can retry by re-issuing the request.
func (s *Store) RequestBypass(requester, counterpart uuid.UUID) BypassStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.resolveLocked(requester, counterpart)
	if !ok {
		return BypassNoSuchWar
	}
	if _, ok := s.applied[k]; ok {
		return BypassAlreadyActive
	}

	votes, ok := s.votes[k]
	if !ok {
		votes = map[uuid.UUID]struct{}{}
		s.votes[k] = votes
	}
	if _, ok := votes[requester]; ok {
		// Same voter again: with full consensus pending this is the retry
		// path after a failed grant, otherwise just a duplicate vote.
		if !s.bothVotedLocked(k) {
			return BypassAlreadyVoted
		}
	} else {
		votes[requester] = struct{}{}
	}

	if !s.bothVotedLocked(k) {
		s.auditLocked(requester, "BYPASS_VOTE", counterpart, "")
		return BypassRecorded
	}

	if !s.gateway.GrantBypass(k.initiator) || !s.gateway.GrantBypass(k.target) {
		// Leave the votes in place; the requester is told to retry once
		// both Kage are reachable.
		s.logger.Printf("bypass agreed for %s vs %s but grant failed",
			s.oracle.NameOf(k.initiator), s.oracle.NameOf(k.target))
		return BypassGrantFailed
	}

	s.applied[k] = struct{}{}
	// Collapse the grace timer so queries and restarts agree it has elapsed.
	now := s.clock()
	s.starts[k] = now.Add(-s.cfg.GracePeriod)
	// Ally clocks collapse with it; allies still need the gateway to reach
	// them before they are recorded as granted.
	if clocks, ok := s.allyGrace[k]; ok {
		for ally := range clocks {
			clocks[ally] = now.Add(-s.cfg.AllyGracePeriod)
		}
	}
	delete(s.votes, k)

	s.persistLocked()
	s.cascadeAlliesLocked(k, now)
	s.auditLocked(requester, "BYPASS_ACTIVATED", counterpart, "")
	s.logger.Printf("bypass active: %s vs %s (both Kage agreed)",
		s.oracle.NameOf(k.initiator), s.oracle.NameOf(k.target))
	return BypassActivated
}

func (s *Store) bothVotedLocked(k key) bool {
	votes := s.votes[k]
	if votes == nil {
		return false
	}
	_, a := votes[k.initiator]
	_, b := votes[k.target]
	return a && b
}
