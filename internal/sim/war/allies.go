package war

import (
	"time"

	"github.com/google/uuid"
)

// autoRegisterPartyLocked registers both Kage's party members when a war is
// declared. Non-Kage members join the ally set outright (their grace clock
// stays unset until first login); Kage members only get a pending invite and
// must opt in themselves.
func (s *Store) autoRegisterPartyLocked(k key) {
	s.registerSideLocked(k, k.initiator, true)
	s.registerSideLocked(k, k.target, false)
}

func (s *Store) registerSideLocked(k key, kage uuid.UUID, initiatorSide bool) {
	for _, member := range s.oracle.PartyOf(kage) {
		if member == k.initiator || member == k.target {
			continue
		}
		if s.oracle.IsKage(member) {
			s.addPendingLocked(k, member, initiatorSide)
			continue
		}
		s.addAllyLocked(k, member, initiatorSide)
	}
}

func (s *Store) addPendingLocked(k key, p uuid.UUID, initiatorSide bool) bool {
	if s.allies[k].has(p) || s.pending[k].has(p) {
		return false
	}
	pend, ok := s.pending[k]
	if !ok {
		pend = newSides()
		s.pending[k] = pend
	}
	if initiatorSide {
		pend.initiatorSide[p] = struct{}{}
	} else {
		pend.defenderSide[p] = struct{}{}
	}
	return true
}

func (s *Store) addAllyLocked(k key, p uuid.UUID, initiatorSide bool) bool {
	al, ok := s.allies[k]
	if !ok {
		al = newSides()
		s.allies[k] = al
	}
	if al.has(p) {
		return false
	}
	if initiatorSide {
		al.initiatorSide[p] = struct{}{}
	} else {
		al.defenderSide[p] = struct{}{}
	}
	// Register an unset grace clock; it starts at the ally's first login.
	clocks, ok := s.allyGrace[k]
	if !ok {
		clocks = map[uuid.UUID]time.Time{}
		s.allyGrace[k] = clocks
	}
	if _, ok := clocks[p]; !ok {
		clocks[p] = time.Time{}
	}
	return true
}

// InviteAlly proposes candidate as an ally on leader's side of every war
// leader is a party to. Invites are idempotent and never promote straight to
// the ally set; the candidate must opt in. Returns the number of wars the
// invite now covers.
func (s *Store) InviteAlly(leader, candidate uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, k := range s.allKeysLocked() {
		if candidate == k.initiator || candidate == k.target {
			continue
		}
		switch leader {
		case k.initiator:
			if s.addPendingLocked(k, candidate, true) {
				count++
			}
		case k.target:
			if s.addPendingLocked(k, candidate, false) {
				count++
			}
		}
	}
	if count > 0 {
		s.auditLocked(leader, "ALLY_INVITED", candidate, "")
	}
	return count
}

// OptIn confirms every pending invite for ally, moving it into the matching
// ally set and starting its grace clock now. Calling it again is a no-op.
// Returns the number of wars joined.
func (s *Store) OptIn(ally uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	joined := 0
	for _, k := range s.allKeysLocked() {
		pend := s.pending[k]
		if pend == nil {
			continue
		}
		_, onInitiator := pend.initiatorSide[ally]
		_, onDefender := pend.defenderSide[ally]
		if !onInitiator && !onDefender {
			continue
		}
		delete(pend.initiatorSide, ally)
		delete(pend.defenderSide, ally)

		s.addAllyLocked(k, ally, onInitiator)
		// The ally is online to opt in, so the grace clock starts here.
		s.startAllyGraceLocked(k, ally, now)
		joined++
	}
	if joined > 0 {
		s.persistLocked()
		s.auditLocked(ally, "ALLY_OPT_IN", uuid.Nil, "")
	}
	return joined
}

// startAllyGraceLocked sets the ally's clock if it has not started yet.
// Once running it is never reset short of the war ending.
func (s *Store) startAllyGraceLocked(k key, ally uuid.UUID, now time.Time) {
	clocks, ok := s.allyGrace[k]
	if !ok {
		clocks = map[uuid.UUID]time.Time{}
		s.allyGrace[k] = clocks
	}
	if t, ok := clocks[ally]; !ok || t.IsZero() {
		clocks[ally] = now
	}
}

func (s *Store) allyGraceOverLocked(k key, ally uuid.UUID, now time.Time) bool {
	clocks := s.allyGrace[k]
	if clocks == nil {
		return false
	}
	start, ok := clocks[ally]
	if !ok || start.IsZero() {
		return false
	}
	return now.Sub(start) >= s.cfg.AllyGracePeriod
}

// cascadeAlliesLocked grants claim bypass to every ally of the war whose own
// grace has elapsed and who has not been granted yet. Grants that fail (ally
// unreachable) are retried on later ticks; successful grants are recorded
// and never re-issued.
func (s *Store) cascadeAlliesLocked(k key, now time.Time) {
	if !s.graceOverLocked(k, now) {
		return
	}
	al := s.allies[k]
	if al == nil {
		return
	}
	for ally := range al.initiatorSide {
		s.grantAllyLocked(k, ally, now)
	}
	for ally := range al.defenderSide {
		s.grantAllyLocked(k, ally, now)
	}
}

func (s *Store) grantAllyLocked(k key, ally uuid.UUID, now time.Time) {
	if !s.allyGraceOverLocked(k, ally, now) {
		return
	}
	granted, ok := s.allyApplied[k]
	if !ok {
		granted = map[uuid.UUID]struct{}{}
		s.allyApplied[k] = granted
	}
	if _, ok := granted[ally]; ok {
		return
	}
	if !s.gateway.GrantBypass(ally) {
		return
	}
	granted[ally] = struct{}{}
	s.logger.Printf("ally bypass active: %s in war %s vs %s",
		s.oracle.NameOf(ally), s.oracle.NameOf(k.initiator), s.oracle.NameOf(k.target))
}
