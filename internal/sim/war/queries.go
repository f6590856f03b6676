package war

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Info identifies one directional war.
type Info struct {
	Initiator uuid.UUID
	Target    uuid.UUID
}

// Status is a read-only view of one war for display. No caller needs
// structural access to store internals.
type Status struct {
	Initiator       uuid.UUID
	Target          uuid.UUID
	DeclaredAt      time.Time
	GraceRemaining  time.Duration
	BypassActive    bool
	InitiatorAllies []uuid.UUID
	TargetAllies    []uuid.UUID
	PendingInvitees []uuid.UUID
}

// IsAtWar reports whether a and b have a war in either direction.
func (s *Store) IsAtWar(a, b uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resolveLocked(a, b)
	return ok
}

// IsBypassActive reports whether a and b are at war with the bypass granted,
// matching either direction.
func (s *Store) IsBypassActive(a, b uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.resolveLocked(a, b)
	if !ok {
		return false
	}
	_, ok = s.applied[k]
	return ok
}

// InvolvedInWar reports whether p is the initiator or target of any war.
func (s *Store) InvolvedInWar(p uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wars[p]; ok {
		return true
	}
	for _, targets := range s.wars {
		if _, ok := targets[p]; ok {
			return true
		}
	}
	return false
}

// WarsFor lists every war p leads or defends.
func (s *Store) WarsFor(p uuid.UUID) []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Info
	for _, k := range s.allKeysLocked() {
		if k.initiator == p || k.target == p {
			out = append(out, Info{Initiator: k.initiator, Target: k.target})
		}
	}
	return out
}

// AllWars lists every live war in deterministic order.
func (s *Store) AllWars() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := s.allKeysLocked()
	out := make([]Info, 0, len(keys))
	for _, k := range keys {
		out = append(out, Info{Initiator: k.initiator, Target: k.target})
	}
	return out
}

// StatusOf returns the display view of each war involving p, or of all wars
// when p is uuid.Nil.
func (s *Store) StatusOf(p uuid.UUID) []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	var out []Status
	for _, k := range s.allKeysLocked() {
		if p != uuid.Nil && k.initiator != p && k.target != p {
			continue
		}
		st := Status{
			Initiator:  k.initiator,
			Target:     k.target,
			DeclaredAt: s.starts[k],
		}
		if remaining := s.cfg.GracePeriod - now.Sub(s.starts[k]); remaining > 0 {
			st.GraceRemaining = remaining
		}
		_, st.BypassActive = s.applied[k]
		if al := s.allies[k]; al != nil {
			st.InitiatorAllies = sortedSet(al.initiatorSide)
			st.TargetAllies = sortedSet(al.defenderSide)
		}
		if pend := s.pending[k]; pend != nil {
			invitees := append(sortedSet(pend.initiatorSide), sortedSet(pend.defenderSide)...)
			sort.Slice(invitees, func(i, j int) bool { return invitees[i].String() < invitees[j].String() })
			st.PendingInvitees = invitees
		}
		out = append(out, st)
	}
	return out
}

// IsAllyGranted reports whether ally has been granted bypass for the war
// between a and b.
func (s *Store) IsAllyGranted(a, b, ally uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.resolveLocked(a, b)
	if !ok {
		return false
	}
	granted := s.allyApplied[k]
	if granted == nil {
		return false
	}
	_, ok = granted[ally]
	return ok
}

func sortedSet(set map[uuid.UUID]struct{}) []uuid.UUID {
	if len(set) == 0 {
		return nil
	}
	out := make([]uuid.UUID, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
