// Package war tracks declared wars between Kage, their grace timers, the
// two-Kage bypass vote, and per-ally grace clocks. The Store is the single
// owner of all war state; commands, the tick driver and the login hook all
// serialize through its lock.
package war

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/persistence/warfile"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/village"
)

// Oracle answers identity and rank questions about principals. Read-only.
type Oracle interface {
	Resolve(p uuid.UUID) bool
	IsKage(p uuid.UUID) bool
	VillageOf(p uuid.UUID) (village.ID, bool)
	// PartyOf lists the members of p's party, excluding p itself.
	PartyOf(p uuid.UUID) []uuid.UUID
	NameOf(p uuid.UUID) string
}

// Gateway toggles claim-protection bypass for a principal. Both calls are
// idempotent and must return false (never panic) when the principal is
// unreachable.
type Gateway interface {
	GrantBypass(p uuid.UUID) bool
	RevokeBypass(p uuid.UUID) bool
}

// Saver persists a war snapshot. Implemented in internal/persistence/warfile.
type Saver interface {
	SaveWars(save warfile.SaveV1) error
}

// AuditLogger records war lifecycle events. Implemented in
// internal/persistence/indexdb. May be nil.
type AuditLogger interface {
	WriteWarAudit(entry AuditEntry) error
}

type AuditEntry struct {
	AtMs        int64  `json:"at_ms"`
	Actor       string `json:"actor"`
	Action      string `json:"action"` // e.g. "DECLARE"
	Counterpart string `json:"counterpart,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

type Config struct {
	GracePeriod     time.Duration
	AllyGracePeriod time.Duration
}

type key struct {
	initiator uuid.UUID
	target    uuid.UUID
}

func (k key) String() string {
	return k.initiator.String() + ":" + k.target.String()
}

// sides holds the two ally sets of one war. A principal appears on at most
// one side and never as the war's own initiator or target.
type sides struct {
	initiatorSide map[uuid.UUID]struct{}
	defenderSide  map[uuid.UUID]struct{}
}

func newSides() *sides {
	return &sides{
		initiatorSide: map[uuid.UUID]struct{}{},
		defenderSide:  map[uuid.UUID]struct{}{},
	}
}

func (s *sides) has(p uuid.UUID) bool {
	if s == nil {
		return false
	}
	_, a := s.initiatorSide[p]
	_, d := s.defenderSide[p]
	return a || d
}

// Store is the authoritative war state. All fields are guarded by mu.
type Store struct {
	mu sync.Mutex

	cfg     Config
	clock   func() time.Time
	oracle  Oracle
	gateway Gateway
	logger  *log.Logger

	saver Saver       // optional
	audit AuditLogger // optional

	wars        map[uuid.UUID]map[uuid.UUID]struct{} // initiator -> targets
	starts      map[key]time.Time                    // declaredAt
	applied     map[key]struct{}                     // bypass active
	allies      map[key]*sides
	pending     map[key]*sides
	allyGrace   map[key]map[uuid.UUID]time.Time // zero time: not started yet
	allyApplied map[key]map[uuid.UUID]struct{}  // allies already granted
	votes       map[key]map[uuid.UUID]struct{}  // bypass votes, not persisted
}

func NewStore(cfg Config, oracle Oracle, gateway Gateway, logger *log.Logger) *Store {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = time.Hour
	}
	if cfg.AllyGracePeriod <= 0 {
		cfg.AllyGracePeriod = cfg.GracePeriod
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		cfg:         cfg,
		clock:       time.Now,
		oracle:      oracle,
		gateway:     gateway,
		logger:      logger,
		wars:        map[uuid.UUID]map[uuid.UUID]struct{}{},
		starts:      map[key]time.Time{},
		applied:     map[key]struct{}{},
		allies:      map[key]*sides{},
		pending:     map[key]*sides{},
		allyGrace:   map[key]map[uuid.UUID]time.Time{},
		allyApplied: map[key]map[uuid.UUID]struct{}{},
		votes:       map[key]map[uuid.UUID]struct{}{},
	}
}

func (s *Store) SetSaver(sv Saver)            { s.saver = sv }
func (s *Store) SetAuditLogger(a AuditLogger) { s.audit = a }

// SetClock replaces the time source. Used by tests.
func (s *Store) SetClock(clock func() time.Time) { s.clock = clock }

// Declare starts a war from initiator against target. Preconditions are
// checked in order; the first failure wins.
func (s *Store) Declare(initiator, target uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.oracle.Resolve(target) {
		return ErrUnknownPlayer
	}
	if !s.oracle.IsKage(initiator) {
		return fmt.Errorf("declare war: %w", ErrNotKage)
	}
	if !s.oracle.IsKage(target) {
		return fmt.Errorf("declare war: %w", ErrTargetNotKage)
	}
	if initiator == target {
		return ErrSelfWar
	}
	if s.warExistsLocked(initiator, target) {
		return ErrAlreadyAtWar
	}

	k := key{initiator, target}
	targets, ok := s.wars[initiator]
	if !ok {
		targets = map[uuid.UUID]struct{}{}
		s.wars[initiator] = targets
	}
	targets[target] = struct{}{}
	s.starts[k] = s.clock()
	s.allies[k] = newSides()
	delete(s.applied, k)
	delete(s.votes, k)

	s.persistLocked()
	s.auditLocked(initiator, "DECLARE", target, "")
	s.logger.Printf("war declared: %s vs %s", s.oracle.NameOf(initiator), s.oracle.NameOf(target))

	s.autoRegisterPartyLocked(k)
	return nil
}

// End terminates a war. Only the declaring side's key matches; callers
// enforce that the requester is the initiator by passing it first.
func (s *Store) End(initiator, target uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.warExistsLocked(initiator, target) {
		return ErrNoSuchWar
	}

	k := key{initiator, target}
	if targets := s.wars[initiator]; targets != nil {
		delete(targets, target)
		if len(targets) == 0 {
			delete(s.wars, initiator)
		}
	}
	delete(s.starts, k)
	delete(s.applied, k)
	delete(s.allies, k)
	delete(s.pending, k)
	delete(s.allyGrace, k)
	delete(s.allyApplied, k)
	delete(s.votes, k)

	// Best effort: re-enable protection for both Kage. Failures are logged,
	// never fatal; the war is gone regardless.
	if !s.gateway.RevokeBypass(initiator) {
		s.logger.Printf("end war: could not restore protection for %s (offline?)", s.oracle.NameOf(initiator))
	}
	if !s.gateway.RevokeBypass(target) {
		s.logger.Printf("end war: could not restore protection for %s (offline?)", s.oracle.NameOf(target))
	}

	s.persistLocked()
	s.auditLocked(initiator, "END", target, "")
	s.logger.Printf("war ended: %s vs %s", s.oracle.NameOf(initiator), s.oracle.NameOf(target))
	return nil
}

// warExistsLocked reports a war for the exact (initiator, target) direction.
func (s *Store) warExistsLocked(initiator, target uuid.UUID) bool {
	targets, ok := s.wars[initiator]
	if !ok {
		return false
	}
	_, ok = targets[target]
	return ok
}

// resolveLocked finds the directional key matching an unordered pair.
func (s *Store) resolveLocked(a, b uuid.UUID) (key, bool) {
	if s.warExistsLocked(a, b) {
		return key{a, b}, true
	}
	if s.warExistsLocked(b, a) {
		return key{b, a}, true
	}
	return key{}, false
}

func (s *Store) graceOverLocked(k key, now time.Time) bool {
	start, ok := s.starts[k]
	if !ok {
		return false
	}
	return now.Sub(start) >= s.cfg.GracePeriod
}

// allKeysLocked returns every live war key in a deterministic order.
func (s *Store) allKeysLocked() []key {
	keys := make([]key, 0, len(s.starts))
	for initiator, targets := range s.wars {
		for target := range targets {
			keys = append(keys, key{initiator, target})
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// persistLocked snapshots wars and grace starts to the saver. Write failures
// leave in-memory state authoritative; the next successful write carries the
// missed changes too.
func (s *Store) persistLocked() {
	if s.saver == nil {
		return
	}
	if err := s.saver.SaveWars(s.snapshotLocked()); err != nil {
		s.logger.Printf("save wars: %v", err)
	}
}

func (s *Store) snapshotLocked() warfile.SaveV1 {
	save := warfile.SaveV1{
		Version: warfile.Version,
		Wars:    map[string][]string{},
		Starts:  map[string]int64{},
	}
	for initiator, targets := range s.wars {
		list := make([]string, 0, len(targets))
		for target := range targets {
			list = append(list, target.String())
		}
		sort.Strings(list)
		save.Wars[initiator.String()] = list
	}
	for k, start := range s.starts {
		save.Starts[k.String()] = start.UnixMilli()
	}
	return save
}

// Restore replaces all war state wholesale from a loaded save. Ally sets,
// pending invites and bypass votes are not persisted and restart empty; the
// wars themselves stay alive.
func (s *Store) Restore(save warfile.SaveV1) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wars = map[uuid.UUID]map[uuid.UUID]struct{}{}
	s.starts = map[key]time.Time{}
	s.applied = map[key]struct{}{}
	s.allies = map[key]*sides{}
	s.pending = map[key]*sides{}
	s.allyGrace = map[key]map[uuid.UUID]time.Time{}
	s.allyApplied = map[key]map[uuid.UUID]struct{}{}
	s.votes = map[key]map[uuid.UUID]struct{}{}

	for initStr, targetStrs := range save.Wars {
		initiator, err := uuid.Parse(initStr)
		if err != nil {
			s.logger.Printf("restore wars: bad initiator %q: %v", initStr, err)
			continue
		}
		for _, targetStr := range targetStrs {
			target, err := uuid.Parse(targetStr)
			if err != nil {
				s.logger.Printf("restore wars: bad target %q: %v", targetStr, err)
				continue
			}
			k := key{initiator, target}
			targets, ok := s.wars[initiator]
			if !ok {
				targets = map[uuid.UUID]struct{}{}
				s.wars[initiator] = targets
			}
			targets[target] = struct{}{}
			s.allies[k] = newSides()

			if ms, ok := save.Starts[k.String()]; ok {
				s.starts[k] = time.UnixMilli(ms)
			} else {
				// No recorded start: treat grace as already served.
				s.starts[k] = s.clock().Add(-s.cfg.GracePeriod)
			}
		}
	}
	s.logger.Printf("restored %d wars", len(s.starts))
}

func (s *Store) auditLocked(actor uuid.UUID, action string, counterpart uuid.UUID, detail string) {
	if s.audit == nil {
		return
	}
	entry := AuditEntry{
		AtMs:   s.clock().UnixMilli(),
		Actor:  actor.String(),
		Action: action,
		Detail: detail,
	}
	if counterpart != uuid.Nil {
		entry.Counterpart = counterpart.String()
	}
	if err := s.audit.WriteWarAudit(entry); err != nil {
		s.logger.Printf("war audit: %v", err)
	}
}
