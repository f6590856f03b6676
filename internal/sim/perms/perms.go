// Package perms maintains permission-group membership for players. Groups
// mirror village and rank ("leaf", "leaf_jonin") plus the per-village kage
// group, and kage additionally carry the claim-management nodes.
package perms

import (
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/rank"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/village"
)

// Permission nodes granted alongside the kage group.
var kageNodes = []string{
	"claims.manage.village",
	"claims.trust.village",
}

type Service struct {
	mu     sync.Mutex
	groups map[uuid.UUID]map[string]struct{}
	nodes  map[uuid.UUID]map[string]struct{}
	logger *log.Logger
}

func NewService(logger *log.Logger) *Service {
	return &Service{
		groups: make(map[uuid.UUID]map[string]struct{}),
		nodes:  make(map[uuid.UUID]map[string]struct{}),
		logger: logger,
	}
}

// AddGroup is idempotent.
func (s *Service) AddGroup(p uuid.UUID, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addGroupLocked(p, group)
}

func (s *Service) addGroupLocked(p uuid.UUID, group string) {
	set, ok := s.groups[p]
	if !ok {
		set = make(map[string]struct{})
		s.groups[p] = set
	}
	if _, ok := set[group]; ok {
		return
	}
	set[group] = struct{}{}
	if s.logger != nil {
		s.logger.Printf("perms: +%s for %s", group, p)
	}
}

// RemoveGroup is idempotent.
func (s *Service) RemoveGroup(p uuid.UUID, group string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeGroupLocked(p, group)
}

func (s *Service) removeGroupLocked(p uuid.UUID, group string) {
	set, ok := s.groups[p]
	if !ok {
		return
	}
	if _, ok := set[group]; !ok {
		return
	}
	delete(set, group)
	if s.logger != nil {
		s.logger.Printf("perms: -%s for %s", group, p)
	}
}

func (s *Service) HasGroup(p uuid.UUID, group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.groups[p][group]
	return ok
}

func (s *Service) HasNode(p uuid.UUID, node string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[p][node]
	return ok
}

// GroupsOf returns a sorted copy of p's groups.
func (s *Service) GroupsOf(p uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.groups[p]))
	for g := range s.groups[p] {
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// SyncPlayer converges p's groups to exactly the village group plus the
// village_rank group, removing any stale rank or village groups from
// earlier promotions or transfers. The kage group is handled separately
// so a sync after a points change cannot strip a sitting kage.
func (s *Service) SyncPlayer(p uuid.UUID, v village.ID, r rank.Rank) {
	want := map[string]struct{}{
		string(v):  {},
		r.Group(v): {},
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for g := range s.groups[p] {
		if _, keep := want[g]; keep {
			continue
		}
		if isKageGroup(g) {
			continue
		}
		if isManagedGroup(g) {
			s.removeGroupLocked(p, g)
		}
	}
	for g := range want {
		s.addGroupLocked(p, g)
	}
}

// SetKage grants the village kage group and its permission nodes.
func (s *Service) SetKage(p uuid.UUID, v village.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addGroupLocked(p, v.KageGroup())
	set, ok := s.nodes[p]
	if !ok {
		set = make(map[string]struct{})
		s.nodes[p] = set
	}
	for _, n := range kageNodes {
		set[n] = struct{}{}
	}
}

// RemoveKage revokes the kage group and nodes. Idempotent.
func (s *Service) RemoveKage(p uuid.UUID, v village.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeGroupLocked(p, v.KageGroup())
	for _, n := range kageNodes {
		delete(s.nodes[p], n)
	}
}

// isManagedGroup reports whether the group is one this service owns, so
// SyncPlayer never touches groups assigned by server operators.
func isManagedGroup(g string) bool {
	for _, v := range village.All() {
		if g == string(v) || strings.HasPrefix(g, string(v)+"_") {
			return true
		}
	}
	return false
}

func isKageGroup(g string) bool {
	for _, v := range village.All() {
		if g == v.KageGroup() {
			return true
		}
	}
	return false
}
