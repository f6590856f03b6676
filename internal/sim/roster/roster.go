// Package roster is the registry of known players: identity, village,
// points and rank, kage seats, parties, and the online set. The war store
// consults it through the war.Oracle interface.
package roster

import (
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/rank"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/village"
)

type Player struct {
	ID           uuid.UUID
	Name         string
	Village      village.ID
	Points       int
	Achievements map[string]struct{}
	Party        uuid.UUID // party leader, uuid.Nil when solo
}

func (p *Player) Rank() rank.Rank { return rank.FromPoints(p.Points) }

type Roster struct {
	mu      sync.Mutex
	players map[uuid.UUID]*Player
	kage    map[village.ID]uuid.UUID
	parties map[uuid.UUID]map[uuid.UUID]struct{} // leader -> members incl. leader
	online  map[uuid.UUID]struct{}
	logger  *log.Logger
}

func New(logger *log.Logger) *Roster {
	return &Roster{
		players: make(map[uuid.UUID]*Player),
		kage:    make(map[village.ID]uuid.UUID),
		parties: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		online:  make(map[uuid.UUID]struct{}),
		logger:  logger,
	}
}

// Register adds a new player or refreshes the stored name of a known one.
func (r *Roster) Register(id uuid.UUID, name string, v village.ID) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.players[id]; ok {
		if name != "" {
			p.Name = name
		}
		return p
	}
	p := &Player{
		ID:           id,
		Name:         name,
		Village:      v,
		Achievements: make(map[string]struct{}),
	}
	r.players[id] = p
	if r.logger != nil {
		r.logger.Printf("roster: registered %s (%s, %s)", name, id, v)
	}
	return p
}

// Login marks p online. Reports false for an unknown player.
func (r *Roster) Login(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.players[id]; !ok {
		return false
	}
	r.online[id] = struct{}{}
	return true
}

func (r *Roster) Logout(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.online, id)
}

func (r *Roster) IsOnline(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.online[id]
	return ok
}

// Get returns a copy of the player record.
func (r *Roster) Get(id uuid.UUID) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// SetKage seats p as the kage of their village, unseating any previous
// holder. Returns the previous kage and whether one was replaced.
func (r *Roster) SetKage(id uuid.UUID) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return uuid.Nil, false
	}
	prev, had := r.kage[p.Village]
	if had && prev == id {
		return uuid.Nil, false
	}
	r.kage[p.Village] = id
	if r.logger != nil {
		r.logger.Printf("roster: %s seated as %s", p.Name, p.Village.KageTitle())
	}
	return prev, had
}

func (r *Roster) RemoveKage(v village.ID) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, had := r.kage[v]
	delete(r.kage, v)
	return prev, had
}

func (r *Roster) KageOf(v village.ID) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.kage[v]
	return id, ok
}

// AwardAchievement grants points for an achievement once per player.
// Returns whether it counted and the player's new total, capped at
// rank.MaxPoints.
func (r *Roster) AwardAchievement(id uuid.UUID, achievement string, points int) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[id]
	if !ok {
		return false, 0
	}
	if _, done := p.Achievements[achievement]; done {
		return false, p.Points
	}
	p.Achievements[achievement] = struct{}{}
	p.Points += points
	if p.Points > rank.MaxPoints {
		p.Points = rank.MaxPoints
	}
	return true, p.Points
}

// JoinParty puts member in leader's party. Both must be registered.
func (r *Roster) JoinParty(leader, member uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	lp, ok := r.players[leader]
	mp, ok2 := r.players[member]
	if !ok || !ok2 {
		return false
	}
	set, ok := r.parties[leader]
	if !ok {
		set = map[uuid.UUID]struct{}{leader: {}}
		r.parties[leader] = set
		lp.Party = leader
	}
	set[member] = struct{}{}
	mp.Party = leader
	return true
}

func (r *Roster) LeaveParty(member uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.players[member]
	if !ok || p.Party == uuid.Nil {
		return
	}
	leader := p.Party
	delete(r.parties[leader], member)
	p.Party = uuid.Nil
	// A party with only its leader left dissolves.
	if member != leader && len(r.parties[leader]) == 1 {
		delete(r.parties, leader)
		if lp, ok := r.players[leader]; ok {
			lp.Party = uuid.Nil
		}
	}
	if member == leader {
		for m := range r.parties[leader] {
			if mp, ok := r.players[m]; ok {
				mp.Party = uuid.Nil
			}
		}
		delete(r.parties, leader)
	}
}

// Players returns copies of all records, sorted by id for determinism.
func (r *Roster) Players() []Player {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Oracle methods used by the war store.

func (r *Roster) Resolve(p uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.players[p]
	return ok
}

// IsKage reports whether p holds the Kage rank. War authority follows rank
// alone; the kage seat map only decides who carries the village title and
// its permission nodes.
func (r *Roster) IsKage(p uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	pl, ok := r.players[p]
	if !ok {
		return false
	}
	return pl.Rank() == rank.Kage
}

func (r *Roster) VillageOf(p uuid.UUID) (village.ID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pl, ok := r.players[p]
	if !ok {
		return "", false
	}
	return pl.Village, true
}

func (r *Roster) PartyOf(p uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	pl, ok := r.players[p]
	if !ok || pl.Party == uuid.Nil {
		return nil
	}
	var out []uuid.UUID
	for m := range r.parties[pl.Party] {
		if m != p {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (r *Roster) NameOf(p uuid.UUID) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pl, ok := r.players[p]; ok {
		return pl.Name
	}
	return ""
}
