package roster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/village"
)

const fileVersion = 1

type fileV1 struct {
	Version int               `json:"version"`
	Players []playerRec       `json:"players"`
	Kage    map[string]string `json:"kage,omitempty"` // village -> player id
}

type playerRec struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Village      string   `json:"village"`
	Points       int      `json:"points"`
	Achievements []string `json:"achievements,omitempty"`
}

// Save writes the roster to path via a temp file and rename.
// Parties and the online set are runtime state and are not written.
func (r *Roster) Save(path string) error {
	r.mu.Lock()
	f := fileV1{Version: fileVersion, Kage: make(map[string]string)}
	for _, p := range r.players {
		rec := playerRec{
			ID:      p.ID.String(),
			Name:    p.Name,
			Village: string(p.Village),
			Points:  p.Points,
		}
		for a := range p.Achievements {
			rec.Achievements = append(rec.Achievements, a)
		}
		sort.Strings(rec.Achievements)
		f.Players = append(f.Players, rec)
	}
	sort.Slice(f.Players, func(i, j int) bool { return f.Players[i].ID < f.Players[j].ID })
	for v, id := range r.kage {
		f.Kage[string(v)] = id.String()
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(&f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal roster: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load replaces the roster's contents from path. A missing file leaves
// the roster empty. Records with an unparseable id or unknown village
// are skipped and logged.
func (r *Roster) Load(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var f fileV1
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("roster file corrupt: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.players = make(map[uuid.UUID]*Player)
	r.kage = make(map[village.ID]uuid.UUID)
	for _, rec := range f.Players {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			if r.logger != nil {
				r.logger.Printf("roster: skipping record with bad id %q: %v", rec.ID, err)
			}
			continue
		}
		v := village.ID(rec.Village)
		if !village.Valid(v) {
			if r.logger != nil {
				r.logger.Printf("roster: skipping %s with unknown village %q", rec.ID, rec.Village)
			}
			continue
		}
		p := &Player{
			ID:           id,
			Name:         rec.Name,
			Village:      v,
			Points:       rec.Points,
			Achievements: make(map[string]struct{}, len(rec.Achievements)),
		}
		for _, a := range rec.Achievements {
			p.Achievements[a] = struct{}{}
		}
		r.players[id] = p
	}
	for vs, ids := range f.Kage {
		v := village.ID(vs)
		id, err := uuid.Parse(ids)
		if err != nil || !village.Valid(v) {
			continue
		}
		if _, ok := r.players[id]; ok {
			r.kage[v] = id
		}
	}
	return nil
}
