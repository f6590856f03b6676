// Package reconcile runs the coarse periodic pass that converges derived
// state to the roster: permission groups follow village and rank, claim
// allowances follow rank, and kage seats carry their group. It papers over
// anything a crash or a missed hook left stale.
package reconcile

import (
	"context"
	"log"
	"time"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/claims"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/perms"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/rank"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/roster"
)

type Reconciler struct {
	Roster *roster.Roster
	Perms  *perms.Service
	Claims *claims.Service
	Logger *log.Logger
}

// Pass runs one full reconciliation over every registered player. A player
// promoted to the Kage rank takes their village's seat when it is vacant;
// an occupied seat only changes hands through an explicit handover.
func (r *Reconciler) Pass() {
	n := 0
	for _, p := range r.Roster.Players() {
		r.Perms.SyncPlayer(p.ID, p.Village, p.Rank())
		if r.Claims != nil {
			r.Claims.ApplyClaimLimit(p.ID, p.Rank())
		}
		if p.Rank() == rank.Kage {
			if _, ok := r.Roster.KageOf(p.Village); !ok {
				r.Roster.SetKage(p.ID)
			}
		}
		// The kage group follows rank via SyncPlayer; the seat adds the
		// claim-management nodes on top. Only a player with neither rank
		// nor seat gets the group stripped here.
		if id, ok := r.Roster.KageOf(p.Village); ok && id == p.ID {
			r.Perms.SetKage(p.ID, p.Village)
		} else if p.Rank() != rank.Kage && r.Perms.HasGroup(p.ID, p.Village.KageGroup()) {
			r.Perms.RemoveKage(p.ID, p.Village)
		}
		n++
	}
	if r.Logger != nil {
		r.Logger.Printf("reconcile: synced %d players", n)
	}
}

// Run reconciles every interval until ctx is done. One pass runs
// immediately on start.
func (r *Reconciler) Run(ctx context.Context, every time.Duration) {
	r.Pass()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Pass()
		}
	}
}
