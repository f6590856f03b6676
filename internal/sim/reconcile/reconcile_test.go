package reconcile

import (
	"testing"

	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/claims"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/perms"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/roster"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/village"
)

func TestPassConvergesGroupsAfterPointsChange(t *testing.T) {
	ros := roster.New(nil)
	prm := perms.NewService(nil)
	clm := claims.NewService(nil)
	rec := &Reconciler{Roster: ros, Perms: prm, Claims: clm}

	p := ros.Register(uuid.New(), "kakashi", village.Leaf)
	rec.Pass()
	if !prm.HasGroup(p.ID, "leaf_genin") {
		t.Fatalf("fresh player should be genin: %v", prm.GroupsOf(p.ID))
	}

	// Points land mid-jonin; the next pass promotes the groups.
	ros.AwardAchievement(p.ID, "end/kill_dragon", 150)
	rec.Pass()
	if prm.HasGroup(p.ID, "leaf_genin") || !prm.HasGroup(p.ID, "leaf_jonin") {
		t.Fatalf("groups after promotion: %v", prm.GroupsOf(p.ID))
	}
}

func TestPassSeatsAndUnseatsKage(t *testing.T) {
	ros := roster.New(nil)
	prm := perms.NewService(nil)
	rec := &Reconciler{Roster: ros, Perms: prm}

	a := ros.Register(uuid.New(), "hiruzen", village.Leaf)
	b := ros.Register(uuid.New(), "tsunade", village.Leaf)
	ros.SetKage(a.ID)
	rec.Pass()
	if !prm.HasGroup(a.ID, "leaf_kage") {
		t.Fatalf("seated kage should carry the group")
	}

	ros.SetKage(b.ID)
	rec.Pass()
	if prm.HasGroup(a.ID, "leaf_kage") {
		t.Fatalf("unseated kage keeps the group")
	}
	if !prm.HasGroup(b.ID, "leaf_kage") {
		t.Fatalf("new kage missing the group")
	}
}

func TestPassSeatsPromotedKage(t *testing.T) {
	ros := roster.New(nil)
	prm := perms.NewService(nil)
	rec := &Reconciler{Roster: ros, Perms: prm}

	a := ros.Register(uuid.New(), "minato", village.Leaf)
	b := ros.Register(uuid.New(), "orochimaru", village.Leaf)
	ros.AwardAchievement(a.ID, "end/kill_dragon", 205)
	rec.Pass()

	if id, ok := ros.KageOf(village.Leaf); !ok || id != a.ID {
		t.Fatalf("promotion should take the vacant seat: %v %v", id, ok)
	}
	if !prm.HasGroup(a.ID, "leaf_kage") {
		t.Fatalf("seated kage should carry the group: %v", prm.GroupsOf(a.ID))
	}

	// A second player reaching kage rank does not displace the holder.
	ros.AwardAchievement(b.ID, "end/kill_dragon", 205)
	rec.Pass()
	if id, _ := ros.KageOf(village.Leaf); id != a.ID {
		t.Fatalf("occupied seat changed hands: %v", id)
	}
	if !ros.IsKage(b.ID) {
		t.Fatalf("rank authority is independent of the seat")
	}
	// b carries the rank group but only the seat holder gets the nodes.
	if !prm.HasGroup(b.ID, "leaf_kage") {
		t.Fatalf("rank group should follow rank: %v", prm.GroupsOf(b.ID))
	}
	if prm.HasNode(b.ID, "claims.manage.village") {
		t.Fatalf("claim nodes belong to the seat holder")
	}
}

func TestPassUpdatesClaimAllowance(t *testing.T) {
	ros := roster.New(nil)
	prm := perms.NewService(nil)
	clm := claims.NewService(nil)
	rec := &Reconciler{Roster: ros, Perms: prm, Claims: clm}

	p := ros.Register(uuid.New(), "sakura", village.Leaf)
	clm.LoadSession(p.ID, p.Rank())
	ros.AwardAchievement(p.ID, "adventure/adventuring_time", 60)
	rec.Pass()

	sess, ok := clm.SessionOf(p.ID)
	if !ok {
		t.Fatalf("session should stay loaded")
	}
	got, _ := ros.Get(p.ID)
	if sess.BonusClaims != got.Rank().ClaimLimit() {
		t.Fatalf("allowance: got %d want %d", sess.BonusClaims, got.Rank().ClaimLimit())
	}
}
