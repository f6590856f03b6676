package perms

import (
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/rank"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/village"
)

func TestSyncPlayerConverges(t *testing.T) {
	s := NewService(nil)
	p := uuid.New()

	s.SyncPlayer(p, village.Leaf, rank.Genin)
	want := []string{"leaf", "leaf_genin"}
	if got := s.GroupsOf(p); !reflect.DeepEqual(got, want) {
		t.Fatalf("groups: got %v want %v", got, want)
	}

	// Promotion drops the stale rank group.
	s.SyncPlayer(p, village.Leaf, rank.Jonin)
	want = []string{"leaf", "leaf_jonin"}
	if got := s.GroupsOf(p); !reflect.DeepEqual(got, want) {
		t.Fatalf("after promotion: got %v want %v", got, want)
	}

	// Village transfer drops all old-village groups.
	s.SyncPlayer(p, village.Sand, rank.Jonin)
	want = []string{"sand", "sand_jonin"}
	if got := s.GroupsOf(p); !reflect.DeepEqual(got, want) {
		t.Fatalf("after transfer: got %v want %v", got, want)
	}
}

func TestSyncPreservesUnmanagedAndKageGroups(t *testing.T) {
	s := NewService(nil)
	p := uuid.New()

	s.AddGroup(p, "moderator")
	s.SetKage(p, village.Mist)
	s.SyncPlayer(p, village.Mist, rank.Kage)

	for _, g := range []string{"moderator", "mist", "mist_kage"} {
		if !s.HasGroup(p, g) {
			t.Fatalf("group %q should survive sync", g)
		}
	}
}

func TestKageLifecycle(t *testing.T) {
	s := NewService(nil)
	p := uuid.New()

	s.SetKage(p, village.Stone)
	if !s.HasGroup(p, "stone_kage") {
		t.Fatalf("missing kage group")
	}
	if !s.HasNode(p, "claims.manage.village") {
		t.Fatalf("missing claim-manage node")
	}

	s.RemoveKage(p, village.Stone)
	if s.HasGroup(p, "stone_kage") || s.HasNode(p, "claims.manage.village") {
		t.Fatalf("kage group and nodes should be revoked")
	}
	// Second removal is a no-op.
	s.RemoveKage(p, village.Stone)
}

func TestAddRemoveGroupIdempotent(t *testing.T) {
	s := NewService(nil)
	p := uuid.New()

	s.AddGroup(p, "leaf")
	s.AddGroup(p, "leaf")
	if got := s.GroupsOf(p); len(got) != 1 {
		t.Fatalf("duplicate add: %v", got)
	}
	s.RemoveGroup(p, "leaf")
	s.RemoveGroup(p, "leaf")
	if got := s.GroupsOf(p); len(got) != 0 {
		t.Fatalf("remove: %v", got)
	}
}
