package claims

import (
	"testing"

	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/rank"
)

func TestBridgeFailsWithoutSession(t *testing.T) {
	s := NewService(nil)
	b := NewBridge(s)
	p := uuid.New()

	if b.GrantBypass(p) {
		t.Fatalf("grant should fail while session is unloaded")
	}
	if b.RevokeBypass(p) {
		t.Fatalf("revoke should fail while session is unloaded")
	}

	s.LoadSession(p, rank.Genin)
	if !b.GrantBypass(p) {
		t.Fatalf("grant should succeed once loaded")
	}
	sess, ok := s.SessionOf(p)
	if !ok || sess.Protect {
		t.Fatalf("grant should have disabled protection: %+v", sess)
	}
	if !b.RevokeBypass(p) {
		t.Fatalf("revoke should succeed once loaded")
	}
	sess, _ = s.SessionOf(p)
	if !sess.Protect {
		t.Fatalf("revoke should have restored protection")
	}
}

func TestReloginKeepsProtectState(t *testing.T) {
	s := NewService(nil)
	b := NewBridge(s)
	p := uuid.New()

	s.LoadSession(p, rank.Genin)
	b.GrantBypass(p)
	s.LoadSession(p, rank.Chunin)

	sess, _ := s.SessionOf(p)
	if sess.Protect {
		t.Fatalf("re-login must not re-enable protection during a war")
	}
	if sess.BonusClaims != rank.Chunin.ClaimLimit() {
		t.Fatalf("re-login should refresh allowance: got %d", sess.BonusClaims)
	}
}

func TestClaimAllowance(t *testing.T) {
	s := NewService(nil)
	p := uuid.New()

	if s.TryPlaceClaim(p) {
		t.Fatalf("no session, no claims")
	}

	s.LoadSession(p, rank.Genin) // allowance 2
	for i := 0; i < rank.Genin.ClaimLimit(); i++ {
		if !s.TryPlaceClaim(p) {
			t.Fatalf("claim %d should fit the allowance", i)
		}
	}
	if s.TryPlaceClaim(p) {
		t.Fatalf("allowance exceeded")
	}

	if !s.ApplyClaimLimit(p, rank.Chunin) {
		t.Fatalf("apply limit should succeed on loaded session")
	}
	if !s.TryPlaceClaim(p) {
		t.Fatalf("promotion should open new claim slots")
	}

	s.ReleaseClaim(p)
	s.ReleaseClaim(p)
	sess, _ := s.SessionOf(p)
	if sess.Used != 1 {
		t.Fatalf("used: got %d want 1", sess.Used)
	}
}
