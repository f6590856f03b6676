package war

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/persistence/warfile"
	"github.com/NataleeRene/shinobi-alliance-smp-mod/internal/sim/village"
)

type fakeOracle struct {
	known map[uuid.UUID]bool
	kage  map[uuid.UUID]bool
	party map[uuid.UUID][]uuid.UUID
}

func (o *fakeOracle) Resolve(p uuid.UUID) bool { return o.known[p] }
func (o *fakeOracle) IsKage(p uuid.UUID) bool  { return o.kage[p] }
func (o *fakeOracle) VillageOf(p uuid.UUID) (village.ID, bool) {
	return village.Leaf, o.known[p]
}
func (o *fakeOracle) PartyOf(p uuid.UUID) []uuid.UUID { return o.party[p] }
func (o *fakeOracle) NameOf(p uuid.UUID) string       { return p.String()[:8] }

// fakeGateway succeeds unless the principal is marked offline.
type fakeGateway struct {
	offline map[uuid.UUID]bool
	granted map[uuid.UUID]int
	revoked map[uuid.UUID]int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		offline: map[uuid.UUID]bool{},
		granted: map[uuid.UUID]int{},
		revoked: map[uuid.UUID]int{},
	}
}

func (g *fakeGateway) GrantBypass(p uuid.UUID) bool {
	if g.offline[p] {
		return false
	}
	g.granted[p]++
	return true
}

func (g *fakeGateway) RevokeBypass(p uuid.UUID) bool {
	if g.offline[p] {
		return false
	}
	g.revoked[p]++
	return true
}

type captureSaver struct {
	last  warfile.SaveV1
	saves int
}

func (c *captureSaver) SaveWars(save warfile.SaveV1) error {
	c.last = save
	c.saves++
	return nil
}

type fixture struct {
	store   *Store
	oracle  *fakeOracle
	gateway *fakeGateway
	now     time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		oracle: &fakeOracle{
			known: map[uuid.UUID]bool{},
			kage:  map[uuid.UUID]bool{},
			party: map[uuid.UUID][]uuid.UUID{},
		},
		gateway: newFakeGateway(),
		now:     time.UnixMilli(1_000_000),
	}
	f.store = NewStore(cfg, f.oracle, f.gateway, nil)
	f.store.SetClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) addKage() uuid.UUID {
	id := uuid.New()
	f.oracle.known[id] = true
	f.oracle.kage[id] = true
	return id
}

func (f *fixture) addPlayer() uuid.UUID {
	id := uuid.New()
	f.oracle.known[id] = true
	return id
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func TestDeclarePreconditions(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()
	commoner := f.addPlayer()
	ghost := uuid.New()

	if err := f.store.Declare(a, ghost); !errors.Is(err, ErrUnknownPlayer) {
		t.Fatalf("unknown target: %v", err)
	}
	if err := f.store.Declare(commoner, b); !errors.Is(err, ErrNotKage) {
		t.Fatalf("commoner initiator: %v", err)
	}
	if err := f.store.Declare(a, commoner); !errors.Is(err, ErrTargetNotKage) {
		t.Fatalf("commoner target: %v", err)
	}
	if err := f.store.Declare(a, a); !errors.Is(err, ErrSelfWar) {
		t.Fatalf("self war: %v", err)
	}
	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := f.store.Declare(a, b); !errors.Is(err, ErrAlreadyAtWar) {
		t.Fatalf("duplicate: %v", err)
	}
	if !f.store.IsAtWar(a, b) || !f.store.IsAtWar(b, a) {
		t.Fatalf("IsAtWar must match either direction")
	}
}

func TestEndIsDirectional(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := f.store.End(b, a); !errors.Is(err, ErrNoSuchWar) {
		t.Fatalf("end from the wrong direction: %v", err)
	}
	if err := f.store.End(a, b); err != nil {
		t.Fatalf("end: %v", err)
	}
	if f.store.IsAtWar(a, b) {
		t.Fatalf("war should be gone")
	}
	if f.gateway.revoked[a] != 1 || f.gateway.revoked[b] != 1 {
		t.Fatalf("both Kage should have protection restored: %v", f.gateway.revoked)
	}
}

func TestGraceGatesTheGrant(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	f.advance(time.Hour - time.Millisecond)
	f.store.Tick(f.now)
	if f.store.IsBypassActive(a, b) {
		t.Fatalf("bypass before grace elapsed")
	}
	if f.gateway.granted[a] != 0 {
		t.Fatalf("no grant attempts during grace")
	}

	f.advance(time.Millisecond)
	f.store.Tick(f.now)
	if !f.store.IsBypassActive(a, b) {
		t.Fatalf("bypass should activate once grace elapses")
	}
	if f.gateway.granted[a] != 1 || f.gateway.granted[b] != 1 {
		t.Fatalf("both Kage granted exactly once: %v", f.gateway.granted)
	}

	// Later ticks must not re-grant.
	f.advance(time.Minute)
	f.store.Tick(f.now)
	if f.gateway.granted[a] != 1 {
		t.Fatalf("grant re-issued: %v", f.gateway.granted)
	}
}

func TestTickRetriesWhileKageOffline(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()
	f.gateway.offline[b] = true

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	f.advance(2 * time.Hour)
	f.store.Tick(f.now)
	if f.store.IsBypassActive(a, b) {
		t.Fatalf("bypass must wait for both grants")
	}

	f.gateway.offline[b] = false
	f.store.Tick(f.now)
	if !f.store.IsBypassActive(a, b) {
		t.Fatalf("retry after b comes back should activate")
	}
}

func TestBypassConsensus(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()

	if st := f.store.RequestBypass(a, b); st != BypassNoSuchWar {
		t.Fatalf("vote without a war: %v", st)
	}
	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}

	if st := f.store.RequestBypass(a, b); st != BypassRecorded {
		t.Fatalf("first vote: %v", st)
	}
	if f.store.IsBypassActive(a, b) {
		t.Fatalf("one vote is not consensus")
	}
	if st := f.store.RequestBypass(a, b); st != BypassAlreadyVoted {
		t.Fatalf("repeat vote: %v", st)
	}

	// The counterpart's vote completes consensus, in either lookup
	// direction.
	if st := f.store.RequestBypass(b, a); st != BypassActivated {
		t.Fatalf("second vote: %v", st)
	}
	if !f.store.IsBypassActive(a, b) {
		t.Fatalf("bypass should be active")
	}
	if st := f.store.RequestBypass(a, b); st != BypassAlreadyActive {
		t.Fatalf("vote after activation: %v", st)
	}

	// The grace timer collapsed with the bypass.
	for _, st := range f.store.StatusOf(a) {
		if st.GraceRemaining != 0 {
			t.Fatalf("grace remaining after bypass: %v", st.GraceRemaining)
		}
	}
}

func TestBypassGrantFailureKeepsVotesForRetry(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()
	f.gateway.offline[b] = true

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	f.store.RequestBypass(a, b)
	if st := f.store.RequestBypass(b, a); st != BypassGrantFailed {
		t.Fatalf("grant with b offline: %v", st)
	}
	if f.store.IsBypassActive(a, b) {
		t.Fatalf("failed grant must not activate")
	}

	// Either Kage can retry by re-issuing the request once both are
	// reachable; the earlier votes still stand.
	f.gateway.offline[b] = false
	if st := f.store.RequestBypass(a, b); st != BypassActivated {
		t.Fatalf("retry: %v", st)
	}
	if !f.store.IsBypassActive(a, b) {
		t.Fatalf("retry should activate the bypass")
	}
}

func TestAllyInviteOptInAndGrace(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour, AllyGracePeriod: 30 * time.Minute})
	a := f.addKage()
	b := f.addKage()
	ally := f.addPlayer()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if n := f.store.InviteAlly(a, ally); n != 1 {
		t.Fatalf("invite: %d", n)
	}
	// Invites never promote by themselves.
	if n := f.store.InviteAlly(a, ally); n != 0 {
		t.Fatalf("re-invite should be a no-op: %d", n)
	}
	st := f.store.StatusOf(a)[0]
	if len(st.PendingInvitees) != 1 || len(st.InitiatorAllies) != 0 {
		t.Fatalf("invite must stay pending: %+v", st)
	}

	if n := f.store.OptIn(ally); n != 1 {
		t.Fatalf("opt in: %d", n)
	}
	if n := f.store.OptIn(ally); n != 0 {
		t.Fatalf("opt in twice: %d", n)
	}
	st = f.store.StatusOf(a)[0]
	if len(st.InitiatorAllies) != 1 || len(st.PendingInvitees) != 0 {
		t.Fatalf("opt-in should move the invite: %+v", st)
	}

	// War grace over, but the ally's own clock started at opt-in and has
	// not elapsed yet.
	f.advance(time.Hour)
	f.store.Tick(f.now)
	if !f.store.IsBypassActive(a, b) {
		t.Fatalf("war bypass should be active")
	}
	// Opt-in happened an hour ago with 30m ally grace, so the same tick
	// cascades the ally too.
	if !f.store.IsAllyGranted(a, b, ally) {
		t.Fatalf("ally grace served, should be granted")
	}
	if f.gateway.granted[ally] != 1 {
		t.Fatalf("ally granted once: %v", f.gateway.granted)
	}
}

func TestAllyGraceWaitsOutItsOwnClock(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour, AllyGracePeriod: 30 * time.Minute})
	a := f.addKage()
	b := f.addKage()
	ally := f.addPlayer()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	// Opt in just before the war grace ends.
	f.advance(time.Hour - time.Minute)
	f.store.InviteAlly(b, ally)
	f.store.OptIn(ally)

	f.advance(time.Minute)
	f.store.Tick(f.now)
	if !f.store.IsBypassActive(a, b) {
		t.Fatalf("war bypass should be active")
	}
	if f.store.IsAllyGranted(a, b, ally) {
		t.Fatalf("ally grace not served yet")
	}

	f.advance(30 * time.Minute)
	f.store.Tick(f.now)
	if !f.store.IsAllyGranted(a, b, ally) {
		t.Fatalf("ally should be granted after its own grace")
	}
}

func TestPartyAutoRegistration(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()
	member := f.addPlayer()
	kageFriend := f.addKage()
	f.oracle.party[a] = []uuid.UUID{member, kageFriend}

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	st := f.store.StatusOf(a)[0]
	// Non-Kage party members become allies outright; Kage members only
	// get an invite.
	if len(st.InitiatorAllies) != 1 || st.InitiatorAllies[0] != member {
		t.Fatalf("party member should be an ally: %+v", st)
	}
	if len(st.PendingInvitees) != 1 || st.PendingInvitees[0] != kageFriend {
		t.Fatalf("kage friend should be pending: %+v", st)
	}
}

func TestAutoRegisteredAllyClockStartsAtLogin(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour, AllyGracePeriod: 30 * time.Minute})
	a := f.addKage()
	b := f.addKage()
	member := f.addPlayer()
	f.oracle.party[a] = []uuid.UUID{member}

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	// Hours pass with the member offline. The war bypass activates but the
	// member's grace clock never started.
	f.advance(5 * time.Hour)
	f.store.Tick(f.now)
	if !f.store.IsBypassActive(a, b) {
		t.Fatalf("war bypass should be active")
	}
	if f.store.IsAllyGranted(a, b, member) {
		t.Fatalf("offline ally's clock must not have started")
	}

	// First login starts the clock; the grant lands only after the ally
	// grace runs from here.
	f.store.HandleLogin(member)
	f.store.Tick(f.now)
	if f.store.IsAllyGranted(a, b, member) {
		t.Fatalf("grace starts at login, not before")
	}
	f.advance(30 * time.Minute)
	f.store.Tick(f.now)
	if !f.store.IsAllyGranted(a, b, member) {
		t.Fatalf("ally should be granted 30m after first login")
	}
}

func TestInvolvedInWar(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()
	bystander := f.addPlayer()

	if f.store.InvolvedInWar(a) {
		t.Fatalf("no war yet")
	}
	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if !f.store.InvolvedInWar(a) || !f.store.InvolvedInWar(b) {
		t.Fatalf("both principals are involved")
	}
	if f.store.InvolvedInWar(bystander) {
		t.Fatalf("bystander is not involved")
	}
	if err := f.store.End(a, b); err != nil {
		t.Fatalf("end: %v", err)
	}
	if f.store.InvolvedInWar(a) {
		t.Fatalf("involvement ends with the war")
	}
}

func TestOppositeDeclarationsAreDistinctWars(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare a->b: %v", err)
	}
	if err := f.store.Declare(b, a); err != nil {
		t.Fatalf("declare b->a: %v", err)
	}
	if wars := f.store.AllWars(); len(wars) != 2 {
		t.Fatalf("opposite declarations should coexist: %+v", wars)
	}

	// Each war ends only from its own initiator, and ending one leaves
	// the other standing.
	if err := f.store.End(a, b); err != nil {
		t.Fatalf("end a->b: %v", err)
	}
	if !f.store.IsAtWar(a, b) {
		t.Fatalf("b->a should survive a->b ending")
	}
	if err := f.store.End(a, b); !errors.Is(err, ErrNoSuchWar) {
		t.Fatalf("a cannot end b's war: %v", err)
	}
	if err := f.store.End(b, a); err != nil {
		t.Fatalf("end b->a: %v", err)
	}
	if f.store.IsAtWar(a, b) {
		t.Fatalf("both wars should be gone")
	}
}

func TestLoginReappliesActiveBypass(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	f.advance(time.Hour)
	f.store.Tick(f.now)
	if f.gateway.granted[b] != 1 {
		t.Fatalf("activation grant: %v", f.gateway.granted)
	}

	// Reconnecting rebuilds b's session in its protected default, so the
	// login path must issue the grant again even though the war is
	// already marked applied.
	if n := f.store.HandleLogin(b); n != 0 {
		t.Fatalf("pending invites: %d", n)
	}
	if f.gateway.granted[b] != 2 {
		t.Fatalf("login should re-apply the bypass: %v", f.gateway.granted)
	}
	if f.gateway.granted[a] != 1 {
		t.Fatalf("the other side is untouched: %v", f.gateway.granted)
	}
}

func TestLoginReappliesGrantedAllyBypass(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour, AllyGracePeriod: time.Minute})
	a := f.addKage()
	b := f.addKage()
	ally := f.addPlayer()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	f.store.InviteAlly(a, ally)
	f.store.OptIn(ally)
	f.advance(time.Hour)
	f.store.Tick(f.now)
	if !f.store.IsAllyGranted(a, b, ally) {
		t.Fatalf("ally should be granted")
	}
	if f.gateway.granted[ally] != 1 {
		t.Fatalf("ally grant count: %v", f.gateway.granted)
	}

	f.store.HandleLogin(ally)
	if f.gateway.granted[ally] != 2 {
		t.Fatalf("login should re-apply the ally's bypass: %v", f.gateway.granted)
	}
}

func TestHandleLoginCountsPendingInvites(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()
	c := f.addKage()
	d := f.addKage()
	invitee := f.addPlayer()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if err := f.store.Declare(c, d); err != nil {
		t.Fatalf("declare: %v", err)
	}
	f.store.InviteAlly(a, invitee)
	f.store.InviteAlly(c, invitee)

	if n := f.store.HandleLogin(invitee); n != 2 {
		t.Fatalf("pending invites at login: %d", n)
	}
	f.store.OptIn(invitee)
	if n := f.store.HandleLogin(invitee); n != 0 {
		t.Fatalf("invites after opt-in: %d", n)
	}
}

func TestBypassCollapsesAllyClocks(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour, AllyGracePeriod: 30 * time.Minute})
	a := f.addKage()
	b := f.addKage()
	ally := f.addPlayer()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	f.store.InviteAlly(a, ally)
	f.store.OptIn(ally)

	// A minute in, both Kage agree. The ally's clock collapses with the
	// war's and the cascade grants immediately.
	f.advance(time.Minute)
	f.store.RequestBypass(a, b)
	if st := f.store.RequestBypass(b, a); st != BypassActivated {
		t.Fatalf("consensus: %v", st)
	}
	if !f.store.IsAllyGranted(a, b, ally) {
		t.Fatalf("ally clock should collapse with the bypass")
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	saver := &captureSaver{}
	f.store.SetSaver(saver)
	a := f.addKage()
	b := f.addKage()
	c := f.addKage()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	f.advance(10 * time.Minute)
	if err := f.store.Declare(a, c); err != nil {
		t.Fatalf("declare: %v", err)
	}
	if saver.saves != 2 {
		t.Fatalf("each declare persists: %d", saver.saves)
	}

	g := newFixture(t, Config{GracePeriod: time.Hour})
	g.now = f.now
	g.store.Restore(saver.last)

	if !g.store.IsAtWar(a, b) || !g.store.IsAtWar(a, c) {
		t.Fatalf("wars should survive the round trip")
	}
	sts := g.store.StatusOf(a)
	if len(sts) != 2 {
		t.Fatalf("status count: %d", len(sts))
	}
	// The first war has 10 fewer grace minutes left than the second.
	g.advance(55 * time.Minute)
	g.store.Tick(g.now)
	if !g.store.IsBypassActive(a, b) {
		t.Fatalf("older war's grace has elapsed")
	}
	if g.store.IsBypassActive(a, c) {
		t.Fatalf("newer war still has grace left")
	}
}

func TestRestoreWithoutStartTreatsGraceAsServed(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()

	// A legacy save carries targets but no start times.
	f.store.Restore(warfile.SaveV1{
		Version: warfile.Version,
		Wars:    map[string][]string{a.String(): {b.String()}},
	})
	if !f.store.IsAtWar(a, b) {
		t.Fatalf("restored war missing")
	}
	f.store.Tick(f.now)
	if !f.store.IsBypassActive(a, b) {
		t.Fatalf("war without a recorded start grants on the first tick")
	}
}

func TestRestoreSkipsMalformedIDs(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()

	f.store.Restore(warfile.SaveV1{
		Version: warfile.Version,
		Wars: map[string][]string{
			"not-a-uuid": {b.String()},
			a.String():   {"also-bad", b.String()},
		},
	})
	wars := f.store.AllWars()
	if len(wars) != 1 || wars[0].Initiator != a || wars[0].Target != b {
		t.Fatalf("only the valid pair survives: %+v", wars)
	}
}

func TestEndClearsAllyState(t *testing.T) {
	f := newFixture(t, Config{GracePeriod: time.Hour})
	a := f.addKage()
	b := f.addKage()
	ally := f.addPlayer()

	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("declare: %v", err)
	}
	f.store.InviteAlly(a, ally)
	f.store.OptIn(ally)
	if err := f.store.End(a, b); err != nil {
		t.Fatalf("end: %v", err)
	}

	// A fresh war between the same Kage starts clean.
	if err := f.store.Declare(a, b); err != nil {
		t.Fatalf("redeclare: %v", err)
	}
	st := f.store.StatusOf(a)[0]
	if len(st.InitiatorAllies) != 0 || len(st.PendingInvitees) != 0 {
		t.Fatalf("ally state leaked across wars: %+v", st)
	}
}
