package session

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type recNotifier struct {
	events []string
}

func (n *recNotifier) LockChanged(id string, locked bool) {
	n.events = append(n.events, fmt.Sprintf("lock %s %v", id, locked))
}

func (n *recNotifier) RequestChanged(id string, requesting bool) {
	n.events = append(n.events, fmt.Sprintf("request %s %v", id, requesting))
}

type recRoster struct {
	last  Roster
	calls int
}

func (r *recRoster) RosterChanged(v Roster) { r.last, r.calls = v, r.calls+1 }

func hosting(t *testing.T) (*Context, *recNotifier, *recRoster) {
	t.Helper()
	n, r := &recNotifier{}, &recRoster{}
	c := NewContext(n, r)
	c.StartHost("ABC123")
	return c, n, r
}

func TestRoleTransitions(t *testing.T) {
	c := NewContext(nil, nil)
	if c.Role() != Idle {
		t.Fatalf("Role = %v, want idle", c.Role())
	}
	if err := c.MarkConnected(); !errors.Is(err, ErrNotGuest) {
		t.Errorf("MarkConnected while idle = %v, want ErrNotGuest", err)
	}

	c.StartGuest("XYZ")
	if c.Role() != Guest || c.Phase() != Connecting {
		t.Fatalf("after StartGuest role=%v phase=%v", c.Role(), c.Phase())
	}
	if err := c.MarkConnected(); err != nil || c.Phase() != Connected {
		t.Fatalf("MarkConnected = %v, phase %v", err, c.Phase())
	}

	c.StartHost("H")
	if c.Role() != Host || c.Phase() != Disconnected || c.Code() != "H" {
		t.Errorf("after StartHost role=%v phase=%v code=%q", c.Role(), c.Phase(), c.Code())
	}
	if _, err := c.AddGuest("g1"); err != nil {
		t.Fatal(err)
	}

	c.Reset()
	if c.Role() != Idle || c.GuestCount() != 0 || c.Mode() != HostOnly || !c.GuestLock() {
		t.Errorf("Reset left role=%v guests=%d mode=%v lock=%v", c.Role(), c.GuestCount(), c.Mode(), c.GuestLock())
	}
	if _, err := c.AddGuest("g2"); !errors.Is(err, ErrNotHost) {
		t.Errorf("AddGuest while idle = %v, want ErrNotHost", err)
	}
}

func TestAddGuestFollowsMode(t *testing.T) {
	c, _, r := hosting(t)
	g1, _ := c.AddGuest("g1")
	if g1.CanDraw || g1.Index != 1 {
		t.Errorf("host-only guest = %+v", g1)
	}
	c.SetAccessMode(All)
	g2, _ := c.AddGuest("g2")
	if !g2.CanDraw || g2.Index != 2 {
		t.Errorf("all-mode guest = %+v", g2)
	}
	if r.last.Total != 2 || r.last.Guests[0].DefaultName != "Invitado 1" {
		t.Errorf("roster = %+v", r.last)
	}
}

func TestSetAccessModeNotifies(t *testing.T) {
	c, n, _ := hosting(t)
	c.AddGuest("g1")
	c.AddGuest("g2")
	c.SetRequesting("g1", true)
	n.events = nil

	c.SetAccessMode(All)
	want := []string{"request g1 false", "request g2 false", "lock  false"}
	if strings.Join(n.events, ",") != strings.Join(want, ",") {
		t.Errorf("events = %q, want %q", n.events, want)
	}
	if c.GuestLock() {
		t.Errorf("guest lock still set in all mode")
	}

	n.events = nil
	c.SetAccessMode(All)
	if len(n.events) != 0 {
		t.Errorf("unchanged mode notified %v", n.events)
	}

	c.SetAccessMode(Custom)
	want = []string{"lock g1 false", "lock g2 false"}
	if strings.Join(n.events, ",") != strings.Join(want, ",") {
		t.Errorf("custom events = %q, want %q", n.events, want)
	}

	if err := c.SetAccessMode("everyone"); !errors.Is(err, ErrBadMode) {
		t.Errorf("bad mode = %v", err)
	}
}

func TestSetGuestCanDrawSwitchesToCustom(t *testing.T) {
	c, n, _ := hosting(t)
	c.AddGuest("g1")
	c.SetRequesting("g1", true)
	n.events = nil

	if err := c.SetGuestCanDraw("g1", true); err != nil {
		t.Fatal(err)
	}
	if c.Mode() != Custom {
		t.Errorf("mode = %v, want custom", c.Mode())
	}
	g, _ := c.Guest("g1")
	if !g.CanDraw || g.Requesting {
		t.Errorf("guest = %+v", g)
	}
	want := "lock g1 false,request g1 false"
	if got := strings.Join(n.events, ","); got != want {
		t.Errorf("events = %q, want %q", got, want)
	}

	c.SetAccessMode(All)
	c.SetGuestCanDraw("g1", false)
	if c.Mode() != Custom {
		t.Errorf("revoke in all mode left mode %v", c.Mode())
	}
	if err := c.SetGuestCanDraw("nobody", true); !errors.Is(err, ErrUnknownGuest) {
		t.Errorf("unknown guest = %v", err)
	}
}

func TestLockFor(t *testing.T) {
	c, _, _ := hosting(t)
	c.AddGuest("g1")
	if !c.LockFor("g1") {
		t.Errorf("host-only guest unlocked")
	}
	c.SetGuestCanDraw("g1", true)
	if c.LockFor("g1") {
		t.Errorf("granted guest locked")
	}
	if !c.LockFor("stranger") {
		t.Errorf("unknown guest should get the global lock")
	}
	c.SetAccessMode(All)
	if c.LockFor("g1") || c.LockFor("stranger") {
		t.Errorf("all mode should unlock everyone")
	}
}

func TestGuestNames(t *testing.T) {
	c, _, r := hosting(t)
	c.AddGuest("g1")
	long := "  " + strings.Repeat("ñ", 60) + "  "
	c.SetGuestName("g1", long)
	g := r.last.Guests[0]
	if n := len([]rune(g.CustomName)); n != NameLimit {
		t.Errorf("custom name runes = %d, want %d", n, NameLimit)
	}
	if !strings.HasPrefix(g.DisplayName, "Invitado 1 (") {
		t.Errorf("display name = %q", g.DisplayName)
	}
	if v, ok := r.last.Find("1"); !ok || v.ID != "g1" {
		t.Errorf("Find by index = %+v, %v", v, ok)
	}
}

func TestGuestSideState(t *testing.T) {
	c := NewContext(nil, nil)
	c.StartGuest("X")
	if !c.SetRequestPending(true) || c.SetRequestPending(true) {
		t.Errorf("SetRequestPending change reporting wrong")
	}
	c.SetRemoteLock(true)
	if !c.RequestPending() {
		t.Errorf("locking cleared the pending request")
	}
	c.SetRemoteLock(false)
	if c.RequestPending() {
		t.Errorf("unlocking kept the pending request")
	}
	if name, changed := c.SetLocalName("  Ana "); name != "Ana" || !changed {
		t.Errorf("SetLocalName = %q, %v", name, changed)
	}
	if _, changed := c.SetLocalName("Ana"); changed {
		t.Errorf("same name reported as change")
	}
}

func TestSanitizeCode(t *testing.T) {
	tests := []struct{ in, want string }{
		{" abc-12 ", "ABC-12"},
		{"a b!c", "ABC"},
		{strings.Repeat("x", 40), strings.Repeat("X", 32)},
	}
	for _, tt := range tests {
		if got := SanitizeCode(tt.in); got != tt.want {
			t.Errorf("SanitizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if code := RandomCode(); len(code) != 6 || SanitizeCode(code) != code {
		t.Errorf("RandomCode = %q", code)
	}
}
