// Package session tracks which role this peer plays, the host's guest
// roster and who may draw.
package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	ErrNotHost      = errors.New("not hosting a session")
	ErrNotGuest     = errors.New("not joined to a session")
	ErrUnknownGuest = errors.New("unknown guest")
	ErrBadMode      = errors.New("unknown access mode")
)

// NameLimit caps a guest's custom display name, in characters.
const NameLimit = 48

type Role int

const (
	Idle Role = iota
	Host
	Guest
)

func (r Role) String() string {
	switch r {
	case Host:
		return "host"
	case Guest:
		return "guest"
	}
	return "idle"
}

type GuestPhase int

const (
	Disconnected GuestPhase = iota
	Connecting
	Connected
)

func (p GuestPhase) String() string {
	switch p {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

type AccessMode string

const (
	HostOnly AccessMode = "host-only"
	All      AccessMode = "all"
	Custom   AccessMode = "custom"
)

func ParseAccessMode(s string) (AccessMode, error) {
	switch m := AccessMode(strings.TrimSpace(s)); m {
	case HostOnly, All, Custom:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadMode, s)
}

// GuestEntry is the host's record of one connected guest.
type GuestEntry struct {
	ID         string
	Index      int
	CustomName string
	CanDraw    bool
	Requesting bool
}

// Notifier delivers permission changes to guests. An empty guestID
// addresses every guest.
type Notifier interface {
	LockChanged(guestID string, locked bool)
	RequestChanged(guestID string, requesting bool)
}

type RosterSink interface {
	RosterChanged(Roster)
}

type nopNotifier struct{}

func (nopNotifier) LockChanged(string, bool) {}
func (nopNotifier) RequestChanged(string, bool) {}

type nopRoster struct{}

func (nopRoster) RosterChanged(Roster) {}

// Context is the session state of one peer: exactly one role at a time,
// plus the roster while hosting and the remote lock while a guest.
type Context struct {
	mu sync.RWMutex

	role  Role
	phase GuestPhase
	code  string

	// host side
	mode      AccessMode
	guestLock bool
	guests    map[string]*GuestEntry
	counter   int

	// guest side
	remoteLock     bool
	localName      string
	requestPending bool

	notifier Notifier
	roster   RosterSink
}

func NewContext(notifier Notifier, roster RosterSink) *Context {
	c := &Context{guests: make(map[string]*GuestEntry)}
	c.SetNotifier(notifier)
	c.SetRosterSink(roster)
	c.resetLocked()
	return c
}

func (c *Context) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	c.mu.Lock()
	c.notifier = n
	c.mu.Unlock()
}

func (c *Context) SetRosterSink(r RosterSink) {
	if r == nil {
		r = nopRoster{}
	}
	c.mu.Lock()
	c.roster = r
	c.mu.Unlock()
}

func (c *Context) resetLocked() {
	c.role = Idle
	c.phase = Disconnected
	c.code = ""
	c.mode = HostOnly
	c.guestLock = true
	clear(c.guests)
	c.counter = 0
	c.remoteLock = false
	c.requestPending = false
}

// Reset drops the role, the roster and any pending permission state. It
// runs on every role switch and on connection loss.
func (c *Context) Reset() {
	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()
	c.pushRoster()
}

func (c *Context) StartHost(code string) {
	c.mu.Lock()
	c.resetLocked()
	c.role = Host
	c.code = code
	c.mu.Unlock()
	c.pushRoster()
}

func (c *Context) StartGuest(code string) {
	c.mu.Lock()
	c.resetLocked()
	c.role = Guest
	c.phase = Connecting
	c.code = code
	c.guestLock = false
	c.mu.Unlock()
	c.pushRoster()
}

// MarkConnected moves a connecting guest to Connected.
func (c *Context) MarkConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role != Guest {
		return ErrNotGuest
	}
	c.phase = Connected
	return nil
}

func (c *Context) Role() Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Context) IsHost() bool { return c.Role() == Host }

func (c *Context) Phase() GuestPhase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

func (c *Context) Code() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.code
}

func (c *Context) Mode() AccessMode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Context) GuestLock() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.guestLock
}

// AddGuest registers a newly connected guest. Guests may draw on arrival
// only in All mode.
func (c *Context) AddGuest(id string) (GuestEntry, error) {
	c.mu.Lock()
	if c.role != Host {
		c.mu.Unlock()
		return GuestEntry{}, ErrNotHost
	}
	if g, ok := c.guests[id]; ok {
		c.mu.Unlock()
		return *g, nil
	}
	c.counter++
	g := &GuestEntry{ID: id, Index: c.counter, CanDraw: c.mode == All}
	c.guests[id] = g
	out := *g
	c.mu.Unlock()
	c.pushRoster()
	return out, nil
}

func (c *Context) RemoveGuest(id string) {
	c.mu.Lock()
	_, ok := c.guests[id]
	delete(c.guests, id)
	c.mu.Unlock()
	if ok {
		c.pushRoster()
	}
}

func (c *Context) Guest(id string) (GuestEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.guests[id]
	if !ok {
		return GuestEntry{}, false
	}
	return *g, true
}

func (c *Context) GuestCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.guests)
}

// SetAccessMode switches the global guest permission mode and pushes the
// resulting locks to guests.
func (c *Context) SetAccessMode(mode AccessMode) error {
	if _, err := ParseAccessMode(string(mode)); err != nil {
		return err
	}
	c.mu.Lock()
	if c.role != Host {
		c.mu.Unlock()
		return ErrNotHost
	}
	if c.mode == mode {
		c.mu.Unlock()
		return nil
	}
	c.mode = mode
	n := c.notifier
	var notify []func()
	switch mode {
	case All, HostOnly:
		c.guestLock = mode != All
		for _, g := range c.sortedLocked() {
			g.CanDraw = mode == All
			g.Requesting = false
			id := g.ID
			notify = append(notify, func() { n.RequestChanged(id, false) })
		}
		locked := c.guestLock
		notify = append(notify, func() { n.LockChanged("", locked) })
	case Custom:
		c.guestLock = true
		for _, g := range c.sortedLocked() {
			id, locked := g.ID, !g.CanDraw
			notify = append(notify, func() { n.LockChanged(id, locked) })
		}
	}
	c.mu.Unlock()

	for _, f := range notify {
		f()
	}
	c.pushRoster()
	return nil
}

// SetGuestCanDraw grants or revokes one guest's permission. A grant under
// HostOnly or a revoke under All moves the session to Custom.
func (c *Context) SetGuestCanDraw(id string, allowed bool) error {
	c.mu.Lock()
	if c.role != Host {
		c.mu.Unlock()
		return ErrNotHost
	}
	g, ok := c.guests[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownGuest
	}
	if g.CanDraw == allowed {
		c.mu.Unlock()
		return nil
	}
	g.CanDraw = allowed
	if (c.mode == All && !allowed) || (c.mode == HostOnly && allowed) {
		c.mode = Custom
		c.guestLock = true
	}
	g.Requesting = false
	n := c.notifier
	c.mu.Unlock()

	n.LockChanged(id, !allowed)
	n.RequestChanged(id, false)
	c.pushRoster()
	return nil
}

// SetGuestName stores a guest's custom name, trimmed and capped.
func (c *Context) SetGuestName(id, name string) error {
	c.mu.Lock()
	g, ok := c.guests[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownGuest
	}
	g.CustomName = CleanName(name)
	c.mu.Unlock()
	c.pushRoster()
	return nil
}

// SetRequesting records a guest's request to draw and echoes it back.
func (c *Context) SetRequesting(id string, requesting bool) error {
	c.mu.Lock()
	g, ok := c.guests[id]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownGuest
	}
	g.Requesting = requesting
	n := c.notifier
	c.mu.Unlock()
	n.RequestChanged(id, requesting)
	c.pushRoster()
	return nil
}

// LockFor is the lock value a guest is told on hello or request-state.
func (c *Context) LockFor(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if g, ok := c.guests[id]; ok && c.mode != All {
		return !g.CanDraw
	}
	return c.guestLock
}

func (c *Context) SetRemoteLock(locked bool) {
	c.mu.Lock()
	c.remoteLock = locked
	if !locked {
		c.requestPending = false
	}
	c.mu.Unlock()
}

func (c *Context) RemoteLock() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteLock
}

// SetLocalName sets the name this guest announces. It reports whether
// the cleaned name changed.
func (c *Context) SetLocalName(name string) (string, bool) {
	name = CleanName(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.localName == name {
		return name, false
	}
	c.localName = name
	return name, true
}

func (c *Context) LocalName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localName
}

// SetRequestPending reports whether the flag changed.
func (c *Context) SetRequestPending(pending bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requestPending == pending {
		return false
	}
	c.requestPending = pending
	return true
}

func (c *Context) RequestPending() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.requestPending
}

func (c *Context) sortedLocked() []*GuestEntry {
	out := make([]*GuestEntry, 0, len(c.guests))
	for _, g := range c.guests {
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b *GuestEntry) int { return a.Index - b.Index })
	return out
}

func (c *Context) pushRoster() {
	c.mu.RLock()
	sink := c.roster
	c.mu.RUnlock()
	sink.RosterChanged(c.Roster())
}

// CleanName trims a display name and caps it at NameLimit characters.
func CleanName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > NameLimit {
		name = string([]rune(name)[:NameLimit])
	}
	return name
}
