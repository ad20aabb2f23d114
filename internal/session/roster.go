package session

import "fmt"

type GuestView struct {
	ID          string `json:"id"`
	Index       int    `json:"index"`
	CustomName  string `json:"customName"`
	DefaultName string `json:"defaultName"`
	DisplayName string `json:"displayName"`
	CanDraw     bool   `json:"canDraw"`
	Requesting  bool   `json:"requesting"`
}

// Roster is a point-in-time view of the session for display.
type Roster struct {
	Total     int         `json:"total"`
	IsHost    bool        `json:"isHost"`
	Mode      AccessMode  `json:"mode"`
	GuestLock bool        `json:"guestLock"`
	Guests    []GuestView `json:"guests"`
}

func DefaultGuestName(index int) string {
	return fmt.Sprintf("Invitado %d", index)
}

func DisplayName(index int, custom string) string {
	base := DefaultGuestName(index)
	if custom = CleanName(custom); custom != "" {
		return fmt.Sprintf("%s (%s)", base, custom)
	}
	return base
}

func (c *Context) Roster() Roster {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r := Roster{
		IsHost:    c.role == Host,
		Mode:      c.mode,
		GuestLock: c.guestLock,
		Guests:    make([]GuestView, 0, len(c.guests)),
	}
	for _, g := range c.sortedLocked() {
		r.Guests = append(r.Guests, GuestView{
			ID:          g.ID,
			Index:       g.Index,
			CustomName:  g.CustomName,
			DefaultName: DefaultGuestName(g.Index),
			DisplayName: DisplayName(g.Index, g.CustomName),
			CanDraw:     g.CanDraw,
			Requesting:  g.Requesting,
		})
	}
	r.Total = len(r.Guests)
	return r
}

// Find resolves a guest by id, index or display name.
func (r Roster) Find(ref string) (GuestView, bool) {
	for _, g := range r.Guests {
		if g.ID == ref || fmt.Sprint(g.Index) == ref || g.CustomName == ref || g.DefaultName == ref {
			return g, true
		}
	}
	return GuestView{}, false
}
