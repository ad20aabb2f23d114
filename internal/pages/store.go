package pages

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Page is one independent drawing surface. Image holds the latest full
// snapshot of its pixels as a data URL, "" when never drawn.
type Page struct {
	ID         string
	Order      int
	Background Background
	Image      string
}

// Snapshot is a page as it travels on the wire.
type Snapshot struct {
	ID        string  `json:"id"`
	Bg        string  `json:"bg"`
	BgColor   string  `json:"bgColor"`
	BgPattern string  `json:"bgPattern"`
	BgImage   *string `json:"bgImage"`
	BgSize    *Size   `json:"bgSize"`
	Order     int     `json:"order"`
	Image     *string `json:"image"`
}

// Store holds the ordered page list and which page is active.
type Store struct {
	mu       sync.RWMutex
	pages    []*Page
	activeID string
	counter  int
	fallback Background
}

// NewStore creates a store holding a single blank page.
func NewStore(bg Background) *Store {
	s := &Store{fallback: bg}
	s.resetLocked(bg, "")
	return s
}

func (s *Store) newPageLocked(id string, bg Background, image string, order int) *Page {
	if id == "" {
		id = uuid.NewString()
	}
	if order <= 0 {
		s.counter++
		order = s.counter
	} else if order > s.counter {
		s.counter = order
	}
	return &Page{ID: id, Order: order, Background: bg, Image: image}
}

func (s *Store) resetLocked(bg Background, image string) *Page {
	s.counter = 0
	p := s.newPageLocked("", bg, image, 0)
	s.pages = []*Page{p}
	s.activeID = p.ID
	return p
}

// Reset replaces every page with one fresh page.
func (s *Store) Reset(bg Background) *Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.resetLocked(bg, "")
	c := *p
	return &c
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.pages, func(p *Page) bool { return p.ID == id })
}

// Add inserts a page right after afterID (or the active page when afterID
// is unknown) and makes it active.
func (s *Store) Add(bg Background, image, afterID string) *Page {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.newPageLocked("", bg, image, 0)
	at := s.indexLocked(afterID)
	if at < 0 {
		at = s.indexLocked(s.activeID)
	}
	if at < 0 {
		s.pages = append(s.pages, p)
	} else {
		s.pages = slices.Insert(s.pages, at+1, p)
	}
	s.activeID = p.ID
	c := *p
	return &c
}

// Remove deletes a page unless it is the last one. When the active page
// goes, the page now at its index (or the one before) becomes active.
func (s *Store) Remove(id string) (activeID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pages) <= 1 {
		return s.activeID, false
	}
	i := s.indexLocked(id)
	if i < 0 {
		return s.activeID, false
	}
	wasActive := s.pages[i].ID == s.activeID
	s.pages = slices.Delete(s.pages, i, i+1)
	if wasActive {
		if i >= len(s.pages) {
			i = len(s.pages) - 1
		}
		s.activeID = s.pages[i].ID
	}
	return s.activeID, true
}

func (s *Store) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(id) < 0 {
		return false
	}
	s.activeID = id
	return true
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a copy of the active page.
func (s *Store) Active() *Page {
	return s.Get(s.ActiveID())
}

// Get returns a copy of the page, or nil.
func (s *Store) Get(id string) *Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil
	}
	c := *s.pages[i]
	return &c
}

func (s *Store) List() []Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Page, len(s.pages))
	for i, p := range s.pages {
		out[i] = *p
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

func (s *Store) SetImage(id, dataURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		s.pages[i].Image = dataURL
	}
}

func (s *Store) SetBackground(id string, bg Background) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		s.pages[i].Background = bg
	}
}

// Snapshots serializes the page list in display order.
func (s *Store) Snapshots() []Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Snapshot, len(s.pages))
	for i, p := range s.pages {
		out[i] = ToSnapshot(*p)
	}
	return out
}

func ToSnapshot(p Page) Snapshot {
	snap := Snapshot{
		ID:        p.ID,
		Bg:        p.Background.Style,
		BgColor:   p.Background.Color,
		BgPattern: p.Background.Pattern,
		BgSize:    p.Background.Size,
		Order:     p.Order,
	}
	if p.Background.Image != "" {
		img := p.Background.Image
		snap.BgImage = &img
	}
	if p.Image != "" {
		img := p.Image
		snap.Image = &img
	}
	return snap
}

// Sync replaces the page list with the host's. An empty list leaves one
// fallback page; an unknown activeID falls back to the first page.
func (s *Store) Sync(list []Snapshot, activeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(list) == 0 {
		s.resetLocked(s.fallback, "")
		return
	}
	s.counter = 0
	s.pages = s.pages[:0]
	for _, item := range list {
		bg := ResolveBackground(item.BgPattern, item.BgColor, item.Bg)
		if item.BgImage != nil {
			bg.Image = *item.BgImage
		}
		if item.BgSize != nil {
			size := *item.BgSize
			bg.Size = &size
		}
		image := ""
		if item.Image != nil {
			image = *item.Image
		}
		s.pages = append(s.pages, s.newPageLocked(item.ID, bg, image, item.Order))
	}
	if s.indexLocked(activeID) >= 0 {
		s.activeID = activeID
	} else {
		s.activeID = s.pages[0].ID
	}
}
