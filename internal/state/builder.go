package state

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrDraftClosed  = errors.New("draft already committed or abandoned")
	ErrWrongPayload = errors.New("payload does not match action type")
)

type DraftState int

const (
	Building DraftState = iota
	Committed
	Abandoned
)

func (s DraftState) String() string {
	switch s {
	case Building:
		return "building"
	case Committed:
		return "committed"
	case Abandoned:
		return "abandoned"
	}
	return "unknown"
}

// ShapeStyle carries the stroke and fill a shape draft is committed with.
type ShapeStyle struct {
	Color string
	Size  float64
	Fill  *string
}

// Draft is an in-flight action. Nothing it holds reaches an ActionStore
// until it is committed.
type Draft struct {
	mu     sync.Mutex
	action Action
	state  DraftState
}

func (d *Draft) ID() string { return d.action.ID }

func (d *Draft) Type() ActionType { return d.action.Type }

func (d *Draft) PageID() string { return d.action.PageID }

func (d *Draft) AuthorID() string { return d.action.AuthorID }

func (d *Draft) State() DraftState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Segments returns how many segments the draft holds so far.
func (d *Draft) Segments() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.action.Segments)
}

func (d *Draft) AppendSegment(seg Segment) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Building {
		return ErrDraftClosed
	}
	if d.action.Type != ActionStroke {
		return ErrWrongPayload
	}
	d.action.Segments = append(d.action.Segments, seg)
	return nil
}

func (d *Draft) SetShape(kind ShapeKind, start, end Point, style ShapeStyle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Building {
		return ErrDraftClosed
	}
	if d.action.Type != ActionShape {
		return ErrWrongPayload
	}
	d.action.Shape = &Shape{
		Kind:  kind,
		Start: start,
		End:   end,
		Color: style.Color,
		Size:  style.Size,
		Fill:  style.Fill,
	}
	return nil
}

func (d *Draft) SetImage(img Image) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Building {
		return ErrDraftClosed
	}
	if d.action.Type != ActionImage {
		return ErrWrongPayload
	}
	d.action.Image = &img
	return nil
}

// Builder tracks in-flight drafts keyed by action id, so several strokes
// (local multi-touch, or one per remote author) can be built at once.
type Builder struct {
	mu      sync.Mutex
	clock   *Clock
	pending map[string]*Draft
}

func NewBuilder(clock *Clock) *Builder {
	return &Builder{clock: clock, pending: make(map[string]*Draft)}
}

// Begin starts a draft with a fresh id from the builder's clock.
func (b *Builder) Begin(typ ActionType, author, page string) *Draft {
	return b.BeginWithID(b.clock.NextID(), typ, author, page)
}

// BeginWithID starts, or returns the existing, draft for id.
func (b *Builder) BeginWithID(id string, typ ActionType, author, page string) *Draft {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.pending[id]; ok {
		return d
	}
	d := &Draft{action: Action{
		ID:        id,
		AuthorID:  author,
		PageID:    page,
		Type:      typ,
		Active:    true,
		CreatedAt: time.Now(),
	}}
	b.pending[id] = d
	return d
}

func (b *Builder) Get(id string) (*Draft, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.pending[id]
	return d, ok
}

func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Commit closes the draft and returns its action, or nil when the draft
// is empty or invalid (a stroke without segments, a shape without both
// endpoints). A nil result still closes the draft.
func (b *Builder) Commit(d *Draft) *Action {
	if d == nil {
		return nil
	}
	b.mu.Lock()
	delete(b.pending, d.action.ID)
	b.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != Building {
		return nil
	}
	d.state = Committed
	a := d.action
	a.Segments = append([]Segment(nil), d.action.Segments...)
	if !a.Valid() {
		return nil
	}
	return &a
}

func (b *Builder) Abandon(d *Draft) {
	if d == nil {
		return
	}
	b.mu.Lock()
	delete(b.pending, d.action.ID)
	b.mu.Unlock()

	d.mu.Lock()
	if d.state == Building {
		d.state = Abandoned
	}
	d.mu.Unlock()
}

// AbandonPage drops every in-flight draft targeting page.
func (b *Builder) AbandonPage(page string) {
	b.mu.Lock()
	var drop []*Draft
	for _, d := range b.pending {
		if d.action.PageID == page {
			drop = append(drop, d)
		}
	}
	b.mu.Unlock()
	for _, d := range drop {
		b.Abandon(d)
	}
}

func (b *Builder) AbandonAll() {
	b.mu.Lock()
	drop := make([]*Draft, 0, len(b.pending))
	for _, d := range b.pending {
		drop = append(drop, d)
	}
	b.mu.Unlock()
	for _, d := range drop {
		b.Abandon(d)
	}
}
