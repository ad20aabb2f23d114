package protocol

import (
	"errors"
	"fmt"
	"time"

	"SharedBoard/internal/pages"
	"SharedBoard/internal/state"
)

var ErrIncomplete = errors.New("message is missing required fields")

func Stroke(actionID, authorID, pageID string, seg state.Segment, final bool) Message {
	return Message{
		Type:     TypeStroke,
		ActionID: actionID,
		AuthorID: authorID,
		PageID:   pageID,
		Segment:  &seg,
		Final:    final,
	}
}

// StrokeEnd closes a streamed stroke without carrying another segment.
func StrokeEnd(actionID, authorID, pageID string) Message {
	return Message{
		Type:     TypeStroke,
		ActionID: actionID,
		AuthorID: authorID,
		PageID:   pageID,
		Final:    true,
	}
}

// ActionMessage encodes a committed shape, image or clear action.
func ActionMessage(a *state.Action) Message {
	m := Message{ActionID: a.ID, AuthorID: a.AuthorID, PageID: a.PageID}
	switch a.Type {
	case state.ActionShape:
		m.Type = TypeShape
		sh := a.Shape
		start, end, size := sh.Start, sh.End, sh.Size
		m.Shape, m.Start, m.End = sh.Kind, &start, &end
		m.Color, m.Size, m.Fill = sh.Color, &size, sh.Fill
	case state.ActionImage:
		m.Type = TypeImage
		img := a.Image
		m.DataURL, m.X, m.Y, m.Width, m.Height = img.DataURL, img.X, img.Y, img.Width, img.Height
	case state.ActionClear:
		m.Type = TypeClear
	}
	return m
}

// Action decodes a shape, image or clear message into an active action.
// Missing ids fall back to the given author and page; a shape without
// color or size takes its tool's defaults, and a missing fill is none.
func (m Message) Action(fallbackAuthor, fallbackPage string) (*state.Action, error) {
	a := &state.Action{
		ID:        m.ActionID,
		AuthorID:  m.AuthorID,
		PageID:    m.PageID,
		Active:    true,
		CreatedAt: time.Now(),
	}
	if a.AuthorID == "" {
		a.AuthorID = fallbackAuthor
	}
	if a.PageID == "" {
		a.PageID = fallbackPage
	}
	if a.ID == "" {
		a.ID = state.PrefixedID(string(m.Type))
	}

	switch m.Type {
	case TypeShape:
		if m.Start == nil || m.End == nil || !m.Shape.Valid() {
			return nil, fmt.Errorf("%w: shape needs kind, start and end", ErrIncomplete)
		}
		def := state.DefaultStyle(m.Shape)
		sh := &state.Shape{Kind: m.Shape, Start: *m.Start, End: *m.End, Color: m.Color, Size: def.Size, Fill: m.Fill}
		if sh.Color == "" {
			sh.Color = def.Color
		}
		if m.Size != nil {
			sh.Size = *m.Size
		}
		a.Type, a.Shape = state.ActionShape, sh
	case TypeImage:
		if m.DataURL == "" {
			return nil, fmt.Errorf("%w: image needs dataUrl", ErrIncomplete)
		}
		a.Type = state.ActionImage
		a.Image = &state.Image{DataURL: m.DataURL, X: m.X, Y: m.Y, Width: m.Width, Height: m.Height}
	case TypeClear:
		a.Type = state.ActionClear
	default:
		return nil, fmt.Errorf("%w: %q is not an action", ErrIncomplete, m.Type)
	}
	return a, nil
}

func ActionState(a *state.Action) Message {
	return Message{
		Type:     TypeActionState,
		ID:       a.ID,
		Active:   Bool(a.Active),
		AuthorID: a.AuthorID,
		PageID:   a.PageID,
	}
}

// SetBackground fills every background field, old and new names alike.
func (m *Message) SetBackground(bg pages.Background) {
	m.Bg, m.Style = bg.Style, bg.Style
	m.Pattern, m.BgPattern = bg.Pattern, bg.Pattern
	m.BgColor = bg.Color
	m.BgSize = bg.Size
	if bg.Image != "" {
		m.BgImage = String(bg.Image)
	}
	if m.Type == TypeBackground {
		m.Color = bg.Color
	}
}

// HasBackground reports whether the message names a background at all.
func (m Message) HasBackground() bool {
	return m.Bg != "" || m.Style != "" || m.Pattern != "" || m.BgPattern != "" || m.BgColor != ""
}

// Background resolves the background hints in m.
func (m Message) Background() pages.Background {
	pattern := first(m.Pattern, m.BgPattern)
	color := first(m.BgColor, m.Color)
	if m.Type == TypeBackground {
		color = first(m.Color, m.BgColor)
	}
	bg := pages.ResolveBackground(pattern, color, first(m.Style, m.Bg))
	if m.BgImage != nil {
		bg.Image = *m.BgImage
	}
	if m.BgSize != nil {
		size := *m.BgSize
		bg.Size = &size
	}
	return bg
}

func first(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
