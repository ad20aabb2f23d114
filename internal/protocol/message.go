// Package protocol defines the messages host and guests exchange.
package protocol

import (
	"SharedBoard/internal/pages"
	"SharedBoard/internal/state"
)

type Type string

const (
	TypeStroke        Type = "stroke"
	TypeShape         Type = "shape"
	TypeImage         Type = "image"
	TypeClear         Type = "clear"
	TypeActionState   Type = "action-state"
	TypeUndo          Type = "undo"
	TypeRedo          Type = "redo"
	TypeState         Type = "state"
	TypeCanvas        Type = "canvas"
	TypeViewport      Type = "viewport"
	TypeViewportInfo  Type = "viewport-info"
	TypeBackground    Type = "bg"
	TypePageAdd       Type = "page-add"
	TypePageRemove    Type = "page-remove"
	TypePageSetActive Type = "page-set-active"
	TypePagesSync     Type = "pages-sync"
	TypePageChange    Type = "page-change"
	TypeGuestName     Type = "guest-name"
	TypeRequestDraw   Type = "request-draw"
	TypeLock          Type = "lock"
	TypeHello         Type = "hello"
	TypeRequestState  Type = "request-state"
)

// Message is every kind of wire message in one flat struct. Which fields
// are meaningful depends on Type.
type Message struct {
	Type Type `json:"type"`

	// drawing actions
	ActionID string         `json:"actionId,omitempty"`
	AuthorID string         `json:"authorId,omitempty"`
	PageID   string         `json:"pageId,omitempty"`
	Final    bool           `json:"final,omitempty"`
	Segment  *state.Segment `json:"segment,omitempty"`
	S        *state.Segment `json:"s,omitempty"` // older peers

	Shape state.ShapeKind `json:"shape,omitempty"`
	Start *state.Point    `json:"start,omitempty"`
	End   *state.Point    `json:"end,omitempty"`
	Color string          `json:"color,omitempty"`
	Size  *float64        `json:"size,omitempty"`
	Fill  *string         `json:"fill,omitempty"`

	DataURL string  `json:"dataUrl,omitempty"`
	X       float64 `json:"x,omitempty"`
	Y       float64 `json:"y,omitempty"`
	Width   float64 `json:"width,omitempty"`
	Height  float64 `json:"height,omitempty"`

	// action-state and page operations
	ID     string `json:"id,omitempty"`
	Active *bool  `json:"active,omitempty"`
	After  string `json:"after,omitempty"`

	// state, canvas, pages-sync, bg
	Pages      []pages.Snapshot `json:"pages,omitempty"`
	ActivePage string           `json:"activePage,omitempty"`
	Image      string           `json:"image,omitempty"`
	Bg         string           `json:"bg,omitempty"`
	Style      string           `json:"style,omitempty"`
	Pattern    string           `json:"pattern,omitempty"`
	BgColor    string           `json:"bgColor,omitempty"`
	BgPattern  string           `json:"bgPattern,omitempty"`
	BgImage    *string          `json:"bgImage,omitempty"`
	BgSize     *pages.Size      `json:"bgSize,omitempty"`
	Lock       *bool            `json:"lock,omitempty"`
	W          float64          `json:"w,omitempty"`
	H          float64          `json:"h,omitempty"`

	// lock, guest-name, request-draw
	Value      *bool   `json:"value,omitempty"`
	Name       *string `json:"name,omitempty"`
	Requesting *bool   `json:"requesting,omitempty"`
}

func Bool(v bool) *bool { return &v }

func String(v string) *string { return &v }

// StrokeSegment returns the segment carried by a stroke message.
func (m Message) StrokeSegment() (state.Segment, bool) {
	switch {
	case m.Segment != nil:
		return *m.Segment, true
	case m.S != nil:
		return *m.S, true
	}
	return state.Segment{}, false
}
