package state

import "time"

// HistoryLimit caps each author's undo and redo stack per page.
const HistoryLimit = 30

// ImageMinSize is the smallest edge an image action is drawn with.
const ImageMinSize = 48

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type DrawMode string

const (
	ModeDraw      DrawMode = "draw"
	ModeErase     DrawMode = "erase"
	ModeHighlight DrawMode = "highlight"
)

// Segment is one piece of a freehand stroke. CX/CY, when set, make it a
// quadratic curve.
type Segment struct {
	X0    float64  `json:"x0"`
	Y0    float64  `json:"y0"`
	CX    *float64 `json:"cx,omitempty"`
	CY    *float64 `json:"cy,omitempty"`
	X1    float64  `json:"x1"`
	Y1    float64  `json:"y1"`
	Color string   `json:"color,omitempty"`
	Size  float64  `json:"size,omitempty"`
	Mode  DrawMode `json:"mode,omitempty"`
	Alpha *float64 `json:"alpha,omitempty"`
}

// Curved reports whether the segment carries a control point.
func (s Segment) Curved() bool {
	return s.CX != nil && s.CY != nil
}

type ShapeKind string

const (
	ShapeLine    ShapeKind = "line"
	ShapeRect    ShapeKind = "rect"
	ShapeEllipse ShapeKind = "ellipse"
)

func (k ShapeKind) Valid() bool {
	switch k {
	case ShapeLine, ShapeRect, ShapeEllipse:
		return true
	}
	return false
}

type Shape struct {
	Kind  ShapeKind `json:"shape"`
	Start Point     `json:"start"`
	End   Point     `json:"end"`
	Color string    `json:"color"`
	Size  float64   `json:"size"`
	Fill  *string   `json:"fill,omitempty"` // nil is transparent
}

type Image struct {
	DataURL string  `json:"dataUrl"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Width   float64 `json:"width,omitempty"`
	Height  float64 `json:"height,omitempty"`
}

type ActionType string

const (
	ActionStroke ActionType = "stroke"
	ActionShape  ActionType = "shape"
	ActionImage  ActionType = "image"
	ActionClear  ActionType = "clear"
)

// Action is one committed drawing operation. After commit only Active
// changes, and only through an ActionStore.
type Action struct {
	ID        string
	AuthorID  string
	PageID    string
	Type      ActionType
	Active    bool
	Segments  []Segment
	Shape     *Shape
	Image     *Image
	CreatedAt time.Time
}

// Valid reports whether the action carries the payload its type needs.
func (a *Action) Valid() bool {
	if a == nil || a.ID == "" {
		return false
	}
	switch a.Type {
	case ActionStroke:
		return len(a.Segments) > 0
	case ActionShape:
		return a.Shape != nil && a.Shape.Kind.Valid()
	case ActionImage:
		return a.Image != nil && a.Image.DataURL != ""
	case ActionClear:
		return true
	}
	return false
}

// ToolStyle is the stroke/fill default a tool falls back to when a peer
// omits color or size.
type ToolStyle struct {
	Color string
	Fill  string
	Size  float64
}

var ToolDefaults = map[string]ToolStyle{
	"pen":       {Color: "#111827", Size: 4},
	"line":      {Color: "#f97316", Size: 6},
	"rect":      {Color: "#2563eb", Fill: "#bfdbfe", Size: 5},
	"ellipse":   {Color: "#22c55e", Fill: "#bbf7d0", Size: 5},
	"highlight": {Color: "#facc15", Size: 20},
}

// DefaultStyle returns the tool defaults for a shape kind.
func DefaultStyle(kind ShapeKind) ToolStyle {
	if s, ok := ToolDefaults[string(kind)]; ok {
		return s
	}
	return ToolDefaults["pen"]
}
