package state

import (
	"image"
	"math"
)

// Rect is an axis-aligned area on the page, in surface pixels.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Union returns the smallest rect covering r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	minX, minY := math.Min(r.X, o.X), math.Min(r.Y, o.Y)
	maxX := math.Max(r.X+r.Width, o.X+o.Width)
	maxY := math.Max(r.Y+r.Height, o.Y+o.Height)
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Overlaps reports whether the two areas intersect.
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.Width && r.X+r.Width > o.X &&
		r.Y < o.Y+o.Height && r.Y+r.Height > o.Y
}

// Image converts r to integer pixel bounds, rounding outward.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Floor(r.X)), int(math.Floor(r.Y)),
		int(math.Ceil(r.X+r.Width)), int(math.Ceil(r.Y+r.Height)),
	)
}

func boxOf(points []Point, pad float64) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return Rect{
		X:      minX - pad,
		Y:      minY - pad,
		Width:  maxX - minX + 2*pad,
		Height: maxY - minY + 2*pad,
	}
}

// SegmentBounds covers the segment including half its stroke width.
func SegmentBounds(s Segment) Rect {
	pts := []Point{{s.X0, s.Y0}, {s.X1, s.Y1}}
	if s.Curved() {
		pts = append(pts, Point{*s.CX, *s.CY})
	}
	return boxOf(pts, math.Max(s.Size, 1)/2+1)
}

// Bounds returns the area an action paints. A clear covers everything and
// reports an empty rect; callers treat empty as the full surface.
func Bounds(a *Action) Rect {
	if a == nil {
		return Rect{}
	}
	switch a.Type {
	case ActionStroke:
		var r Rect
		for _, s := range a.Segments {
			r = r.Union(SegmentBounds(s))
		}
		return r
	case ActionShape:
		if a.Shape == nil {
			return Rect{}
		}
		return boxOf([]Point{a.Shape.Start, a.Shape.End}, math.Max(a.Shape.Size, 1)/2+1)
	case ActionImage:
		if a.Image == nil {
			return Rect{}
		}
		w, h := a.Image.Width, a.Image.Height
		if w < ImageMinSize {
			w = ImageMinSize
		}
		if h < ImageMinSize {
			h = ImageMinSize
		}
		return Rect{X: a.Image.X, Y: a.Image.Y, Width: w, Height: h}
	}
	return Rect{}
}
