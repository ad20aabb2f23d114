// Package raster is the pixel surface the board draws on: an RGBA buffer
// painted through rasterx paths.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"

	"SharedBoard/internal/replay"
	"SharedBoard/internal/state"
)

// HighlightAlpha is the opacity of highlighter strokes without an
// explicit alpha.
const HighlightAlpha = 0.32

const maxCachedImages = 64

var _ replay.SurfaceRenderer = (*Surface)(nil)

// Surface implements replay.SurfaceRenderer on an in-memory RGBA image.
// Paths are rasterized into a coverage mask first, then composited with
// the segment's mode.
type Surface struct {
	mu      sync.Mutex
	img     *image.RGBA
	mask    *image.Alpha
	scanner *rasterx.ScannerGV
	images  map[string]image.Image
}

func NewSurface(width, height int) *Surface {
	s := &Surface{images: make(map[string]image.Image)}
	s.allocate(width, height)
	return s
}

func (s *Surface) allocate(width, height int) {
	width, height = max(width, 1), max(height, 1)
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	s.mask = image.NewAlpha(s.img.Bounds())
	s.scanner = rasterx.NewScannerGV(width, height, s.mask, s.mask.Bounds())
	s.scanner.SetColor(color.Alpha{A: 0xff})
}

func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Resize changes the surface dimensions, keeping the top-left content.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b := s.img.Bounds(); b.Dx() == width && b.Dy() == height {
		return
	}
	old := s.img
	s.allocate(width, height)
	draw.Draw(s.img, s.img.Bounds(), old, image.Point{}, draw.Src)
}

// Image returns a copy of the current pixels.
func (s *Surface) Image() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := image.NewRGBA(s.img.Bounds())
	copy(out.Pix, s.img.Pix)
	return out
}

func (s *Surface) Reset(baseline string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.img.Pix)
	if baseline == "" {
		return nil
	}
	src, err := s.decodeLocked(baseline)
	if err != nil {
		return err
	}
	if src.Bounds().Size() == s.img.Bounds().Size() {
		draw.Draw(s.img, s.img.Bounds(), src, src.Bounds().Min, draw.Src)
		return nil
	}
	xdraw.CatmullRom.Scale(s.img, s.img.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return nil
}

func (s *Surface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.img.Pix)
}

func (s *Surface) DrawSegment(seg state.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := seg.Size
	if size <= 0 {
		size = 1
	}
	s.beginPath()
	if seg.X0 == seg.X1 && seg.Y0 == seg.Y1 && !seg.Curved() {
		f := rasterx.NewFiller(s.bounds())
		rasterx.AddCircle(seg.X0, seg.Y0, size/2, f)
		f.Draw()
	} else {
		st := s.stroker(size)
		st.Start(rasterx.ToFixedP(seg.X0, seg.Y0))
		if seg.Curved() {
			st.QuadBezier(rasterx.ToFixedP(*seg.CX, *seg.CY), rasterx.ToFixedP(seg.X1, seg.Y1))
		} else {
			st.Line(rasterx.ToFixedP(seg.X1, seg.Y1))
		}
		st.Stop(false)
		st.Draw()
	}

	alpha := 1.0
	if seg.Mode == state.ModeHighlight {
		alpha = HighlightAlpha
	}
	if seg.Alpha != nil {
		alpha = clamp01(*seg.Alpha)
	}
	if seg.Mode == state.ModeErase {
		s.eraseMask(alpha)
		return
	}
	s.paintMask(ParseColor(seg.Color), alpha)
}

func (s *Surface) DrawShape(sh state.Shape) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := sh.Size
	if size <= 0 {
		size = 1
	}
	minX, maxX := math.Min(sh.Start.X, sh.End.X), math.Max(sh.Start.X, sh.End.X)
	minY, maxY := math.Min(sh.Start.Y, sh.End.Y), math.Max(sh.Start.Y, sh.End.Y)
	cx, cy := (minX+maxX)/2, (minY+maxY)/2
	rx, ry := (maxX-minX)/2, (maxY-minY)/2

	if sh.Fill != nil && sh.Kind != state.ShapeLine {
		s.beginPath()
		f := rasterx.NewFiller(s.bounds())
		switch sh.Kind {
		case state.ShapeRect:
			rasterx.AddRect(minX, minY, maxX, maxY, 0, f)
		case state.ShapeEllipse:
			rasterx.AddEllipse(cx, cy, rx, ry, 0, f)
		}
		f.Draw()
		s.paintMask(ParseColor(*sh.Fill), 1)
	}

	s.beginPath()
	st := s.stroker(size)
	switch sh.Kind {
	case state.ShapeLine:
		st.Start(rasterx.ToFixedP(sh.Start.X, sh.Start.Y))
		st.Line(rasterx.ToFixedP(sh.End.X, sh.End.Y))
		st.Stop(false)
	case state.ShapeRect:
		rasterx.AddRect(minX, minY, maxX, maxY, 0, st)
	case state.ShapeEllipse:
		rasterx.AddEllipse(cx, cy, rx, ry, 0, st)
	default:
		return
	}
	st.Draw()
	s.paintMask(ParseColor(sh.Color), 1)
}

func (s *Surface) LoadImage(img state.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.decodeLocked(img.DataURL)
	return err
}

func (s *Surface) DrawImage(img state.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, err := s.decodeLocked(img.DataURL)
	if err != nil {
		return err
	}
	w, h := img.Width, img.Height
	if w <= 0 {
		w = float64(src.Bounds().Dx())
	}
	if h <= 0 {
		h = float64(src.Bounds().Dy())
	}
	w, h = math.Max(w, state.ImageMinSize), math.Max(h, state.ImageMinSize)
	r := image.Rect(
		int(math.Round(img.X)), int(math.Round(img.Y)),
		int(math.Round(img.X+w)), int(math.Round(img.Y+h)),
	)
	xdraw.CatmullRom.Scale(s.img, r, src, src.Bounds(), xdraw.Over, nil)
	return nil
}

func (s *Surface) Snapshot() (string, error) {
	return EncodePNGDataURL(s.Image())
}

func (s *Surface) decodeLocked(dataURL string) (image.Image, error) {
	if img, ok := s.images[dataURL]; ok {
		return img, nil
	}
	img, err := DecodeDataURL(dataURL)
	if err != nil {
		return nil, err
	}
	if len(s.images) >= maxCachedImages {
		for k := range s.images {
			delete(s.images, k)
			break
		}
	}
	s.images[dataURL] = img
	return img, nil
}

func (s *Surface) bounds() (int, int, rasterx.Scanner) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy(), s.scanner
}

func (s *Surface) stroker(size float64) *rasterx.Stroker {
	st := rasterx.NewStroker(s.bounds())
	st.SetStroke(fixed.Int26_6(size*64), fixed.Int26_6(4*64), rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.Round)
	return st
}

func (s *Surface) beginPath() {
	clear(s.mask.Pix)
	s.scanner.Clear()
}

// paintMask composites c over the surface wherever the mask has coverage.
func (s *Surface) paintMask(c color.NRGBA, alpha float64) {
	c.A = uint8(math.Round(float64(c.A) * clamp01(alpha)))
	if c.A == 0 {
		return
	}
	draw.DrawMask(s.img, s.img.Bounds(), image.NewUniform(c), image.Point{}, s.mask, image.Point{}, draw.Over)
}

// eraseMask is destination-out: coverage removes existing pixels.
func (s *Surface) eraseMask(alpha float64) {
	a := clamp01(alpha)
	for i, m := range s.mask.Pix {
		if m == 0 {
			continue
		}
		keep := 1 - float64(m)/255*a
		p := s.img.Pix[i*4 : i*4+4 : i*4+4]
		for j := range p {
			p[j] = uint8(math.Round(float64(p[j]) * keep))
		}
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ParseColor reads #rgb, #rrggbb or #rrggbbaa. Anything else is black.
func ParseColor(s string) color.NRGBA {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if len(hex) != 8 || err != nil {
		return color.NRGBA{A: 0xff}
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
}

// Flatten composites the surface over a solid background color, for
// export and thumbnails.
func Flatten(img image.Image, bg string) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(ParseColor(bg)), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Over)
	return out
}

func (s *Surface) String() string {
	w, h := s.Size()
	return fmt.Sprintf("surface %dx%d", w, h)
}
