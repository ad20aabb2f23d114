package raster

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"testing"

	"SharedBoard/internal/state"
)

func alphaAt(s *Surface, x, y int) uint8 {
	return s.Image().RGBAAt(x, y).A
}

func TestDrawSegmentPaints(t *testing.T) {
	s := NewSurface(64, 64)
	s.DrawSegment(state.Segment{X0: 8, Y0: 32, X1: 56, Y1: 32, Color: "#ff0000", Size: 6, Mode: state.ModeDraw})

	got := s.Image().RGBAAt(32, 32)
	if got.R != 0xff || got.A != 0xff {
		t.Fatalf("center pixel = %v, want opaque red", got)
	}
	if a := alphaAt(s, 32, 5); a != 0 {
		t.Errorf("pixel far from stroke alpha = %d, want 0", a)
	}
}

func TestHighlightIsTranslucent(t *testing.T) {
	s := NewSurface(64, 64)
	s.DrawSegment(state.Segment{X0: 8, Y0: 32, X1: 56, Y1: 32, Color: "#000000", Size: 10, Mode: state.ModeHighlight})
	a := alphaAt(s, 32, 32)
	if a < 70 || a > 90 {
		t.Fatalf("highlight alpha = %d, want about %v", a, HighlightAlpha*255)
	}
}

func TestEraseRemovesPixels(t *testing.T) {
	s := NewSurface(64, 64)
	s.DrawSegment(state.Segment{X0: 8, Y0: 32, X1: 56, Y1: 32, Color: "#0000ff", Size: 8})
	s.DrawSegment(state.Segment{X0: 32, Y0: 8, X1: 32, Y1: 56, Size: 12, Mode: state.ModeErase})

	if a := alphaAt(s, 32, 32); a != 0 {
		t.Errorf("erased pixel alpha = %d, want 0", a)
	}
	if a := alphaAt(s, 12, 32); a != 0xff {
		t.Errorf("untouched stroke alpha = %d, want 255", a)
	}
}

func TestDotSegment(t *testing.T) {
	s := NewSurface(32, 32)
	s.DrawSegment(state.Segment{X0: 16, Y0: 16, X1: 16, Y1: 16, Color: "#000", Size: 8})
	if a := alphaAt(s, 16, 16); a == 0 {
		t.Fatalf("zero-length segment left no dot")
	}
}

func TestShapeFillAndStroke(t *testing.T) {
	s := NewSurface(100, 100)
	fill := "#00ff00"
	s.DrawShape(state.Shape{Kind: state.ShapeRect, Start: state.Point{X: 10, Y: 10}, End: state.Point{X: 90, Y: 90}, Color: "#ff0000", Size: 4, Fill: &fill})

	if c := s.Image().RGBAAt(50, 50); c.G != 0xff || c.R != 0 {
		t.Errorf("rect interior = %v, want fill green", c)
	}
	if c := s.Image().RGBAAt(10, 50); c.R != 0xff {
		t.Errorf("rect edge = %v, want stroke red", c)
	}

	s.Clear()
	s.DrawShape(state.Shape{Kind: state.ShapeEllipse, Start: state.Point{X: 10, Y: 10}, End: state.Point{X: 90, Y: 90}, Color: "#ff0000", Size: 2})
	if a := alphaAt(s, 50, 50); a != 0 {
		t.Errorf("unfilled ellipse interior alpha = %d, want 0", a)
	}
	if a := alphaAt(s, 90, 50); a == 0 {
		t.Errorf("ellipse outline missing at right edge")
	}
}

func TestResetAndSnapshotRoundTrip(t *testing.T) {
	s := NewSurface(40, 30)
	s.DrawShape(state.Shape{Kind: state.ShapeLine, Start: state.Point{X: 0, Y: 15}, End: state.Point{X: 40, Y: 15}, Color: "#123456", Size: 4})
	snap, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	other := NewSurface(40, 30)
	if err := other.Reset(snap); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	// png stores non-premultiplied color, so antialiased edges may drift by one
	want, got := s.Image().Pix, other.Image().Pix
	for i := range want {
		if d := int(want[i]) - int(got[i]); d > 2 || d < -2 {
			t.Fatalf("pixel byte %d = %d, want %d", i, got[i], want[i])
		}
	}

	if err := other.Reset(""); err != nil {
		t.Fatalf("Reset(empty): %v", err)
	}
	for _, p := range other.Image().Pix {
		if p != 0 {
			t.Fatalf("empty baseline left pixels behind")
		}
	}

	if err := other.Reset("not a data url"); err == nil {
		t.Errorf("Reset(garbage) = nil, want error")
	}
}

func TestDrawImageScales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	url, err := EncodePNGDataURL(src)
	if err != nil {
		t.Fatal(err)
	}

	s := NewSurface(100, 100)
	if err := s.DrawImage(state.Image{DataURL: url, X: 10, Y: 10, Width: 60, Height: 60}); err != nil {
		t.Fatalf("DrawImage: %v", err)
	}
	if c := s.Image().RGBAAt(40, 40); c.A != 0xff || c.R < 0xfe {
		t.Errorf("inside image = %v, want white", c)
	}
	if a := alphaAt(s, 80, 80); a != 0 {
		t.Errorf("outside image alpha = %d, want 0", a)
	}

	// natural size 2x2 is clamped to the minimum edge
	s.Clear()
	if err := s.DrawImage(state.Image{DataURL: url}); err != nil {
		t.Fatal(err)
	}
	if a := alphaAt(s, state.ImageMinSize-2, state.ImageMinSize-2); a == 0 {
		t.Errorf("small image not clamped to %d px", state.ImageMinSize)
	}

	if err := s.LoadImage(state.Image{DataURL: "data:image/png;base64,!!"}); err == nil {
		t.Errorf("LoadImage(bad) = nil, want error")
	}
}

// forgedPNG returns a 1x1 PNG whose header claims w x h pixels.
func forgedPNG(t *testing.T, w, h uint32) string {
	t.Helper()
	raw, err := EncodePNG(image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if err != nil {
		t.Fatal(err)
	}
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc at 29
	binary.BigEndian.PutUint32(raw[16:], w)
	binary.BigEndian.PutUint32(raw[20:], h)
	binary.BigEndian.PutUint32(raw[29:], crc32.ChecksumIEEE(raw[12:29]))
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

func TestLoadImageRefusesHugeHeader(t *testing.T) {
	s := NewSurface(64, 64)
	for _, dims := range [][2]uint32{{30000, 30000}, {8193, 8192}, {1, MaxImagePixels + 1}} {
		err := s.LoadImage(state.Image{DataURL: forgedPNG(t, dims[0], dims[1])})
		if !errors.Is(err, ErrBadDataURL) {
			t.Errorf("LoadImage(%dx%d header) err = %v, want ErrBadDataURL", dims[0], dims[1], err)
		}
	}
	if _, err := DecodeDataURL(forgedPNG(t, 1, 1)); err != nil {
		t.Errorf("DecodeDataURL(1x1) err = %v", err)
	}
}

func TestResizeKeepsContent(t *testing.T) {
	s := NewSurface(20, 20)
	s.DrawSegment(state.Segment{X0: 2, Y0: 2, X1: 2, Y1: 2, Color: "#000", Size: 4})
	s.Resize(40, 10)
	if w, h := s.Size(); w != 40 || h != 10 {
		t.Fatalf("Size = %dx%d, want 40x10", w, h)
	}
	if a := alphaAt(s, 2, 2); a == 0 {
		t.Errorf("content lost on resize")
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
	}{
		{"#fff", color.NRGBA{0xff, 0xff, 0xff, 0xff}},
		{"#102030", color.NRGBA{0x10, 0x20, 0x30, 0xff}},
		{"#10203080", color.NRGBA{0x10, 0x20, 0x30, 0x80}},
		{"blue", color.NRGBA{A: 0xff}},
	}
	for _, tt := range tests {
		if got := ParseColor(tt.in); got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFlatten(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	out := Flatten(img, "#ff0000")
	if c := out.RGBAAt(1, 1); c != (color.RGBA{0xff, 0, 0, 0xff}) {
		t.Errorf("flattened = %v, want background red", c)
	}
}
