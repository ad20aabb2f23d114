package history

import (
	"bytes"
	"io"
	"log/slog"
	"slices"
	"testing"

	"SharedBoard/internal/pages"
	"SharedBoard/internal/raster"
	"SharedBoard/internal/replay"
	"SharedBoard/internal/state"
)

type recSink struct {
	undo, redo int
	redraws    int
}

func (s *recSink) HistoryChanged(undo, redo int) { s.undo, s.redo = undo, redo }

func (s *recSink) SurfaceNeedsRedraw(string, state.Rect) { s.redraws++ }

type fixture struct {
	*Engine
	surface *raster.Surface
	sink    *recSink
}

func newFixture(t *testing.T, author string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	surface := raster.NewSurface(64, 64)
	sink := &recSink{}
	e := New(Options{
		Store:    state.NewActionStore(0, logger),
		Pages:    pages.NewStore(pages.DefaultBackground()),
		Replay:   replay.NewEngine(surface, logger),
		Builder:  state.NewBuilder(state.NewClock(author)),
		Sink:     sink,
		AuthorID: author,
		Logger:   logger,
	})
	return &fixture{Engine: e, surface: surface, sink: sink}
}

func (f *fixture) page() string { return f.Pages().ActiveID() }

func (f *fixture) stroke(author string, segs ...state.Segment) *state.Action {
	d := f.Builder().Begin(state.ActionStroke, author, f.page())
	for _, s := range segs {
		f.DrawSegment(d.PageID(), s)
		d.AppendSegment(s)
	}
	return f.Commit(d)
}

func (f *fixture) rect(author, fill string) *state.Action {
	d := f.Builder().Begin(state.ActionShape, author, f.page())
	d.SetShape(state.ShapeRect, state.Point{X: 4, Y: 4}, state.Point{X: 60, Y: 60}, state.ShapeStyle{Color: "#000000", Size: 3, Fill: &fill})
	return f.Commit(d)
}

func (f *fixture) clear(author string) *state.Action {
	return f.Commit(f.Builder().Begin(state.ActionClear, author, f.page()))
}

func (f *fixture) pixels() []byte { return f.surface.Image().Pix }

func seg(x0, y0, x1, y1 float64) state.Segment {
	return state.Segment{X0: x0, Y0: y0, X1: x1, Y1: y1, Color: "#1d4ed8", Size: 5, Mode: state.ModeDraw}
}

// near compares surfaces that went through a png round trip, which may
// shift antialiased edges by a step.
func near(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if d := int(a[i]) - int(b[i]); d > 2 || d < -2 {
			return false
		}
	}
	return true
}

func blank(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}

func TestBasicDrawUndo(t *testing.T) {
	f := newFixture(t, "host")
	a := f.stroke("host", seg(5, 5, 30, 30), seg(30, 30, 50, 10))
	strokeOnly := bytes.Clone(f.pixels())
	b := f.rect("host", "#ff0000")
	if a == nil || b == nil {
		t.Fatalf("commit returned nil")
	}
	if bytes.Equal(f.pixels(), strokeOnly) {
		t.Fatalf("rect did not change the surface")
	}

	if got := f.Undo("host", f.page()); got == nil || got.ID != b.ID {
		t.Fatalf("Undo = %v, want %s", got, b.ID)
	}
	if !bytes.Equal(f.pixels(), strokeOnly) {
		t.Errorf("surface after undo differs from stroke alone")
	}
	undo, redo := f.Store().Stacks("host", f.page())
	if !slices.Equal(undo, []string{a.ID}) || !slices.Equal(redo, []string{b.ID}) {
		t.Errorf("stacks = %v / %v, want [%s] / [%s]", undo, redo, a.ID, b.ID)
	}
	if f.sink.undo != 1 || f.sink.redo != 1 {
		t.Errorf("sink counts = %d/%d, want 1/1", f.sink.undo, f.sink.redo)
	}
}

func TestUndoInverseLaw(t *testing.T) {
	f := newFixture(t, "host")
	f.stroke("host", seg(2, 2, 60, 60))
	base, err := f.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	f.ResetHistory(f.page(), &base)
	want := bytes.Clone(f.pixels())

	f.stroke("host", seg(60, 2, 2, 60))
	f.rect("host", "#00ff00")
	f.stroke("host", state.Segment{X0: 10, Y0: 30, X1: 50, Y1: 30, Size: 9, Mode: state.ModeErase})
	f.clear("host")
	f.stroke("host", seg(32, 0, 32, 64))

	for i := 0; i < 5; i++ {
		if f.Undo("host", f.page()) == nil {
			t.Fatalf("undo %d returned nil", i)
		}
	}
	if !bytes.Equal(f.pixels(), want) {
		t.Errorf("surface after undoing everything differs from baseline")
	}
	if f.Undo("host", f.page()) != nil {
		t.Errorf("undo past the baseline returned an action")
	}
}

func TestClearThenUndo(t *testing.T) {
	f := newFixture(t, "host")
	f.stroke("host", seg(5, 5, 50, 50))
	drawn := bytes.Clone(f.pixels())
	c := f.clear("host")
	if !blank(f.pixels()) {
		t.Fatalf("clear left pixels")
	}
	f.Undo("host", f.page())
	if !bytes.Equal(f.pixels(), drawn) {
		t.Errorf("undoing clear did not bring the stroke back")
	}
	if a, _ := f.Store().Action(c.ID); a.Active {
		t.Errorf("clear action still active")
	}
}

func TestIdempotentIngest(t *testing.T) {
	f := newFixture(t, "guest")
	a := &state.Action{ID: "host-1-1", AuthorID: "host", PageID: f.page(), Type: state.ActionStroke, Active: true, Segments: []state.Segment{seg(1, 1, 40, 40)}}

	if !f.Ingest(a, true) {
		t.Fatalf("first ingest rejected")
	}
	once := bytes.Clone(f.pixels())
	dup := *a
	if f.Ingest(&dup, true) {
		t.Errorf("duplicate ingest accepted")
	}
	if !bytes.Equal(f.pixels(), once) {
		t.Errorf("duplicate changed the surface")
	}
	if n := len(f.Store().PageActions(f.page())); n != 1 {
		t.Errorf("log length = %d, want 1", n)
	}
	if undo, _ := f.Store().Counts("host", f.page()); undo != 1 {
		t.Errorf("undo depth = %d, want 1", undo)
	}
}

func TestReplayDeterminism(t *testing.T) {
	f := newFixture(t, "host")
	f.stroke("host", seg(0, 0, 64, 64))
	f.rect("host", "#123456")
	f.stroke("host", state.Segment{X0: 0, Y0: 32, X1: 64, Y1: 32, Color: "#facc15", Size: 20, Mode: state.ModeHighlight})

	f.Rebuild(f.page())
	first := bytes.Clone(f.pixels())
	f.Rebuild(f.page())
	if !bytes.Equal(first, f.pixels()) {
		t.Errorf("two replays differ")
	}
}

func TestHistoryCap(t *testing.T) {
	f := newFixture(t, "host")
	var ids []string
	for i := 0; i < state.HistoryLimit+5; i++ {
		a := f.stroke("host", seg(float64(i), 0, float64(i), 10))
		ids = append(ids, a.ID)
	}
	if undo, _ := f.Counts(); undo != state.HistoryLimit {
		t.Fatalf("undo depth = %d, want %d", undo, state.HistoryLimit)
	}
	for f.Undo("host", f.page()) != nil {
	}
	for i, id := range ids {
		a, _ := f.Store().Action(id)
		if want := i < 5; a.Active != want {
			t.Errorf("action %d active = %v, want %v", i, a.Active, want)
		}
	}
}

func TestUnknownActionStateIgnored(t *testing.T) {
	f := newFixture(t, "guest")
	if _, ok := f.SetActionActive("host-9-9", false); ok {
		t.Fatalf("SetActionActive(unknown) = ok")
	}
	f.Ingest(&state.Action{ID: "host-9-9", AuthorID: "host", PageID: f.page(), Type: state.ActionClear, Active: true}, true)
	a, ok := f.SetActionActive("host-9-9", false)
	if !ok || a.Active {
		t.Errorf("SetActionActive after ingest = %v, %v", a, ok)
	}
}

func TestSwitchPageKeepsHistory(t *testing.T) {
	f := newFixture(t, "host")
	first := f.page()
	f.stroke("host", seg(5, 5, 40, 40))
	onFirst := bytes.Clone(f.pixels())

	second := f.AddPage(pages.DefaultBackground(), "")
	if !blank(f.pixels()) {
		t.Fatalf("new page not blank")
	}
	f.stroke("host", seg(40, 5, 5, 40))
	if undo, _ := f.Counts(); undo != 1 {
		t.Fatalf("second page undo = %d, want 1", undo)
	}

	if !f.SwitchPage(first) {
		t.Fatalf("SwitchPage(first) = false")
	}
	if !bytes.Equal(f.pixels(), onFirst) {
		t.Errorf("first page pixels not restored")
	}
	if undo, _ := f.Counts(); undo != 1 {
		t.Errorf("first page undo = %d, want 1 after switch", undo)
	}
	f.Undo("host", first)
	if !blank(f.pixels()) {
		t.Errorf("undo on first page after switch left pixels")
	}
	if f.SwitchPage(first) {
		t.Errorf("switching to the active page reported a change")
	}
	if p := f.Pages().Get(second.ID); p.Image == "" {
		t.Errorf("leaving page snapshot not stored")
	}
}

func TestRemovePageRebuildsNewActive(t *testing.T) {
	f := newFixture(t, "host")
	first := f.page()
	f.stroke("host", seg(5, 5, 40, 40))
	drawn := bytes.Clone(f.pixels())
	second := f.AddPage(pages.DefaultBackground(), "")

	active, ok := f.RemovePage(second.ID)
	if !ok || active != first {
		t.Fatalf("RemovePage = %q, %v", active, ok)
	}
	if !bytes.Equal(f.pixels(), drawn) {
		t.Errorf("first page not rebuilt after removal")
	}
	if _, ok := f.RemovePage(first); ok {
		t.Errorf("removed the last page")
	}
}

func TestResetHistoryKeepsPixels(t *testing.T) {
	f := newFixture(t, "host")
	f.stroke("host", seg(5, 5, 40, 40))
	drawn := bytes.Clone(f.pixels())

	f.ResetHistory(f.page(), nil)
	if undo, redo := f.Counts(); undo != 0 || redo != 0 {
		t.Fatalf("counts after reset = %d/%d", undo, redo)
	}
	f.Rebuild(f.page())
	if !near(f.pixels(), drawn) {
		t.Errorf("baseline taken from surface lost the stroke")
	}
}

func TestIngestRejectsBadImage(t *testing.T) {
	f := newFixture(t, "guest")
	a := &state.Action{ID: "i1", AuthorID: "host", PageID: f.page(), Type: state.ActionImage, Active: true, Image: &state.Image{DataURL: "data:image/png;base64,AAAA"}}
	if f.Ingest(a, true) {
		t.Fatalf("undecodable image recorded")
	}
	if _, ok := f.Store().Action("i1"); ok {
		t.Errorf("image action in log")
	}
}

func TestIngestRejectsBadImageOnOtherPage(t *testing.T) {
	f := newFixture(t, "guest")
	first := f.page()
	p := f.AddPage(pages.DefaultBackground(), "")
	other := p.ID
	if other == f.page() {
		other = first
	}
	a := &state.Action{ID: "i2", AuthorID: "host", PageID: other, Type: state.ActionImage, Active: true, Image: &state.Image{DataURL: "data:image/png;base64,AAAA"}}
	if f.Ingest(a, true) {
		t.Fatalf("undecodable image on page %s recorded", other)
	}
	if _, ok := f.Store().Action("i2"); ok {
		t.Errorf("image action in log")
	}
}

func TestSyncPagesUsesImagesAsBaselines(t *testing.T) {
	src := newFixture(t, "host")
	src.stroke("host", seg(5, 5, 40, 40))
	img, _ := src.Snapshot()

	f := newFixture(t, "guest")
	f.stroke("guest", seg(60, 0, 0, 60))
	f.SyncPages([]pages.Snapshot{
		{ID: "p1", BgPattern: "solid", Order: 1, Image: &img},
		{ID: "p2", BgPattern: "grid", Order: 2},
	}, "p1")

	if !near(f.pixels(), src.pixels()) {
		t.Errorf("guest surface differs from host snapshot")
	}
	if n := len(f.Store().PageActions("p1")); n != 0 {
		t.Errorf("log after sync = %d, want 0", n)
	}
	for _, id := range []string{"p1", "p2"} {
		if _, ok := f.Store().Baseline(id); !ok {
			t.Errorf("page %s has no baseline", id)
		}
	}
	if f.sink.redraws == 0 {
		t.Errorf("no redraw reported")
	}
}
