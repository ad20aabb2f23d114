// Package history ties the action store, the page list and the replay
// engine together. Every operation that changes which actions are active
// ends in a replay of the affected page.
package history

import (
	"log/slog"

	"SharedBoard/internal/pages"
	"SharedBoard/internal/replay"
	"SharedBoard/internal/state"
)

// HistorySink is told when undo/redo availability or the visible surface
// changes.
type HistorySink interface {
	HistoryChanged(undo, redo int)
	// SurfaceNeedsRedraw reports a stale region of pageID. An empty area
	// means the whole surface.
	SurfaceNeedsRedraw(pageID string, area state.Rect)
}

type nopSink struct{}

func (nopSink) HistoryChanged(int, int) {}
func (nopSink) SurfaceNeedsRedraw(string, state.Rect) {}

type Options struct {
	Store    *state.ActionStore
	Pages    *pages.Store
	Replay   *replay.Engine
	Builder  *state.Builder
	Sink     HistorySink
	AuthorID string
	Logger   *slog.Logger
}

// Engine is the history of every page plus the surface of the active one.
// It is not safe for concurrent use; one event loop owns it.
type Engine struct {
	store   *state.ActionStore
	pages   *pages.Store
	replay  *replay.Engine
	builder *state.Builder
	sink    HistorySink
	author  string
	logger  *slog.Logger
}

func New(opts Options) *Engine {
	e := &Engine{
		store:   opts.Store,
		pages:   opts.Pages,
		replay:  opts.Replay,
		builder: opts.Builder,
		sink:    opts.Sink,
		author:  opts.AuthorID,
		logger:  opts.Logger,
	}
	if e.sink == nil {
		e.sink = nopSink{}
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	e.logger = e.logger.With("component", "history")
	for _, p := range e.pages.List() {
		e.ensureBaseline(p.ID)
	}
	return e
}

func (e *Engine) AuthorID() string { return e.author }

// SetAuthorID changes the local author, e.g. once a guest learns the id
// the host knows it by.
func (e *Engine) SetAuthorID(id string) {
	e.author = id
	e.notifyCounts()
}

func (e *Engine) SetSink(sink HistorySink) {
	if sink == nil {
		sink = nopSink{}
	}
	e.sink = sink
}

func (e *Engine) Store() *state.ActionStore { return e.store }

func (e *Engine) Pages() *pages.Store { return e.pages }

func (e *Engine) Builder() *state.Builder { return e.builder }

func (e *Engine) Renderer() replay.SurfaceRenderer { return e.replay.Renderer() }

// Ingest records a committed action. Duplicates are ignored. An image
// whose payload cannot be decoded is not recorded, whatever its page. With
// apply set, an active action on the active page is drawn on top of the
// current surface.
func (e *Engine) Ingest(a *state.Action, apply bool) bool {
	if !a.Valid() {
		return false
	}
	if _, exists := e.store.Action(a.ID); exists {
		return false
	}
	onActive := a.PageID == e.pages.ActiveID()
	if a.Type == state.ActionImage {
		if err := e.replay.Renderer().LoadImage(*a.Image); err != nil {
			e.logger.Warn("image payload rejected", "action", a.ID, "error", err)
			return false
		}
	}
	if !e.store.Record(a) {
		return false
	}
	if apply && a.Active && onActive {
		if err := e.replay.Apply(a); err != nil {
			e.logger.Warn("incremental draw failed", "action", a.ID, "error", err)
		}
		e.sink.SurfaceNeedsRedraw(a.PageID, state.Bounds(a))
	}
	if a.AuthorID == e.author {
		e.notifyCounts()
	}
	return true
}

// Commit closes a local draft and records it. Stroke segments were drawn
// while they streamed; any other type is drawn now.
func (e *Engine) Commit(d *state.Draft) *state.Action {
	a := e.builder.Commit(d)
	if a == nil {
		return nil
	}
	if !e.Ingest(a, a.Type != state.ActionStroke) {
		return nil
	}
	return a
}

// DrawSegment paints a streamed segment of an uncommitted stroke when it
// targets the active page. A segment arriving after a replay lands on top
// of the rebuilt surface; the next snapshot repairs any drift.
func (e *Engine) DrawSegment(pageID string, seg state.Segment) {
	if pageID != e.pages.ActiveID() {
		return
	}
	e.replay.DrawSegment(seg)
	e.sink.SurfaceNeedsRedraw(pageID, state.SegmentBounds(seg))
}

// SetActionActive toggles an action and replays its page.
func (e *Engine) SetActionActive(id string, active bool) (*state.Action, bool) {
	a, ok := e.store.SetActive(id, active)
	if !ok {
		return nil, false
	}
	e.replayIfActive(a.PageID)
	e.notifyCounts()
	return a, true
}

// Undo deactivates author's latest action on page. It returns nil when
// there is nothing to undo.
func (e *Engine) Undo(author, page string) *state.Action {
	a := e.store.Undo(author, page)
	if a == nil {
		return nil
	}
	e.logger.Debug("undo", "action", a.ID, "author", author, "page", page)
	e.replayIfActive(page)
	e.notifyCounts()
	return a
}

func (e *Engine) Redo(author, page string) *state.Action {
	a := e.store.Redo(author, page)
	if a == nil {
		return nil
	}
	e.logger.Debug("redo", "action", a.ID, "author", author, "page", page)
	e.replayIfActive(page)
	e.notifyCounts()
	return a
}

// ResetHistory forgets page's log and stacks and installs a new baseline.
// With a nil baseline the current surface (active page) or the stored page
// image becomes the baseline. A given baseline on the active page is drawn.
func (e *Engine) ResetHistory(page string, baseline *string) {
	var b string
	switch {
	case baseline != nil:
		b = *baseline
	case page == e.pages.ActiveID():
		snap, err := e.replay.Renderer().Snapshot()
		if err != nil {
			e.logger.Warn("snapshot for baseline failed", "page", page, "error", err)
		}
		b = snap
	default:
		if p := e.pages.Get(page); p != nil {
			b = p.Image
		}
	}
	e.builder.AbandonPage(page)
	e.store.Reset(page)
	e.store.SetBaseline(page, b)
	if baseline != nil && page == e.pages.ActiveID() {
		e.Rebuild(page)
	}
	e.notifyCounts()
}

// SwitchPage stores the leaving page's pixels, activates id and rebuilds
// it from its own baseline and log. History is kept.
func (e *Engine) SwitchPage(id string) bool {
	leaving := e.pages.ActiveID()
	if id == leaving || e.pages.Get(id) == nil {
		return false
	}
	e.saveActive()
	e.builder.AbandonPage(leaving)
	e.pages.SetActive(id)
	e.Rebuild(id)
	e.notifyCounts()
	return true
}

// AddPage appends a page after the active one, makes it active and gives
// it image as baseline.
func (e *Engine) AddPage(bg pages.Background, image string) *pages.Page {
	e.saveActive()
	e.builder.AbandonPage(e.pages.ActiveID())
	p := e.pages.Add(bg, image, "")
	e.store.Reset(p.ID)
	e.store.SetBaseline(p.ID, image)
	e.Rebuild(p.ID)
	e.notifyCounts()
	return p
}

// RemovePage drops a page and its history. The last page cannot go.
func (e *Engine) RemovePage(id string) (string, bool) {
	wasActive := id == e.pages.ActiveID()
	active, ok := e.pages.Remove(id)
	if !ok {
		return active, false
	}
	e.builder.AbandonPage(id)
	e.store.ForgetPage(id)
	if wasActive {
		e.Rebuild(active)
	}
	e.notifyCounts()
	return active, true
}

// SyncPages replaces every page and all history with a host snapshot. Each
// page's image becomes its baseline.
func (e *Engine) SyncPages(list []pages.Snapshot, activeID string) {
	e.builder.AbandonAll()
	e.store.ResetAll()
	e.pages.Sync(list, activeID)
	for _, p := range e.pages.List() {
		e.store.SetBaseline(p.ID, p.Image)
	}
	e.Rebuild(e.pages.ActiveID())
	e.notifyCounts()
}

// Rebuild replays page from its baseline. Only the active page has a
// surface; other pages are rebuilt when switched to.
func (e *Engine) Rebuild(page string) error {
	if page != e.pages.ActiveID() {
		return nil
	}
	base := e.ensureBaseline(page)
	err := e.replay.Rebuild(base, e.store.PageActions(page))
	e.sink.SurfaceNeedsRedraw(page, state.Rect{})
	return err
}

// Resize changes the surface size and replays the active page.
func (e *Engine) Resize(width, height int) {
	if w, h := e.replay.Renderer().Size(); w == width && h == height {
		return
	}
	e.replay.Renderer().Resize(width, height)
	e.Rebuild(e.pages.ActiveID())
}

// Snapshot encodes the active surface.
func (e *Engine) Snapshot() (string, error) {
	return e.replay.Renderer().Snapshot()
}

// PageImage returns the latest pixels of a page: the live surface for the
// active page, the stored image otherwise.
func (e *Engine) PageImage(id string) string {
	if id == e.pages.ActiveID() {
		snap, err := e.Snapshot()
		if err == nil {
			return snap
		}
		e.logger.Warn("snapshot failed", "page", id, "error", err)
	}
	if p := e.pages.Get(id); p != nil {
		return p.Image
	}
	return ""
}

// Counts is the local author's undo and redo depth on the active page.
func (e *Engine) Counts() (undo, redo int) {
	return e.store.Counts(e.author, e.pages.ActiveID())
}

// ensureBaseline pins a page's baseline to its stored image the first
// time the page is seen, before any later snapshot overwrites that image.
func (e *Engine) ensureBaseline(page string) string {
	if base, ok := e.store.Baseline(page); ok {
		return base
	}
	var base string
	if p := e.pages.Get(page); p != nil {
		base = p.Image
	}
	e.store.SetBaseline(page, base)
	return base
}

func (e *Engine) saveActive() {
	id := e.pages.ActiveID()
	e.ensureBaseline(id)
	snap, err := e.Snapshot()
	if err != nil {
		e.logger.Warn("could not save page snapshot", "page", id, "error", err)
		return
	}
	e.pages.SetImage(id, snap)
}

func (e *Engine) replayIfActive(page string) {
	if err := e.Rebuild(page); err != nil {
		e.logger.Warn("replay failed", "page", page, "error", err)
	}
}

func (e *Engine) notifyCounts() {
	undo, redo := e.Counts()
	e.sink.HistoryChanged(undo, redo)
}
