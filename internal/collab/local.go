package collab

import (
	"SharedBoard/internal/pages"
	"SharedBoard/internal/protocol"
	"SharedBoard/internal/session"
	"SharedBoard/internal/state"
)

func opFor(typ state.ActionType) session.Operation {
	if typ == state.ActionClear {
		return session.OpClear
	}
	return session.OpDraw
}

// BeginAction starts a local action on the active page.
func (h *Handler) BeginAction(typ state.ActionType) (*state.Draft, error) {
	var d *state.Draft
	var err error
	doErr := h.do(func() {
		if !h.policy.CanApply(h.history.AuthorID(), opFor(typ)) {
			err = ErrLocked
			return
		}
		d = h.history.Builder().Begin(typ, h.history.AuthorID(), h.history.Pages().ActiveID())
	})
	if doErr != nil {
		return nil, doErr
	}
	return d, err
}

// AppendSegment draws one stroke segment and streams it to the peers.
// With final set the stroke is committed and returned. A segment refused
// because the host locked drawing abandons the stroke and erases what it
// had drawn.
func (h *Handler) AppendSegment(d *state.Draft, seg state.Segment, final bool) (*state.Action, error) {
	var a *state.Action
	var err error
	doErr := h.do(func() {
		if !h.policy.CanApply(h.history.AuthorID(), session.OpDraw) {
			h.history.Builder().Abandon(d)
			h.history.Rebuild(d.PageID())
			err = ErrLocked
			return
		}
		if err = d.AppendSegment(seg); err != nil {
			return
		}
		h.history.DrawSegment(d.PageID(), seg)
		h.publish(protocol.Stroke(d.ID(), d.AuthorID(), d.PageID(), seg, final))
		if final {
			a = h.history.Commit(d)
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return a, err
}

// SetShape fills in a shape draft.
func (h *Handler) SetShape(d *state.Draft, kind state.ShapeKind, start, end state.Point, style state.ShapeStyle) error {
	var err error
	if doErr := h.do(func() { err = d.SetShape(kind, start, end, style) }); doErr != nil {
		return doErr
	}
	return err
}

// SetImage fills in an image draft.
func (h *Handler) SetImage(d *state.Draft, img state.Image) error {
	var err error
	if doErr := h.do(func() { err = d.SetImage(img) }); doErr != nil {
		return doErr
	}
	return err
}

// CommitAction records a draft and sends it to the peers. It returns nil
// without error when the draft was empty or invalid; nothing is recorded
// then.
func (h *Handler) CommitAction(d *state.Draft) (*state.Action, error) {
	var a *state.Action
	var err error
	doErr := h.do(func() {
		if !h.policy.CanApply(h.history.AuthorID(), opFor(d.Type())) {
			h.history.Builder().Abandon(d)
			h.history.Rebuild(d.PageID())
			err = ErrLocked
			return
		}
		streamed := d.Type() == state.ActionStroke && d.Segments() > 0
		a = h.history.Commit(d)
		if a != nil && a.Type == state.ActionClear {
			h.history.Builder().AbandonPage(a.PageID)
		}
		switch {
		case a == nil:
			if streamed {
				// Peers were sent segments; close the stroke for them.
				h.publish(protocol.StrokeEnd(d.ID(), d.AuthorID(), d.PageID()))
			}
		case a.Type == state.ActionStroke:
			h.publish(protocol.StrokeEnd(a.ID, a.AuthorID, a.PageID))
		default:
			h.publish(protocol.ActionMessage(a))
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return a, err
}

// AbandonAction drops a draft without recording it.
func (h *Handler) AbandonAction(d *state.Draft) error {
	return h.do(func() {
		h.history.Builder().Abandon(d)
		if d.Type() == state.ActionStroke && d.Segments() > 0 {
			h.history.Rebuild(d.PageID())
		}
	})
}

// Clear records a clear action on the active page.
func (h *Handler) Clear() (*state.Action, error) {
	d, err := h.BeginAction(state.ActionClear)
	if err != nil {
		return nil, err
	}
	return h.CommitAction(d)
}

// RequestUndo undoes the local author's latest action on the active page.
// The host and an idle board undo directly; a guest asks the host, and
// the answer arrives as a canvas snapshot, so it returns nil.
func (h *Handler) RequestUndo() (*state.Action, error) { return h.requestHistory(protocol.TypeUndo) }

func (h *Handler) RequestRedo() (*state.Action, error) { return h.requestHistory(protocol.TypeRedo) }

func (h *Handler) requestHistory(typ protocol.Type) (*state.Action, error) {
	var a *state.Action
	var err error
	doErr := h.do(func() {
		author := h.history.AuthorID()
		page := h.history.Pages().ActiveID()
		switch h.session.Role() {
		case session.Host:
			if typ == protocol.TypeUndo {
				a = h.hostUndo(author, "")
			} else {
				a = h.hostRedo(author, "")
			}
		case session.Guest:
			op := session.OpUndo
			if typ == protocol.TypeRedo {
				op = session.OpRedo
			}
			if !h.policy.CanApply(author, op) {
				err = ErrLocked
				return
			}
			err = h.sendHost(protocol.Message{Type: typ})
		default:
			if typ == protocol.TypeUndo {
				a = h.history.Undo(author, page)
			} else {
				a = h.history.Redo(author, page)
			}
		}
	})
	if doErr != nil {
		return nil, doErr
	}
	return a, err
}

// SwitchActivePage shows another page. A guest asks the host, which
// switches every peer.
func (h *Handler) SwitchActivePage(id string) error {
	return h.pageOp(func() error {
		if h.session.Role() == session.Guest {
			return h.sendHost(protocol.Message{Type: protocol.TypePageSetActive, ID: id})
		}
		return h.hostSwitchPage(id)
	}, id)
}

// AddPage appends a page after the active one.
func (h *Handler) AddPage(bg pages.Background, image string) error {
	return h.pageOp(func() error {
		if h.session.Role() == session.Guest {
			m := protocol.Message{Type: protocol.TypePageAdd, After: h.history.Pages().ActiveID(), Image: image}
			m.SetBackground(bg)
			return h.sendHost(m)
		}
		h.hostAddPage(bg, image)
		return nil
	}, "")
}

func (h *Handler) RemovePage(id string) error {
	return h.pageOp(func() error {
		if h.session.Role() == session.Guest {
			return h.sendHost(protocol.Message{Type: protocol.TypePageRemove, ID: id})
		}
		return h.hostRemovePage(id)
	}, id)
}

func (h *Handler) pageOp(fn func() error, id string) error {
	var err error
	doErr := h.do(func() {
		if id != "" && h.history.Pages().Get(id) == nil {
			err = ErrUnknownPage
			return
		}
		if !h.policy.CanApply(h.history.AuthorID(), session.OpPage) {
			err = ErrLocked
			return
		}
		err = fn()
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// SetBackground changes the active page's paper. Guests cannot.
func (h *Handler) SetBackground(bg pages.Background) error {
	var err error
	doErr := h.do(func() {
		if !h.policy.CanApply(h.history.AuthorID(), session.OpBackground) {
			err = ErrLocked
			return
		}
		h.hostSetBackground(bg, "")
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// SetViewport resizes the board. The host resizes every guest with it; a
// guest asks the host, which echoes the size back.
func (h *Handler) SetViewport(width, height int) error {
	return h.do(func() {
		if width <= 0 || height <= 0 {
			return
		}
		switch h.session.Role() {
		case session.Guest:
			h.sendHost(protocol.Message{Type: protocol.TypeViewportInfo, Width: float64(width), Height: float64(height)})
		default:
			h.history.Resize(width, height)
			h.broadcast(protocol.Message{Type: protocol.TypeViewport, W: float64(width), H: float64(height)}, "")
		}
	})
}

func (h *Handler) SetAccessMode(mode session.AccessMode) error {
	var err error
	if doErr := h.do(func() { err = h.session.SetAccessMode(mode) }); doErr != nil {
		return doErr
	}
	return err
}

// SetGuestCanDraw grants or revokes drawing for the guest named by ref:
// its id, its index or its name.
func (h *Handler) SetGuestCanDraw(ref string, allowed bool) error {
	var err error
	doErr := h.do(func() {
		g, ok := h.session.Roster().Find(ref)
		if !ok {
			err = session.ErrUnknownGuest
			return
		}
		err = h.session.SetGuestCanDraw(g.ID, allowed)
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// SetGuestName sets the name this peer shows to the host. It is kept for
// the next join when not connected.
func (h *Handler) SetGuestName(name string) error {
	return h.do(func() {
		clean, changed := h.session.SetLocalName(name)
		if changed && h.upstream != nil {
			h.sendHost(protocol.Message{Type: protocol.TypeGuestName, Name: protocol.String(clean)})
		}
	})
}

// SetRequestDraw asks the host for drawing permission, or withdraws the
// request.
func (h *Handler) SetRequestDraw(on bool) error {
	var err error
	doErr := h.do(func() {
		if h.session.Role() != session.Guest {
			err = session.ErrNotGuest
			return
		}
		if h.session.SetRequestPending(on) && h.upstream != nil {
			err = h.sendHost(protocol.Message{Type: protocol.TypeRequestDraw, Requesting: protocol.Bool(on)})
		}
		h.pushStatus("draw request updated")
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// Leave ends the current session. Local pages and history stay.
func (h *Handler) Leave() error {
	return h.do(func() { h.endSession("left") })
}

func (h *Handler) Status() Status {
	var s Status
	h.do(func() { s = h.status("") })
	return s
}

func (h *Handler) Roster() session.Roster {
	var r session.Roster
	h.do(func() { r = h.session.Roster() })
	return r
}

// Pages returns every page with its latest pixels.
func (h *Handler) Pages() (list []pages.Page, active string) {
	h.do(func() {
		active = h.history.Pages().ActiveID()
		list = h.history.Pages().List()
		for i := range list {
			list[i].Image = h.history.PageImage(list[i].ID)
		}
	})
	return list, active
}

// Counts is the local author's undo and redo depth on the active page.
func (h *Handler) Counts() (undo, redo int) {
	h.do(func() { undo, redo = h.history.Counts() })
	return undo, redo
}
