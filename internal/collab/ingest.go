package collab

import (
	"SharedBoard/internal/protocol"
	"SharedBoard/internal/state"
)

// ingestStroke applies one streamed stroke message. Segments are drawn on
// arrival and the stroke is recorded when the final message comes. It
// returns the message to forward, with ids filled in, and false when the
// message was a duplicate or unusable.
func (h *Handler) ingestStroke(m protocol.Message, author string) (protocol.Message, bool) {
	seg, hasSeg := m.StrokeSegment()
	if !hasSeg && !m.Final {
		return m, false
	}
	id := m.ActionID
	if id == "" {
		id = state.PrefixedID("stroke")
	}
	page := m.PageID
	if page == "" {
		page = h.history.Pages().ActiveID()
	}

	d, ok := h.pending[id]
	if !ok {
		if _, done := h.history.Store().Action(id); done {
			return m, false
		}
		if !hasSeg {
			return m, false
		}
		d = h.history.Builder().BeginWithID(id, state.ActionStroke, author, page)
		h.pending[id] = d
	}

	out := protocol.Message{Type: protocol.TypeStroke, ActionID: id, AuthorID: d.AuthorID(), PageID: d.PageID(), Final: m.Final}
	if hasSeg {
		if err := d.AppendSegment(seg); err != nil {
			delete(h.pending, id)
			return m, false
		}
		h.history.DrawSegment(d.PageID(), seg)
		out.Segment = &seg
	}
	if m.Final {
		delete(h.pending, id)
		if a := h.history.Builder().Commit(d); a != nil {
			h.history.Ingest(a, false)
		}
	}
	return out, true
}

// ingestAction records a shape, image or clear message. The returned
// message is what gets forwarded.
func (h *Handler) ingestAction(m protocol.Message, author string) (protocol.Message, bool) {
	a, err := m.Action(author, h.history.Pages().ActiveID())
	if err != nil {
		h.logger.Debug("dropping incomplete action", "type", m.Type, "error", err)
		return m, false
	}
	if author != "" && h.session.IsHost() {
		a.AuthorID = author
	}
	if a.Type == state.ActionClear {
		h.history.Builder().AbandonPage(a.PageID)
	}
	if !h.history.Ingest(a, true) {
		return m, false
	}
	return protocol.ActionMessage(a), true
}

// abandonPendingFrom drops the streaming strokes of one author, or of
// everyone when author is empty. It reports whether any dropped stroke
// had painted on the active page.
func (h *Handler) abandonPendingFrom(author string) bool {
	active := h.history.Pages().ActiveID()
	painted := false
	for id, d := range h.pending {
		if author == "" || d.AuthorID() == author {
			if d.PageID() == active && d.Segments() > 0 {
				painted = true
			}
			h.history.Builder().Abandon(d)
			delete(h.pending, id)
		}
	}
	return painted
}

// withdrawPendingFrom abandons author's streaming strokes on the host and
// erases their segments everywhere: the page is replayed and every guest
// gets the result.
func (h *Handler) withdrawPendingFrom(author string) {
	if !h.abandonPendingFrom(author) {
		return
	}
	if err := h.history.Rebuild(h.history.Pages().ActiveID()); err != nil {
		h.logger.Warn("rebuild after withdrawn stroke failed", "component", "host", "error", err)
	}
	h.broadcastCanvas()
}

func (h *Handler) clearPending() { h.abandonPendingFrom("") }
