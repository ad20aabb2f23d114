package collab

import (
	"context"
	"errors"
	"strings"

	bnet "SharedBoard/internal/net"
	"SharedBoard/internal/pages"
	"SharedBoard/internal/protocol"
	"SharedBoard/internal/session"
	"SharedBoard/internal/state"
)

// Host starts a session under code and accepts guests from l until the
// session ends. The handler owns l from here on.
func (h *Handler) Host(code string, l bnet.Listener) error {
	return h.do(func() {
		ctx := h.beginSession()
		h.session.StartHost(code)
		h.history.SetAuthorID(HostAuthorID)
		h.history.ResetHistory(h.history.Pages().ActiveID(), nil)
		h.hub = bnet.NewHub(h.logger)
		h.listener = l
		h.logger.Info("hosting", "code", code, "addr", l.Addr())
		h.pushStatus("waiting for guests")
		go h.acceptLoop(ctx, h.gen, l)
	})
}

func (h *Handler) acceptLoop(ctx context.Context, gen uint64, l bnet.Listener) {
	log := h.logger.With("component", "host")
	for {
		c, err := l.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, bnet.ErrClosed) {
				log.Error("accept failed", "error", err)
			}
			return
		}
		accepted := h.post(func() {
			if h.gen != gen {
				c.Close()
				return
			}
			h.guestConnected(c)
		})
		if !accepted {
			c.Close()
			return
		}
		go h.readFrom(ctx, gen, c,
			func(frame []byte) { h.guestFrame(c.ID(), frame) },
			func(err error) { h.guestGone(c.ID(), err) })
	}
}

// guestConnected registers a guest and sends it the full state, its lock
// and a hello naming the id it is known by.
func (h *Handler) guestConnected(c bnet.Conn) {
	entry, err := h.session.AddGuest(c.ID())
	if err != nil {
		c.Close()
		return
	}
	h.hub.Add(c)
	h.logger.Info("guest connected", "component", "host", "guest", c.ID(), "index", entry.Index, "peers", h.hub.IDs())
	locked := !entry.CanDraw
	h.sendGuest(c.ID(), h.stateMessage(locked))
	h.sendGuest(c.ID(), protocol.Message{Type: protocol.TypeLock, Value: protocol.Bool(locked)})
	h.sendGuest(c.ID(), protocol.Message{Type: protocol.TypeHello, ID: c.ID()})
	h.pushStatus("guest connected")
}

func (h *Handler) guestGone(id string, err error) {
	if h.hub != nil {
		if c, ok := h.hub.Get(id); ok {
			c.Close()
		}
		h.hub.Remove(id)
	}
	h.withdrawPendingFrom(id)
	h.session.RemoveGuest(id)
	h.logger.Info("guest disconnected", "component", "host", "guest", id, "error", err)
	h.pushStatus("guest disconnected")
}

// guestFrame applies one message from a guest. Anything the guest is not
// allowed to do is dropped without an answer.
func (h *Handler) guestFrame(src string, frame []byte) {
	m, err := h.codec.Decode(frame)
	if err != nil {
		h.logger.Warn("undecodable frame", "component", "host", "guest", src, "error", err)
		return
	}
	h.logger.Debug("received", "component", "host", "type", m.Type, "guest", src)

	switch m.Type {
	case protocol.TypeStroke:
		if !h.policy.CanApply(src, session.OpDraw) {
			return
		}
		if out, ok := h.ingestStroke(m, src); ok {
			h.broadcast(out, src)
		}

	case protocol.TypeShape, protocol.TypeImage, protocol.TypeClear:
		op := session.OpDraw
		if m.Type == protocol.TypeClear {
			op = session.OpClear
		}
		if !h.policy.CanApply(src, op) {
			return
		}
		if out, ok := h.ingestAction(m, src); ok {
			h.broadcast(out, src)
		}

	case protocol.TypeActionState:
		if m.ID == "" || !h.policy.CanApply(src, session.OpActionState) {
			return
		}
		active := m.Active == nil || *m.Active
		if a, ok := h.history.SetActionActive(m.ID, active); ok {
			h.broadcast(protocol.ActionState(a), src)
		}

	case protocol.TypeUndo:
		if h.policy.CanApply(src, session.OpUndo) {
			h.hostUndo(src, src)
		}

	case protocol.TypeRedo:
		if h.policy.CanApply(src, session.OpRedo) {
			h.hostRedo(src, src)
		}

	case protocol.TypeBackground:
		if h.policy.CanApply(src, session.OpBackground) {
			h.hostSetBackground(m.Background(), src)
		}

	case protocol.TypePageAdd:
		if !h.policy.CanApply(src, session.OpPage) {
			return
		}
		if m.After != "" && m.After != h.history.Pages().ActiveID() {
			h.history.SwitchPage(m.After)
		}
		bg := h.history.Pages().Active().Background
		if m.HasBackground() {
			bg = m.Background()
		}
		image := ""
		if strings.HasPrefix(m.Image, "data:") {
			image = m.Image
		}
		h.hostAddPage(bg, image)

	case protocol.TypePageRemove:
		if m.ID != "" && h.policy.CanApply(src, session.OpPage) {
			h.hostRemovePage(m.ID)
		}

	case protocol.TypePageSetActive:
		if m.ID != "" && h.policy.CanApply(src, session.OpPage) {
			h.hostSwitchPage(m.ID)
		}

	case protocol.TypeGuestName:
		name := ""
		if m.Name != nil {
			name = *m.Name
		}
		h.session.SetGuestName(src, name)

	case protocol.TypeRequestDraw:
		h.session.SetRequesting(src, m.Requesting != nil && *m.Requesting)

	case protocol.TypeLock:
		if m.Value != nil {
			h.sendGuest(src, protocol.Message{Type: protocol.TypeLock, Value: protocol.Bool(h.session.GuestLock())})
		}

	case protocol.TypeHello, protocol.TypeRequestState:
		locked := h.session.LockFor(src)
		h.sendGuest(src, h.stateMessage(locked))
		h.sendGuest(src, protocol.Message{Type: protocol.TypeLock, Value: protocol.Bool(locked)})

	case protocol.TypeViewportInfo:
		if m.Width > 0 && m.Height > 0 {
			h.sendGuest(src, protocol.Message{Type: protocol.TypeViewport, W: m.Width, H: m.Height})
		}
	}
}

// hostUndo undoes author's latest action on the active page, sends every
// guest the replayed surface and tells the others which action changed.
func (h *Handler) hostUndo(author, source string) *state.Action {
	a := h.history.Undo(author, h.history.Pages().ActiveID())
	if a == nil {
		return nil
	}
	h.broadcastCanvas()
	h.broadcast(protocol.ActionState(a), source)
	return a
}

func (h *Handler) hostRedo(author, source string) *state.Action {
	a := h.history.Redo(author, h.history.Pages().ActiveID())
	if a == nil {
		return nil
	}
	h.broadcastCanvas()
	h.broadcast(protocol.ActionState(a), source)
	return a
}

func (h *Handler) hostSetBackground(bg pages.Background, source string) {
	active := h.history.Pages().ActiveID()
	h.history.Pages().SetBackground(active, bg)
	m := protocol.Message{Type: protocol.TypeBackground}
	m.SetBackground(bg)
	h.broadcast(m, source)
	h.events.SurfaceNeedsRedraw(active, state.Rect{})
}

func (h *Handler) hostAddPage(bg pages.Background, image string) *pages.Page {
	p := h.history.AddPage(bg, image)
	h.broadcastPages()
	return p
}

func (h *Handler) hostRemovePage(id string) error {
	if h.history.Pages().Get(id) == nil {
		return ErrUnknownPage
	}
	if _, ok := h.history.RemovePage(id); !ok {
		return ErrLastPage
	}
	h.broadcastPages()
	return nil
}

func (h *Handler) hostSwitchPage(id string) error {
	if h.history.Pages().Get(id) == nil {
		return ErrUnknownPage
	}
	if h.history.SwitchPage(id) {
		h.broadcastPages()
	}
	return nil
}

// broadcastPages sends the page list followed by the active page.
func (h *Handler) broadcastPages() {
	active := h.history.Pages().ActiveID()
	h.broadcast(protocol.Message{Type: protocol.TypePagesSync, Pages: h.pageSnapshots(), ActivePage: active}, "")
	h.broadcast(protocol.Message{Type: protocol.TypePageChange, ID: active}, "")
}

func (h *Handler) broadcastCanvas() {
	if h.hub == nil || h.hub.Len() == 0 {
		return
	}
	snap, err := h.history.Snapshot()
	if err != nil {
		h.logger.Warn("canvas snapshot failed", "error", err)
		return
	}
	m := protocol.Message{Type: protocol.TypeCanvas, Image: snap}
	m.SetBackground(h.history.Pages().Active().Background)
	h.broadcast(m, "")
}

// pageSnapshots serializes every page with the active page's live pixels.
func (h *Handler) pageSnapshots() []pages.Snapshot {
	snaps := h.history.Pages().Snapshots()
	active := h.history.Pages().ActiveID()
	for i := range snaps {
		if snaps[i].ID == active {
			if img := h.history.PageImage(active); img != "" {
				snaps[i].Image = protocol.String(img)
			}
		}
	}
	return snaps
}

func (h *Handler) stateMessage(locked bool) protocol.Message {
	active := h.history.Pages().Active()
	w, hgt := h.history.Renderer().Size()
	m := protocol.Message{
		Type:       protocol.TypeState,
		Pages:      h.pageSnapshots(),
		ActivePage: active.ID,
		Image:      h.history.PageImage(active.ID),
		Lock:       protocol.Bool(locked),
		W:          float64(w),
		H:          float64(hgt),
	}
	m.SetBackground(active.Background)
	return m
}
