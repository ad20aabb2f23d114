package collab

import (
	"context"
	"fmt"

	bnet "SharedBoard/internal/net"
	"SharedBoard/internal/protocol"
	"SharedBoard/internal/session"
	"SharedBoard/internal/state"
)

// Dialer opens the connection to a host.
type Dialer func(ctx context.Context) (bnet.Conn, error)

// Join connects to the host of code. The session is Connecting while
// dial runs and Connected once it returns a connection. A failed dial
// leaves the handler idle.
func (h *Handler) Join(ctx context.Context, code string, dial Dialer) error {
	var gen uint64
	if err := h.do(func() {
		h.beginSession()
		h.session.StartGuest(code)
		gen = h.gen
		h.pushStatus("connecting")
	}); err != nil {
		return err
	}

	conn, dialErr := dial(ctx)
	var err error
	if doErr := h.do(func() {
		if h.gen != gen || h.session.Role() != session.Guest {
			if conn != nil {
				conn.Close()
			}
			err = ErrSessionGone
			return
		}
		if dialErr != nil {
			err = fmt.Errorf("joining %s: %w", code, dialErr)
			h.endSession(dialErr.Error())
			return
		}
		h.attachHost(conn)
	}); doErr != nil {
		if conn != nil {
			conn.Close()
		}
		return doErr
	}
	return err
}

func (h *Handler) attachHost(conn bnet.Conn) {
	h.upstream = conn
	h.session.MarkConnected()
	h.logger.Info("connected to host", "component", "guest", "code", h.session.Code())

	h.sendHost(protocol.Message{Type: protocol.TypeRequestState})
	if name := h.session.LocalName(); name != "" {
		h.sendHost(protocol.Message{Type: protocol.TypeGuestName, Name: protocol.String(name)})
	}
	if h.session.RequestPending() {
		h.sendHost(protocol.Message{Type: protocol.TypeRequestDraw, Requesting: protocol.Bool(true)})
	}
	h.pushStatus("connected")

	gen := h.gen
	go h.readFrom(h.sessCtx, gen, conn, h.hostFrame, func(err error) {
		h.logger.Warn("lost connection to host", "component", "guest", "error", err)
		h.endSession("host connection closed")
	})
}

// hostFrame mirrors one message from the host.
func (h *Handler) hostFrame(frame []byte) {
	m, err := h.codec.Decode(frame)
	if err != nil {
		h.logger.Warn("undecodable frame", "component", "guest", "error", err)
		return
	}
	h.logger.Debug("received", "component", "guest", "type", m.Type)

	author := m.AuthorID
	if author == "" {
		author = HostAuthorID
	}
	switch m.Type {
	case protocol.TypeStroke:
		h.ingestStroke(m, author)

	case protocol.TypeShape, protocol.TypeImage, protocol.TypeClear:
		h.ingestAction(m, author)

	case protocol.TypeActionState:
		if m.ID != "" {
			h.history.SetActionActive(m.ID, m.Active == nil || *m.Active)
		}

	case protocol.TypeState:
		h.clearPending()
		if len(m.Pages) > 0 {
			h.history.SyncPages(m.Pages, m.ActivePage)
		}
		if m.HasBackground() {
			h.history.Pages().SetBackground(h.history.Pages().ActiveID(), m.Background())
		}
		if m.W > 0 && m.H > 0 {
			h.history.Resize(int(m.W), int(m.H))
		}
		if m.Image != "" {
			img := m.Image
			h.history.ResetHistory(h.history.Pages().ActiveID(), &img)
		}
		if m.Lock != nil {
			h.session.SetRemoteLock(*m.Lock)
		}
		h.events.SurfaceNeedsRedraw(h.history.Pages().ActiveID(), state.Rect{})
		h.pushStatus("state received")

	case protocol.TypeCanvas:
		h.clearPending()
		if m.Image != "" {
			img := m.Image
			h.history.ResetHistory(h.history.Pages().ActiveID(), &img)
		}
		if m.HasBackground() {
			h.history.Pages().SetBackground(h.history.Pages().ActiveID(), m.Background())
		}

	case protocol.TypePagesSync:
		h.clearPending()
		h.history.SyncPages(m.Pages, m.ActivePage)

	case protocol.TypePageChange, protocol.TypePageSetActive:
		if m.ID != "" {
			h.history.SwitchPage(m.ID)
		}

	case protocol.TypePageRemove:
		if m.ID != "" {
			h.history.RemovePage(m.ID)
		}

	case protocol.TypeBackground:
		active := h.history.Pages().ActiveID()
		h.history.Pages().SetBackground(active, m.Background())
		h.events.SurfaceNeedsRedraw(active, state.Rect{})

	case protocol.TypeLock:
		if m.Value != nil {
			h.session.SetRemoteLock(*m.Value)
			h.pushStatus("lock changed")
		}

	case protocol.TypeViewport:
		if m.W > 0 && m.H > 0 {
			h.history.Resize(int(m.W), int(m.H))
		}

	case protocol.TypeGuestName:
		if m.Name != nil {
			h.session.SetLocalName(*m.Name)
		}

	case protocol.TypeRequestDraw:
		h.session.SetRequestPending(m.Requesting != nil && *m.Requesting)
		h.pushStatus("draw request updated")

	case protocol.TypeHello:
		if m.ID != "" {
			h.history.SetAuthorID(m.ID)
		}
	}
}
