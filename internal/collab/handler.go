// Package collab is the sync protocol handler. It turns local drawing and
// page operations into wire messages, applies messages from peers, and
// keeps the host the last word on history and permissions.
package collab

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"SharedBoard/internal/history"
	bnet "SharedBoard/internal/net"
	"SharedBoard/internal/protocol"
	"SharedBoard/internal/session"
	"SharedBoard/internal/state"
)

var (
	ErrLocked       = errors.New("drawing is locked by the host")
	ErrStopped      = errors.New("handler is not running")
	ErrUnknownPage  = errors.New("unknown page")
	ErrLastPage     = errors.New("cannot remove the last page")
	ErrNotConnected = errors.New("not connected to a host")
	ErrSessionGone  = errors.New("session ended before the connection was ready")
)

// HostAuthorID is the author id of everything the host draws.
const HostAuthorID = "host"

// Events is what a front end hears about. Every call happens on the
// handler's loop goroutine.
type Events interface {
	history.HistorySink
	session.RosterSink
	StatusChanged(Status)
}

type Status struct {
	Role   session.Role
	Phase  session.GuestPhase
	Code   string
	Locked bool
	Guests int
	Detail string
}

type nopEvents struct{}

func (nopEvents) HistoryChanged(int, int) {}
func (nopEvents) SurfaceNeedsRedraw(string, state.Rect) {}
func (nopEvents) RosterChanged(session.Roster) {}
func (nopEvents) StatusChanged(Status) {}

type Options struct {
	Session *session.Context
	History *history.Engine
	Codec   protocol.Codec
	Events  Events
	Logger  *slog.Logger
}

// Handler owns the session, the history and every connection. All state
// changes run on the goroutine started by Run.
type Handler struct {
	session *session.Context
	history *history.Engine
	policy  *session.Policy
	codec   protocol.Codec
	events  Events
	logger  *slog.Logger

	calls   chan func()
	stopped chan struct{}
	runOnce sync.Once

	runCtx context.Context
	// gen changes with every host/join/leave so callbacks from an old
	// session's goroutines are dropped.
	gen      uint64
	sessCtx  context.Context
	cancel   context.CancelFunc
	hub      *bnet.Hub
	listener bnet.Listener
	upstream bnet.Conn

	// pending holds remote strokes still streaming, by action id.
	pending map[string]*state.Draft
}

func NewHandler(opts Options) *Handler {
	h := &Handler{
		session: opts.Session,
		history: opts.History,
		codec:   opts.Codec,
		events:  opts.Events,
		logger:  opts.Logger,
		calls:   make(chan func(), 256),
		stopped: make(chan struct{}),
		pending: make(map[string]*state.Draft),
	}
	if h.codec == nil {
		h.codec = protocol.JSONCodec{}
	}
	if h.events == nil {
		h.events = nopEvents{}
	}
	if h.logger == nil {
		h.logger = slog.New(slog.DiscardHandler)
	}
	h.policy = session.NewPolicy(h.session, h.history.AuthorID)
	h.session.SetNotifier(h)
	h.session.SetRosterSink(h.events)
	h.history.SetSink(h.events)
	return h
}

// Run processes local calls and network events until ctx ends. Local
// API calls block until Run is running.
func (h *Handler) Run(ctx context.Context) error {
	h.runCtx = ctx
	defer h.runOnce.Do(func() { close(h.stopped) })
	for {
		select {
		case fn := <-h.calls:
			fn()
		case <-ctx.Done():
			h.endSession("shutting down")
			return ctx.Err()
		}
	}
}

// do runs fn on the loop and waits for it. It must not be called from
// the loop itself.
func (h *Handler) do(fn func()) error {
	done := make(chan struct{})
	select {
	case h.calls <- func() { defer close(done); fn() }:
	case <-h.stopped:
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-h.stopped:
		return ErrStopped
	}
}

func (h *Handler) post(fn func()) bool {
	select {
	case h.calls <- fn:
		return true
	case <-h.stopped:
		return false
	}
}

// readFrom feeds one connection's frames to the loop. Frames and the
// final error are dropped once the session that started it is over.
func (h *Handler) readFrom(ctx context.Context, gen uint64, c bnet.Conn, onFrame func([]byte), onGone func(error)) {
	for {
		frame, err := c.Receive(ctx)
		if err != nil {
			h.post(func() {
				if h.gen == gen {
					onGone(err)
				}
			})
			return
		}
		if !h.post(func() {
			if h.gen == gen {
				onFrame(frame)
			}
		}) {
			return
		}
	}
}

// beginSession tears down whatever ran before and returns a context for
// the new session's goroutines.
func (h *Handler) beginSession() context.Context {
	h.endSession("")
	h.gen++
	parent := h.runCtx
	if parent == nil {
		parent = context.Background()
	}
	h.sessCtx, h.cancel = context.WithCancel(parent)
	return h.sessCtx
}

// endSession closes every connection and drops the role. Drafts in
// flight from peers are abandoned; local history stays.
func (h *Handler) endSession(detail string) {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	if h.listener != nil {
		h.listener.Close()
		h.listener = nil
	}
	if h.hub != nil {
		h.hub.CloseAll()
		h.hub = nil
	}
	if h.upstream != nil {
		h.upstream.Close()
		h.upstream = nil
	}
	h.gen++
	h.clearPending()
	wasActive := h.session.Role() != session.Idle
	h.session.Reset()
	if wasActive {
		h.logger.Info("session ended", "reason", detail)
		h.pushStatus(detail)
	}
}

func (h *Handler) status(detail string) Status {
	s := Status{
		Role:   h.session.Role(),
		Phase:  h.session.Phase(),
		Code:   h.session.Code(),
		Detail: detail,
	}
	switch s.Role {
	case session.Host:
		s.Guests = h.session.GuestCount()
	case session.Guest:
		s.Locked = h.session.RemoteLock()
	}
	return s
}

func (h *Handler) pushStatus(detail string) {
	h.events.StatusChanged(h.status(detail))
}

func (h *Handler) encode(m protocol.Message) []byte {
	data, err := h.codec.Encode(m)
	if err != nil {
		h.logger.Error("encoding message failed", "type", m.Type, "error", err)
		return nil
	}
	return data
}

// broadcast sends m to every guest but excludeID. It is a no-op unless
// hosting.
func (h *Handler) broadcast(m protocol.Message, excludeID string) {
	if h.hub == nil {
		return
	}
	if data := h.encode(m); data != nil {
		h.hub.Broadcast(data, excludeID)
	}
}

func (h *Handler) sendGuest(id string, m protocol.Message) {
	if h.hub == nil {
		return
	}
	data := h.encode(m)
	if data == nil {
		return
	}
	if err := h.hub.Send(id, data); err != nil {
		h.logger.Warn("send to guest failed", "guest", id, "type", m.Type, "error", err)
	}
}

func (h *Handler) sendHost(m protocol.Message) error {
	if h.upstream == nil {
		return ErrNotConnected
	}
	data := h.encode(m)
	if data == nil {
		return nil
	}
	if err := h.upstream.Send(data); err != nil {
		h.logger.Warn("send to host failed", "type", m.Type, "error", err)
		return err
	}
	return nil
}

// publish hands a locally made message to the peers: every guest when
// hosting, the host when connected as a guest.
func (h *Handler) publish(m protocol.Message) {
	switch h.session.Role() {
	case session.Host:
		h.broadcast(m, "")
	case session.Guest:
		h.sendHost(m)
	}
}

// LockChanged and RequestChanged deliver permission changes made through
// the session context. An empty guestID means every guest. Strokes still
// streaming from a guest that loses the pen are withdrawn.
func (h *Handler) LockChanged(guestID string, locked bool) {
	m := protocol.Message{Type: protocol.TypeLock, Value: protocol.Bool(locked)}
	if guestID == "" {
		h.broadcast(m, "")
	} else {
		h.sendGuest(guestID, m)
	}
	if locked && h.session.IsHost() {
		h.withdrawPendingFrom(guestID)
	}
}

func (h *Handler) RequestChanged(guestID string, requesting bool) {
	m := protocol.Message{Type: protocol.TypeRequestDraw, Requesting: protocol.Bool(requesting)}
	if guestID == "" {
		h.broadcast(m, "")
		return
	}
	h.sendGuest(guestID, m)
}
