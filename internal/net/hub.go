package net

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

// Hub is the host's set of live guest connections.
type Hub struct {
	conns  map[string]Conn
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]Conn),
		logger: logger.With("component", "transport"),
	}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID()] = c
	h.logger.Info("added connection", "peer", c.ID())
}

// Remove forgets the connection without closing it.
func (h *Hub) Remove(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[id]; !ok {
		return false
	}
	delete(h.conns, id)
	h.logger.Info("removed connection", "peer", id)
	return true
}

func (h *Hub) Get(id string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.conns))
	for id := range h.conns {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Broadcast sends data to every connection except excludeID. Send
// failures are logged; the read side notices the dead peer.
func (h *Hub) Broadcast(data []byte, excludeID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.conns {
		if id == excludeID {
			continue
		}
		if err := c.Send(data); err != nil {
			h.logger.Warn("broadcast failed", "peer", id, "error", err)
		}
	}
}

func (h *Hub) Send(id string, data []byte) error {
	c, ok := h.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, id)
	}
	return c.Send(data)
}

func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[string]Conn)
	h.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}
