package net

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

type ServerOptions struct {
	Code       string
	Binary     bool
	ICEServers []string
	Logger     *slog.Logger
}

// Server is the host's HTTP endpoint. Websocket upgrades on /ws/{code}
// and WebRTC offers on /rtc/{code} both land in one accept queue.
type Server struct {
	opts     ServerOptions
	router   *mux.Router
	upgrader websocket.Upgrader
	q        *queue
	logger   *slog.Logger

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

func NewServer(opts ServerOptions) *Server {
	s := &Server{
		opts:   opts,
		q:      newQueue(16),
		logger: opts.Logger.With("component", "transport"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  64 << 10,
		WriteBufferSize: 64 << 10,
		CheckOrigin:     checkOrigin,
	}
	r := mux.NewRouter()
	r.HandleFunc("/ws/{code}", s.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/rtc/{code}", s.handleRTC).Methods(http.MethodPost)
	s.router = r
	return s
}

// Native guests send no Origin; browsers must come from the host itself.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Listen starts serving on addr in the background.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s, ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.ln, s.srv = ln, srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()
	s.logger.Info("host server listening", "addr", ln.Addr().String())
	return nil
}

func (s *Server) Accept(ctx context.Context) (Conn, error) { return s.q.accept(ctx) }

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Close() error {
	s.q.close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return s.srv.Close()
	}
	return nil
}

func (s *Server) sessionMatches(r *http.Request) bool {
	return strings.EqualFold(mux.Vars(r)["code"], s.opts.Code)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.sessionMatches(r) {
		http.NotFound(w, r)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	c := newWSConn(r.RemoteAddr, ws, s.opts.Binary)
	if !s.q.push(c) {
		c.Close()
	}
}

func (s *Server) handleRTC(w http.ResponseWriter, r *http.Request) {
	if !s.sessionMatches(r) {
		http.NotFound(w, r)
		return
	}
	var offer webrtc.SessionDescription
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&offer); err != nil || offer.Type != webrtc.SDPTypeOffer {
		http.Error(w, "expected an SDP offer", http.StatusBadRequest)
		return
	}
	answer, err := answerOffer(r.Context(), rtcConfig(s.opts.ICEServers), offer, s.opts.Binary, func(c Conn) {
		if !s.q.push(c) {
			c.Close()
		}
	})
	if err != nil {
		s.logger.Warn("answering offer failed", "remote", r.RemoteAddr, "error", err)
		http.Error(w, "could not answer offer", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(answer)
}
