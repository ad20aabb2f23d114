package net

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// exchange checks one frame in each direction.
func exchange(t *testing.T, ctx context.Context, host, guest Conn, frame []byte) {
	t.Helper()
	if err := guest.Send(frame); err != nil {
		t.Fatalf("guest send: %v", err)
	}
	got, err := host.Receive(ctx)
	if err != nil {
		t.Fatalf("host receive: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("host got %d bytes, want %d", len(got), len(frame))
	}
	if err := host.Send([]byte(`{"type":"hello"}`)); err != nil {
		t.Fatalf("host send: %v", err)
	}
	if got, err := guest.Receive(ctx); err != nil || string(got) != `{"type":"hello"}` {
		t.Fatalf("guest receive = %q, %v", got, err)
	}
}

func TestPipe(t *testing.T) {
	ctx := testContext(t)
	a, b := Pipe("a", "b")
	exchange(t, ctx, a, b, []byte("frame"))

	b.Send([]byte("last"))
	b.Close()
	if got, err := a.Receive(ctx); err != nil || string(got) != "last" {
		t.Fatalf("buffered frame lost on close: %q, %v", got, err)
	}
	if _, err := a.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("receive after close = %v, want ErrClosed", err)
	}
	if err := a.Send([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close = %v, want ErrClosed", err)
	}
}

func TestPipeListener(t *testing.T) {
	ctx := testContext(t)
	l := NewPipeListener()
	guest, err := l.Dial("guest-1")
	if err != nil {
		t.Fatal(err)
	}
	host, err := l.Accept(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if host.ID() != "guest-1" {
		t.Errorf("host end id = %q", host.ID())
	}
	exchange(t, ctx, host, guest, []byte("x"))

	l.Close()
	if _, err := l.Accept(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("accept after close = %v", err)
	}
	if _, err := l.Dial("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("dial after close = %v", err)
	}
}

func TestHub(t *testing.T) {
	ctx := testContext(t)
	h := NewHub(discard())
	var guests []Conn
	for _, id := range []string{"g1", "g2", "g3"} {
		hostEnd, guestEnd := Pipe(id, "host")
		h.Add(hostEnd)
		guests = append(guests, guestEnd)
	}
	if h.Len() != 3 || strings.Join(h.IDs(), ",") != "g1,g2,g3" {
		t.Fatalf("hub = %v", h.IDs())
	}

	h.Broadcast([]byte("all-but-g2"), "g2")
	for i, g := range guests {
		if i == 1 {
			continue
		}
		if got, err := g.Receive(ctx); err != nil || string(got) != "all-but-g2" {
			t.Errorf("guest %d got %q, %v", i, got, err)
		}
	}
	if err := h.Send("g2", []byte("only-g2")); err != nil {
		t.Fatal(err)
	}
	if got, _ := guests[1].Receive(ctx); string(got) != "only-g2" {
		t.Errorf("g2 got %q", got)
	}
	if err := h.Send("nobody", nil); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("send to unknown = %v", err)
	}

	if !h.Remove("g1") || h.Remove("g1") {
		t.Errorf("remove should succeed exactly once")
	}
	h.CloseAll()
	if h.Len() != 0 {
		t.Errorf("hub not empty after CloseAll")
	}
	if _, err := guests[2].Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("guest not closed by CloseAll: %v", err)
	}
}

func TestTCPLoopback(t *testing.T) {
	ctx := testContext(t)
	ln, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan Conn, 1)
	go func() {
		c, err := ln.Accept(ctx)
		if err != nil {
			t.Error(err)
			close(accepted)
			return
		}
		accepted <- c
	}()
	guest, err := DialTCP(ctx, ln.Addr())
	if err != nil {
		t.Fatal(err)
	}
	host := <-accepted
	if host == nil {
		t.FailNow()
	}
	if host.ID() != guest.ID() {
		t.Errorf("host names guest %q, guest is %q", host.ID(), guest.ID())
	}

	big := bytes.Repeat([]byte("a"), 200<<10)
	exchange(t, ctx, host, guest, big)

	if err := guest.Send([]byte("two\nlines")); err == nil {
		t.Errorf("frame with a newline was sent")
	}
	guest.Close()
	if _, err := host.Receive(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("host receive after guest close = %v", err)
	}
}

func TestTCPAcceptHonorsContext(t *testing.T) {
	ln, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := ln.Accept(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("accept = %v, want deadline exceeded", err)
	}
}

func TestWebSocket(t *testing.T) {
	ctx := testContext(t)
	srv := NewServer(ServerOptions{Code: "ABC123", Logger: discard()})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http")

	guest, err := DialWS(ctx, base+"/ws/abc123", true)
	if err != nil {
		t.Fatal(err)
	}
	host, err := srv.Accept(ctx)
	if err != nil {
		t.Fatal(err)
	}
	exchange(t, ctx, host, guest, []byte{0xa1, 0x00, '\n', 0xff})

	guest.Close()
	if _, err := host.Receive(ctx); err == nil {
		t.Errorf("host receive after guest close succeeded")
	}

	if _, err := DialWS(ctx, base+"/ws/WRONG", false); !errors.Is(err, ErrNoSession) {
		t.Errorf("dial wrong code = %v, want ErrNoSession", err)
	}
}

func TestRTCRejectsBadOffer(t *testing.T) {
	srv := NewServer(ServerOptions{Code: "ABC", Logger: discard()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/rtc/ABC", "application/json", strings.NewReader(`{"type":"answer","sdp":""}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	resp, err = http.Post(ts.URL+"/rtc/NOPE", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("wrong code status = %d, want 404", resp.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"null", true},
		{"http://board.local:8888", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://board.local:8888/ws/X", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
