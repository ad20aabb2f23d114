package command

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SharedBoard/internal/config"
	bnet "SharedBoard/internal/net"
	"SharedBoard/internal/raster"
	"SharedBoard/internal/session"
	"SharedBoard/internal/state"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Board.Width, cfg.Board.Height = 96, 64
	cfg.Board.Background.Pattern, cfg.Board.Background.Color = "solid", "#ffffff"
	cfg.Net.Transport, cfg.Net.Codec = bnet.TransportWS, "json"
	return cfg
}

func newConsole(t *testing.T) (*console, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	out := &printer{out: &buf}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := startBoard(context.Background(), testConfig(), "json", logger, out)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.stop)
	return &console{board: b, out: out}, &buf
}

func run(t *testing.T, c *console, lines ...string) {
	t.Helper()
	for _, line := range lines {
		if err := c.exec(line); err != nil {
			t.Fatalf("%q: %v", line, err)
		}
	}
}

func TestConsoleDrawing(t *testing.T) {
	c, buf := newConsole(t)
	run(t, c,
		"rect 4 4 40 40",
		"ellipse 10 10 30 20 #ff0000 3 #00ff00",
		"line 0 0 90 60 #000000 2",
		"stroke 5 5 20 20 40 10 color=#1d4ed8 size=6",
	)
	if undo, _ := c.board.Counts(); undo != 4 {
		t.Fatalf("undo depth = %d, want 4", undo)
	}
	run(t, c, "undo", "undo", "redo", "status")
	if !strings.Contains(buf.String(), "undo 3, redo 1") {
		t.Errorf("status output = %q", buf.String())
	}
	run(t, c, "clear")
	if undo, _ := c.board.Counts(); undo != 4 {
		t.Errorf("undo depth after clear = %d, want 4", undo)
	}
}

func TestConsoleImage(t *testing.T) {
	c, _ := newConsole(t)
	s := raster.NewSurface(8, 8)
	s.DrawSegment(state.Segment{X0: 0, Y0: 0, X1: 8, Y1: 8, Color: "#ff0000", Size: 3, Mode: state.ModeDraw})
	dataURL, err := s.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	png, err := raster.PNGFromDataURL(dataURL)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "dot.png")
	if err := os.WriteFile(path, png, 0o644); err != nil {
		t.Fatal(err)
	}
	run(t, c, "image "+path+" 10 10", "image "+path+" 20 20 16 16")
	if undo, _ := c.board.Counts(); undo != 2 {
		t.Errorf("undo depth = %d, want 2", undo)
	}
}

func TestConsolePagesAndExport(t *testing.T) {
	c, buf := newConsole(t)
	run(t, c, "rect 1 1 30 30", "page add grid", "rect 5 5 10 10", "page list")
	list, active := c.board.Pages()
	if len(list) != 2 || active != list[1].ID {
		t.Fatalf("pages = %+v, active %s", list, active)
	}
	if strings.Count(buf.String(), "\n") < 2 || !strings.Contains(buf.String(), "* 2 "+active+" grid") {
		t.Errorf("page list output = %q", buf.String())
	}
	run(t, c, "page goto "+list[0].ID, "bg solid #fef3c7")
	if list, _ := c.board.Pages(); list[0].Background.Color != "#fef3c7" {
		t.Errorf("background = %+v", list[0].Background)
	}

	pdf := filepath.Join(t.TempDir(), "board.pdf")
	run(t, c, "export "+pdf)
	data, err := os.ReadFile(pdf)
	if err != nil || !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Fatalf("export wrote %d bytes, err %v", len(data), err)
	}

	run(t, c, "page remove "+active)
	if list, _ := c.board.Pages(); len(list) != 1 {
		t.Errorf("pages after remove = %d", len(list))
	}
}

func TestConsoleErrors(t *testing.T) {
	c, _ := newConsole(t)
	tests := []struct {
		line string
		want error
	}{
		{"bogus", errUsage},
		{"rect 1 2", errUsage},
		{"stroke 1 2 3", errUsage},
		{"stroke 1 2 3 4 width=3", errUsage},
		{"request maybe", errUsage},
		{"mode all", session.ErrNotHost},
		{"mode sometimes", session.ErrBadMode},
		{"request on", session.ErrNotGuest},
		{"quit", errQuit},
	}
	for _, tt := range tests {
		if err := c.exec(tt.line); !errors.Is(err, tt.want) {
			t.Errorf("%q err = %v, want %v", tt.line, err, tt.want)
		}
	}
	if err := c.exec("   "); err != nil {
		t.Errorf("blank line err = %v", err)
	}
}

func TestRunConsole(t *testing.T) {
	c, buf := newConsole(t)
	in := strings.NewReader("rect 1 1 9 9\nnope\nquit\nrect 2 2 8 8\n")
	if err := runConsole(context.Background(), in, c.out, c.board); err != nil {
		t.Fatal(err)
	}
	if undo, _ := c.board.Counts(); undo != 1 {
		t.Errorf("undo depth = %d, want 1 (lines after quit must not run)", undo)
	}
	if !strings.Contains(buf.String(), `unknown command "nope"`) {
		t.Errorf("output = %q", buf.String())
	}

	// Input ending without quit keeps the board up until the context ends.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := runConsole(ctx, strings.NewReader(""), c.out, c.board); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Errorf("console returned before its context ended")
	}
}

func TestHostAndJoinOverPipe(t *testing.T) {
	host, hostOut := newConsole(t)
	guest, _ := newConsole(t)
	pl := bnet.NewPipeListener()
	if err := host.board.Host("ROOM42", pl); err != nil {
		t.Fatal(err)
	}
	err := guest.board.Join(context.Background(), "ROOM42", func(context.Context) (bnet.Conn, error) { return pl.Dial("g1") })
	if err != nil {
		t.Fatal(err)
	}
	run(t, guest, "name Ana", "request on")

	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(hostRoster(t, host), "requesting=true") {
		if time.Now().After(deadline) {
			t.Fatalf("host never saw the draw request: %q", hostOut.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	run(t, host, "allow Ana")
	for guest.board.Status().Locked {
		if time.Now().After(deadline) {
			t.Fatal("guest still locked")
		}
		time.Sleep(5 * time.Millisecond)
	}
	run(t, guest, "rect 3 3 30 30")
}

func hostRoster(t *testing.T, c *console) string {
	t.Helper()
	var buf bytes.Buffer
	view := &console{board: c.board, out: &printer{out: &buf}}
	run(t, view, "roster")
	return buf.String()
}
