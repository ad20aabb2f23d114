package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"SharedBoard/internal/collab"
	"SharedBoard/internal/config"
	"SharedBoard/internal/history"
	"SharedBoard/internal/logging"
	"SharedBoard/internal/pages"
	"SharedBoard/internal/protocol"
	"SharedBoard/internal/raster"
	"SharedBoard/internal/replay"
	"SharedBoard/internal/session"
	"SharedBoard/internal/state"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// bind ties a flag to a config key. Only flags the user actually set
// override the file and environment.
func (a *app) bind(key string, flag *pflag.Flag) {
	if err := a.v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding %s: %v", key, err))
	}
}

func (a *app) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(a.v, a.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: cmd.ErrOrStderr()})
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// board is one running handler with its own history and surface.
type board struct {
	*collab.Handler
	surface *raster.Surface
	cancel  context.CancelFunc
	done    chan struct{}
}

func startBoard(ctx context.Context, cfg *config.Config, codecName string, logger *slog.Logger, events collab.Events) (*board, error) {
	codec, err := protocol.CodecByName(codecName)
	if err != nil {
		return nil, err
	}
	clock := state.NewClock("")
	surface := raster.NewSurface(cfg.Board.Width, cfg.Board.Height)
	bg := pages.ResolveBackground(cfg.Board.Background.Pattern, cfg.Board.Background.Color, "")
	eng := history.New(history.Options{
		Store:    state.NewActionStore(cfg.Board.HistoryLimit, logger),
		Pages:    pages.NewStore(bg),
		Replay:   replay.NewEngine(surface, logger),
		Builder:  state.NewBuilder(clock),
		AuthorID: clock.ClientID(),
		Logger:   logger,
	})
	h := collab.NewHandler(collab.Options{
		Session: session.NewContext(nil, nil),
		History: eng,
		Codec:   codec,
		Events:  events,
		Logger:  logger,
	})
	ctx, cancel := context.WithCancel(ctx)
	b := &board{Handler: h, surface: surface, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(b.done)
		h.Run(ctx)
	}()
	if cfg.Session.Name != "" {
		// Kept until a join announces it.
		h.SetGuestName(cfg.Session.Name)
	}
	return b, nil
}

func (b *board) stop() {
	b.cancel()
	<-b.done
}

// printer reports handler events on the console.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

func (p *printer) HistoryChanged(undo, redo int) {}

func (p *printer) SurfaceNeedsRedraw(string, state.Rect) {}

func (p *printer) RosterChanged(r session.Roster) {
	if !r.IsHost {
		return
	}
	p.printf("* %d guest(s), mode %s\n", r.Total, r.Mode)
}

func (p *printer) StatusChanged(s collab.Status) {
	if s.Detail == "" {
		return
	}
	p.printf("* %s\n", s.Detail)
}
