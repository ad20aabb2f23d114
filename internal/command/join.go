package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	bnet "SharedBoard/internal/net"
	"SharedBoard/internal/session"

	"github.com/spf13/cobra"
)

var ErrNotFound = errors.New("no session with that code on the LAN")

func newJoinCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join <link|code>",
		Short: "Join a board session",
		Long:  "Join a session by its share link, or by its code when the host advertises on the LAN. Commands are read from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			link, err := resolveLink(ctx, args[0], cfg.Discovery.Enabled, cfg.Discovery.Timeout, bnet.Browse)
			if err != nil {
				return err
			}
			out := &printer{out: cmd.OutOrStdout()}
			b, err := startBoard(ctx, cfg, link.Codec, logger, out)
			if err != nil {
				return err
			}
			defer b.stop()

			out.printf("Joining %s over %s\n", link.Code, link.Transport)
			err = b.Join(ctx, link.Code, func(ctx context.Context) (bnet.Conn, error) {
				return bnet.Dial(ctx, link, cfg.Net.ICEServers)
			})
			if err != nil {
				return err
			}
			return runConsole(ctx, cmd.InOrStdin(), out, b)
		},
	}
	cmd.Flags().String("name", "", "name shown to the host")
	a.bind("session.name", cmd.Flags().Lookup("name"))
	return cmd
}

type browseFunc func(ctx context.Context, timeout time.Duration) ([]bnet.Service, error)

// resolveLink parses a share link. Anything else is taken as a session
// code and looked up on the LAN.
func resolveLink(ctx context.Context, arg string, discover bool, timeout time.Duration, browse browseFunc) (bnet.ShareLink, error) {
	link, err := bnet.ParseShareLink(arg)
	if err == nil || !errors.Is(err, bnet.ErrBadLink) {
		return link, err
	}
	code := session.SanitizeCode(arg)
	if code == "" || !discover {
		return bnet.ShareLink{}, err
	}
	services, err := browse(ctx, timeout)
	if err != nil && len(services) == 0 {
		return bnet.ShareLink{}, fmt.Errorf("browsing for %s: %w", code, err)
	}
	svc, ok := bnet.FindCode(services, code)
	if !ok {
		return bnet.ShareLink{}, fmt.Errorf("%w: %s", ErrNotFound, code)
	}
	return svc.Link()
}
