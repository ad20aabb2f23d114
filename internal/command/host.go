package command

import (
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	bnet "SharedBoard/internal/net"
	"SharedBoard/internal/session"

	"github.com/spf13/cobra"
)

func newHostCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Host a board session",
		Long:  "Host a board session, print its share link and advertise it on the LAN. Commands are read from stdin.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			code := session.SanitizeCode(cfg.Session.Code)
			if code == "" {
				code = session.RandomCode()
			}
			out := &printer{out: cmd.OutOrStdout()}
			b, err := startBoard(ctx, cfg, cfg.Net.Codec, logger, out)
			if err != nil {
				return err
			}
			defer b.stop()

			l, err := bnet.Listen(cfg.Net.Transport, ":"+strconv.Itoa(cfg.Net.Port), bnet.ServerOptions{
				Code:       code,
				Binary:     cfg.Net.Codec == "cbor",
				ICEServers: cfg.Net.ICEServers,
				Logger:     logger,
			})
			if err != nil {
				return fmt.Errorf("listening on port %d: %w", cfg.Net.Port, err)
			}
			if err := b.Host(code, l); err != nil {
				l.Close()
				return err
			}
			port, err := listenPort(l.Addr())
			if err != nil {
				return err
			}

			link := bnet.ShareLink{Host: bnet.GetOutgoingIP(), Port: port, Code: code, Transport: cfg.Net.Transport, Codec: cfg.Net.Codec}
			out.printf("Hosting session %s\nShare link: %s\n", code, link)

			if cfg.Discovery.Enabled {
				server, err := bnet.Advertise(cfg.Session.Name, code, cfg.Net.Transport, cfg.Net.Codec, port)
				if err != nil {
					logger.Warn("LAN discovery unavailable", "component", "mdns", "error", err)
				} else {
					defer server.Shutdown()
				}
			}
			return runConsole(ctx, cmd.InOrStdin(), out, b)
		},
	}
	cmd.Flags().String("code", "", "session code (random when empty)")
	cmd.Flags().String("transport", bnet.TransportWS, "transport: ws, tcp or webrtc")
	cmd.Flags().Int("port", 8888, "port to listen on (0 picks a free one)")
	cmd.Flags().String("codec", "json", "wire codec: json or cbor")
	cmd.Flags().Bool("discovery", true, "advertise the session over mDNS")
	cmd.Flags().Int("width", 1280, "board width in pixels")
	cmd.Flags().Int("height", 720, "board height in pixels")
	a.bind("session.code", cmd.Flags().Lookup("code"))
	a.bind("net.transport", cmd.Flags().Lookup("transport"))
	a.bind("net.port", cmd.Flags().Lookup("port"))
	a.bind("net.codec", cmd.Flags().Lookup("codec"))
	a.bind("discovery.enabled", cmd.Flags().Lookup("discovery"))
	a.bind("board.width", cmd.Flags().Lookup("width"))
	a.bind("board.height", cmd.Flags().Lookup("height"))
	return cmd
}

func listenPort(addr string) (int, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("listener address %q: %w", addr, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil || p == 0 {
		return 0, errors.New("listener has no port")
	}
	return p, nil
}
