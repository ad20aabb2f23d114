package command

import (
	"fmt"
	"text/tabwriter"

	bnet "SharedBoard/internal/net"

	"github.com/spf13/cobra"
)

func newDiscoverCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "List board sessions on the LAN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := a.load(cmd)
			if err != nil {
				return err
			}
			services, err := bnet.Browse(cmd.Context(), cfg.Discovery.Timeout)
			if err != nil {
				logger.Warn("browse ended early", "component", "mdns", "error", err)
			}
			out := cmd.OutOrStdout()
			if len(services) == 0 {
				fmt.Fprintln(out, "No sessions found.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tHOST\tADDRESS\tLINK")
			for _, s := range services {
				link, err := s.Link()
				if err != nil {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Code, s.Instance, s.Addr, link)
			}
			return tw.Flush()
		},
	}
}
