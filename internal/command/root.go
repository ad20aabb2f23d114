// Package command is the sharedboard command line.
package command

import (
	"os"

	"SharedBoard/internal/config"
	"SharedBoard/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const AppName = "sharedboard"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// app carries what every subcommand shares: the viper instance its flags
// are bound to and the --config path.
type app struct {
	v          *viper.Viper
	configPath string
}

func NewRootCmd(version string) *cobra.Command {
	a := &app{v: config.New()}
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "SharedBoard - a collaborative whiteboard for the local network",
		Long:          "SharedBoard hosts or joins a shared drawing board. One peer hosts, guests join with a share link or a session code found on the LAN.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./sharedboard.yaml or ~/.config/sharedboard/sharedboard.yaml)")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", logging.FormatAuto, "log format: auto, text or json")
	flags.StringSlice("ice", nil, "STUN/TURN server URL for webrtc (repeatable)")
	flags.Duration("discovery-timeout", 0, "how long to browse the LAN for sessions")
	a.bind("log.level", flags.Lookup("log-level"))
	a.bind("log.format", flags.Lookup("log-format"))
	a.bind("net.iceServers", flags.Lookup("ice"))
	a.bind("discovery.timeout", flags.Lookup("discovery-timeout"))

	cmd.AddCommand(
		newHostCmd(a),
		newJoinCmd(a),
		newDiscoverCmd(a),
	)
	return cmd
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCmd(Version).Execute()
}
