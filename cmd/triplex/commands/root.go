// Package commands wires up the triplex server CLI.
package commands

import (
	"github.com/spf13/cobra"

	configcmd "github.com/triplexrpc/triplex/cmd/triplex/commands/config"
)

// Version metadata. Release builds override these through
// -ldflags "-X github.com/triplexrpc/triplex/cmd/triplex/commands.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// cfgFile holds the --config persistent flag shared by every subcommand.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "triplex",
	Short: "Triplex - Bidirectional RPC server",
	Long: `Triplex is a bidirectional RPC server that multiplexes one command
dispatch model across WebSocket, raw TCP, and KCP transports. Clients send
correlated requests; the server answers them and can push unsolicited
messages down the same connection at any time.

Use "triplex [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. main calls this exactly once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/triplex/config.yaml)")

	rootCmd.AddCommand(
		versionCmd,
		startCmd,
		initCmd,
		tokenCmd,
		statusCmd,
		logsCmd,
		configcmd.Cmd,
		completionCmd,
	)

	// Our completion command replaces the generated one.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
