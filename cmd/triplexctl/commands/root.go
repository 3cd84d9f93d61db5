// Package commands wires up the triplexctl client CLI.
package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/cmd/triplexctl/cmdutil"
	ctxcmd "github.com/triplexrpc/triplex/cmd/triplexctl/commands/context"
)

// Version metadata. Release builds override these through
// -ldflags "-X github.com/triplexrpc/triplex/cmd/triplexctl/commands.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "triplexctl",
	Short: "Triplex Control - RPC client",
	Long: `triplexctl is the command-line client for Triplex servers.

It speaks the same envelope protocol as the server on every transport:
give it a ws://, tcp:// or kcp:// endpoint and it can round-trip requests,
measure latencies, and watch server push messages.

Endpoints and bearer tokens can be stored as named contexts
('triplexctl context set') so they do not have to be repeated per command.
The config file also honors preferences.default_output for commands that
render tables, JSON, or YAML.

Use "triplexctl [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.Endpoint, _ = cmd.Flags().GetString("endpoint")
		cmdutil.Flags.Token, _ = cmd.Flags().GetString("token")
		cmdutil.Flags.KCPKey, _ = cmd.Flags().GetString("kcp-key")
		cmdutil.Flags.Context, _ = cmd.Flags().GetString("context")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.Timeout, _ = cmd.Flags().GetDuration("timeout")
	},
}

// Execute runs the root command. main calls this exactly once.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("endpoint", "", "Server endpoint (ws://, tcp:// or kcp:// URL; overrides stored context)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for WebSocket endpoints (overrides stored context)")
	rootCmd.PersistentFlags().String("kcp-key", "", "Pre-shared encryption key for kcp:// endpoints (overrides stored context)")
	rootCmd.PersistentFlags().String("context", "", "Named context to use (default: current context)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (table|json|yaml; default from stored preferences, then table)")
	rootCmd.PersistentFlags().Duration("timeout", 20*time.Second, "Per-request timeout")

	rootCmd.AddCommand(
		versionCmd,
		pingCmd,
		requestCmd,
		watchCmd,
		ctxcmd.Cmd,
		completionCmd,
	)

	// Our completion command replaces the generated one.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
