// Package context implements the "triplexctl context" subcommands.
package context

import "github.com/spf13/cobra"

// Cmd groups the context management subcommands.
var Cmd = &cobra.Command{
	Use:   "context",
	Short: "Manage server contexts",
	Long: `Manage named connection contexts.

A context stores an endpoint plus its credentials (bearer token or KCP
pre-shared key) under a name, so commands do not need --endpoint flags.
When no --context or --endpoint flag is given, the current context is
used.`,
}

func init() {
	Cmd.AddCommand(setCmd, listCmd, useCmd, currentCmd, renameCmd, deleteCmd)
}
