// Package config implements the "triplex config" subcommands.
package config

import "github.com/spf13/cobra"

// Cmd groups the configuration inspection subcommands.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and validate configuration",
	Long: `Inspect the effective triplex configuration.

Configuration is read from --config, $XDG_CONFIG_HOME/triplex/config.yaml,
or built-in defaults, with TRIPLEX_* environment variables applied on top.
Use 'triplex init' to scaffold a new configuration file.`,
}

func init() {
	Cmd.AddCommand(showCmd, validateCmd, schemaCmd)
}
