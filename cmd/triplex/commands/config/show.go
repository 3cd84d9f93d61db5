package config

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/internal/cli/output"
	"github.com/triplexrpc/triplex/pkg/config"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display effective configuration",
	Long: `Display the effective triplex configuration after defaults and
environment overrides are applied.

Examples:
  # Effective config as YAML
  triplex config show

  # As JSON
  triplex config show --output json

  # For a specific config file
  triplex config show --config /etc/triplex/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// The --config flag is persistent on the root command.
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.MustLoad(configPath)
		if err != nil {
			return err
		}

		format, err := output.ParseFormat(showOutput)
		if err != nil {
			return err
		}
		switch format {
		case output.FormatJSON:
			return output.PrintJSON(os.Stdout, cfg)
		case output.FormatYAML:
			return output.PrintYAML(os.Stdout, cfg)
		default:
			return fmt.Errorf("config show renders yaml or json, not %s", showOutput)
		}
	},
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}
