package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load the configuration file and report problems.

The file is parsed, defaults are applied, and every field is checked
against its validation rules. Settings that are legal but likely
unintended come back as warnings.

Examples:
  # Validate the default config
  triplex config validate

  # Validate a specific file
  triplex config validate --config /etc/triplex/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.MustLoad(configPath)
		if err != nil {
			return err
		}

		if configPath == "" {
			configPath = config.GetDefaultConfigPath()
		}
		fmt.Printf("Configuration file: %s\n", configPath)
		fmt.Println("Validation: OK")

		if warnings := lintConfig(cfg); len(warnings) > 0 {
			fmt.Println("\nWarnings:")
			for _, w := range warnings {
				fmt.Printf("  - %s\n", w)
			}
		}

		fmt.Println("\nConfiguration summary:")
		fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
		fmt.Printf("  WebSocket: %s\n", gatewaySummary(cfg.Server.WebSocket.IsEnabled(), cfg.Server.WebSocket.Port))
		fmt.Printf("  TCP:       %s\n", gatewaySummary(cfg.Server.TCPStream.IsEnabled(), cfg.Server.TCPStream.Port))
		fmt.Printf("  KCP:       %s\n", gatewaySummary(cfg.Server.KCP.IsEnabled(), cfg.Server.KCP.Port))
		fmt.Printf("  Metrics:   %t\n", cfg.Metrics.Enabled)
		return nil
	},
}

// lintConfig flags settings that pass validation but are likely mistakes.
func lintConfig(cfg *config.Config) []string {
	var warnings []string
	if !cfg.Security.EnableAuthentication {
		warnings = append(warnings, "Authentication disabled - all connections are anonymous")
	}
	if cfg.Security.RequireAuthenticatedUser && (cfg.Server.TCPStream.IsEnabled() || cfg.Server.KCP.IsEnabled()) {
		warnings = append(warnings, "require_authenticated_user cannot be enforced on tcp/kcp gateways; they connect anonymously")
	}
	if cfg.Server.KCP.IsEnabled() && cfg.Server.KCP.Key == "" {
		warnings = append(warnings, "KCP packet encryption disabled (no key configured)")
	}
	return warnings
}

func gatewaySummary(enabled bool, port int) string {
	if !enabled {
		return "disabled"
	}
	return fmt.Sprintf("port %d", port)
}
