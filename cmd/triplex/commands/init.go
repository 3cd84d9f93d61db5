package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/internal/cli/prompt"
	"github.com/triplexrpc/triplex/pkg/config"
)

var (
	initForce bool
	initYes   bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Initialize a Triplex configuration file.

By default the command prompts for the basic settings (log level, gateway
ports, metrics) and writes a commented scaffold. Use --yes to accept all
defaults without prompting.

The configuration file is created at $XDG_CONFIG_HOME/triplex/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize interactively at the default location
  triplex init

  # Accept all defaults without prompting
  triplex init --yes

  # Initialize with custom path
  triplex init --config /etc/triplex/config.yaml

  # Force overwrite existing config
  triplex init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
	initCmd.Flags().BoolVarP(&initYes, "yes", "y", false, "Accept defaults without prompting")
}

func runInit(cmd *cobra.Command, args []string) error {
	opts := config.DefaultInitOptions()

	if !initYes {
		var err error
		opts, err = promptInitOptions(opts)
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Println("\nAborted.")
				return nil
			}
			return err
		}
	}

	configPath := cfgFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if err := config.InitConfigWithOptions(configPath, initForce, opts); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: triplex start")
	fmt.Printf("  3. Or specify custom config: triplex start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  A random JWT secret has been generated for development use.")
	fmt.Println("  For production, generate a secure secret and use an environment variable:")
	fmt.Println("    # Generates a 64-character hex string (32 bytes of entropy)")
	fmt.Println("    export TRIPLEX_SECURITY_JWT_SECRET=$(openssl rand -hex 32)")

	return nil
}

// promptInitOptions collects the scaffold settings interactively.
func promptInitOptions(defaults config.InitOptions) (config.InitOptions, error) {
	opts := defaults

	level, err := prompt.SelectString("Log level", []string{"INFO", "DEBUG", "WARN", "ERROR"})
	if err != nil {
		return opts, err
	}
	opts.LogLevel = level

	if opts.WebSocketPort, err = prompt.InputPort("WebSocket port", defaults.WebSocketPort); err != nil {
		return opts, err
	}
	if opts.TCPPort, err = prompt.InputPort("TCP port", defaults.TCPPort); err != nil {
		return opts, err
	}
	if opts.KCPPort, err = prompt.InputPort("KCP port", defaults.KCPPort); err != nil {
		return opts, err
	}

	if opts.MetricsEnabled, err = prompt.Confirm("Expose Prometheus metrics on /metrics", false); err != nil {
		return opts, err
	}

	return opts, nil
}
