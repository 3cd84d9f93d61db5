package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/internal/telemetry"
	"github.com/triplexrpc/triplex/pkg/config"
	"github.com/triplexrpc/triplex/pkg/server"
)

var (
	startLogLevel string
	pidFile       string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Triplex server",
	Long: `Start the Triplex server with the specified configuration.

The server binds one gateway per enabled transport (WebSocket, TCP, KCP)
and serves the built-in demo commands (ping, echo, and the message.test
push feed) until it receives SIGINT or SIGTERM.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/triplex/config.yaml.

Examples:
  # Start with the default config
  triplex start

  # Start with custom config file
  triplex start --config /etc/triplex/config.yaml

  # Override the configured log level
  triplex start --log-level DEBUG

  # Start with environment variable overrides
  TRIPLEX_LOGGING_LEVEL=DEBUG triplex start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override configured log level (DEBUG|INFO|WARN|ERROR)")
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Path to PID file (default: none)")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(cfgFile)
	if err != nil {
		return err
	}

	if startLogLevel != "" {
		cfg.Logging.Level = strings.ToUpper(startLogLevel)
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(ctx)

	fmt.Println("Triplex - Bidirectional RPC server")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", configSource(cfgFile))
	if cfg.Metrics.Enabled {
		logger.Info("Metrics enabled", logger.KeyPort, cfg.Server.WebSocket.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Demo commands are registered before Serve binds the sockets, so the
	// first accepted connection already sees them.
	server.RegisterDemoHandlers(srv.Router())
	go server.RunMessageFeed(ctx, srv.Router(), 10*time.Second)

	if pidFile != "" {
		if err := os.WriteFile(pidFile, fmt.Appendf(nil, "%d", os.Getpid()), 0o644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	// Serve blocks until a gateway fails or the signal context cancels,
	// then drains the remaining gateways before returning.
	if err := srv.Serve(ctx); err != nil {
		logger.Error("Server exited with error", logger.Err(err))
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// initTelemetry starts the OpenTelemetry tracer and the Pyroscope profiler
// when the config enables them. The returned function shuts both down.
func initTelemetry(ctx context.Context, cfg *config.Config) (func(context.Context), error) {
	tracesDown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	profilesDown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		_ = tracesDown(ctx)
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint, "profile_types", cfg.Telemetry.Profiling.ProfileTypes)
	} else {
		logger.Info("Profiling disabled")
	}

	return func(ctx context.Context) {
		if err := profilesDown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
		if err := tracesDown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}, nil
}

// configSource names where the effective configuration came from.
func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
