package config

import (
	"strings"
	"time"

	"github.com/triplexrpc/triplex/internal/bytesize"
)

// ApplyDefaults fills unset configuration fields after file and environment
// loading. Zero values (0, "", nil) are treated as unset; explicit values
// are never touched.
//
// Security and Metrics have no appliers: their zero values (everything off)
// are the defaults.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServerDefaults(&cfg.Server)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// The logger compares levels case-sensitively.
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults leaves Enabled alone (tracing is opt-in) and fills
// the OTLP gRPC endpoint and head sampling rate.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "triplex"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	applyProfilingDefaults(&cfg.Profiling)
}

func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}
	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxConcurrentRequests == 0 {
		cfg.MaxConcurrentRequests = 64
	}

	applyWebSocketDefaults(&cfg.WebSocket)
	applyTCPStreamDefaults(&cfg.TCPStream)
	applyKCPDefaults(&cfg.KCP)
}

func applyWebSocketDefaults(cfg *WebSocketConfig) {
	if cfg.Port == 0 {
		cfg.Port = 5000
	}
	if len(cfg.Patterns) == 0 {
		cfg.Patterns = []string{"/ws"}
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 4 * bytesize.KiB
	}
	// Zero means "not set" here; a negative interval disables pings.
	if cfg.KeepAliveInterval == 0 {
		cfg.KeepAliveInterval = 30 * time.Second
	}
}

// applyTCPStreamDefaults leaves MaxConnections alone: 0 means unlimited.
func applyTCPStreamDefaults(cfg *TCPStreamConfig) {
	if cfg.Port == 0 {
		cfg.Port = 5003
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 4 * bytesize.KiB
	}
}

// applyKCPDefaults leaves Key and FEC shards alone: empty/zero disables
// packet encryption and forward error correction.
func applyKCPDefaults(cfg *KCPConfig) {
	if cfg.Port == 0 {
		cfg.Port = 5004
	}
}

// GetDefaultConfig returns a Config with every default applied, the shape
// "triplex init" scaffolds and tests assert against.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
