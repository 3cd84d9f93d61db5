package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/triplexrpc/triplex/internal/bytesize"
)

// Config represents the Triplex server configuration.
//
// This structure captures the static configuration aspects of the server:
//   - Logging configuration
//   - Telemetry/tracing configuration
//   - Security settings (JWT verification for WebSocket connections)
//   - Server settings (transport gateways, shutdown timeout, request limits)
//   - Metrics exposure
//
// Command handlers and broadcasters are registered programmatically through
// the rpc.Router API; only transport and operational settings live here.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (TRIPLEX_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Security controls connection authentication
	Security SecurityConfig `mapstructure:"security" yaml:"security"`

	// Server configures the transport gateways and request handling limits
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
// When enabled, trace data is exported to an OTLP-compatible collector
// (e.g., Jaeger, Tempo, or any OTLP receiver).
type TelemetryConfig struct {
	// Enabled controls whether distributed tracing is enabled
	// Default: false (opt-in for telemetry)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ServiceName identifies this process in traces and profiles
	// Default: "triplex"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`

	// Endpoint is the OTLP collector endpoint (host:port)
	// Default: "localhost:4317" (standard OTLP gRPC port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure controls whether to use insecure (non-TLS) connection
	// Default: true (for local development)
	// Set to false in production with a TLS-enabled collector
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate controls the trace sampling rate (0.0 to 1.0)
	// 1.0 = sample all traces, 0.5 = sample 50%, 0.0 = no sampling
	// Default: 1.0 (sample all)
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling contains Pyroscope continuous profiling configuration
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
// When enabled, CPU and memory profiles are continuously sent to a Pyroscope server
// for flame graph visualization and performance analysis.
type ProfilingConfig struct {
	// Enabled controls whether continuous profiling is enabled
	// Default: false (opt-in for profiling)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server endpoint (URL)
	// Default: "http://localhost:4040" (standard Pyroscope port)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes specifies which profile types to collect
	// Valid values: cpu, alloc_objects, alloc_space, inuse_objects, inuse_space,
	//               goroutines, mutex_count, mutex_duration, block_count, block_duration
	// Default: ["cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines"]
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// SecurityConfig controls connection authentication.
//
// When EnableAuthentication is true, WebSocket upgrade requests carrying a
// bearer token (Authorization header or ?token= query parameter) have the
// token verified as an HS256 JWT signed with JWTSecret. The resulting
// principal is attached to the connection and exposed to handlers.
//
// TCP and KCP connections carry no upgrade request and therefore no
// credentials; they always connect anonymously.
type SecurityConfig struct {
	// EnableAuthentication turns on JWT verification for WebSocket upgrades.
	// Default: false (all connections are anonymous)
	EnableAuthentication bool `mapstructure:"enable_authentication" yaml:"enable_authentication"`

	// RequireAuthenticatedUser refuses WebSocket upgrades that do not
	// produce an authenticated principal (missing or invalid token).
	// TCP and KCP gateways cannot enforce this; when they are enabled
	// together with this flag, a warning is logged at startup.
	// Default: false
	RequireAuthenticatedUser bool `mapstructure:"require_authenticated_user" yaml:"require_authenticated_user"`

	// JWTSecret is the HS256 shared secret used to verify bearer tokens.
	// Required when EnableAuthentication is true.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`
}

// ServerConfig groups the transport gateways and request handling limits.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for in-flight requests
	// and open connections to drain during graceful shutdown. Connections
	// still open after the timeout are force-closed.
	// Default: 10s
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// MaxConcurrentRequests bounds the number of handlers running
	// concurrently per connection. Additional envelopes wait in the
	// transport read loop until a slot frees up.
	// Default: 64
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests" validate:"omitempty,gt=0" yaml:"max_concurrent_requests"`

	// WebSocket configures the WebSocket gateway
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`

	// TCPStream configures the length-prefixed TCP gateway
	TCPStream TCPStreamConfig `mapstructure:"tcpstream" yaml:"tcpstream"`

	// KCP configures the KCP (reliable UDP) gateway
	KCP KCPConfig `mapstructure:"kcp" yaml:"kcp"`
}

// WebSocketConfig configures the WebSocket gateway.
//
// The gateway runs an HTTP server on Port; the configured Patterns accept
// WebSocket upgrades, and the same server hosts the health endpoints and
// (when enabled) the Prometheus /metrics endpoint.
type WebSocketConfig struct {
	// Enabled controls whether the WebSocket gateway is started.
	// Default: true
	// Use a pointer to distinguish "not set" from "explicitly false"
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port the HTTP server listens on.
	// Default: 5000
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Patterns are the HTTP paths that accept WebSocket upgrades.
	// Default: ["/ws"]
	Patterns []string `mapstructure:"patterns" validate:"omitempty,dive,startswith=/" yaml:"patterns"`

	// BufferSize is the upgrader read and write buffer size.
	// Supports human-readable formats: "4Ki", "8KB"
	// Default: 4Ki
	BufferSize bytesize.ByteSize `mapstructure:"buffer_size" yaml:"buffer_size,omitempty"`

	// KeepAliveInterval is the period between server-initiated pings.
	// Set negative to disable keepalive pings.
	// Default: 30s
	KeepAliveInterval time.Duration `mapstructure:"keep_alive_interval" yaml:"keep_alive_interval"`
}

// IsEnabled returns whether the WebSocket gateway is enabled.
// Defaults to true if not explicitly set.
func (c *WebSocketConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// TCPStreamConfig configures the length-prefixed TCP gateway.
//
// Frames on this transport are a 4-byte little-endian length followed by an
// encoded envelope of that many bytes.
type TCPStreamConfig struct {
	// Enabled controls whether the TCP gateway is started.
	// Default: true
	// Use a pointer to distinguish "not set" from "explicitly false"
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on.
	// Default: 5003
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// BufferSize is the initial per-connection read buffer size. The buffer
	// grows as needed up to the frame size limit.
	// Supports human-readable formats: "4Ki", "8KB"
	// Default: 4Ki
	BufferSize bytesize.ByteSize `mapstructure:"buffer_size" yaml:"buffer_size,omitempty"`

	// MaxConnections limits concurrent connections on this gateway.
	// 0 = unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"omitempty,min=0" yaml:"max_connections"`
}

// IsEnabled returns whether the TCP gateway is enabled.
// Defaults to true if not explicitly set.
func (c *TCPStreamConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// KCPConfig configures the KCP gateway (reliable, ordered delivery over UDP).
//
// Frames on this transport use the same 4-byte little-endian length prefix
// as the TCP gateway, carried over KCP's reliable stream.
type KCPConfig struct {
	// Enabled controls whether the KCP gateway is started.
	// Default: true
	// Use a pointer to distinguish "not set" from "explicitly false"
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the UDP port to listen on.
	// Default: 5004
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Key optionally enables packet encryption. The key is stretched with
	// PBKDF2 into an AES block cipher applied to every UDP packet. Both
	// ends must configure the same key. Empty disables encryption.
	Key string `mapstructure:"key" yaml:"key,omitempty"`

	// DataShards is the number of data shards for forward error correction.
	// FEC is active only when both DataShards and ParityShards are positive.
	// Default: 0 (FEC disabled)
	DataShards int `mapstructure:"data_shards" validate:"omitempty,min=0" yaml:"data_shards"`

	// ParityShards is the number of parity shards for forward error correction.
	// Default: 0 (FEC disabled)
	ParityShards int `mapstructure:"parity_shards" validate:"omitempty,min=0" yaml:"parity_shards"`
}

// IsEnabled returns whether the KCP gateway is enabled.
// Defaults to true if not explicitly set.
func (c *KCPConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// MetricsConfig configures Prometheus metrics exposure.
// When Enabled is false, no metrics are collected (zero overhead).
//
// Metrics are served at /metrics on the WebSocket gateway's HTTP port,
// so enabling metrics requires the WebSocket gateway to be enabled.
type MetricsConfig struct {
	// Enabled controls whether metrics collection and the /metrics endpoint are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load reads the configuration from configPath (or the default location when
// empty), layers TRIPLEX_* environment variables on top, applies defaults,
// and validates the result. A missing file is not an error: the full
// defaults are returned instead.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRIPLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(GetConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load for commands that need a config file to exist: instead of
// silently falling back to defaults it fails with instructions on how to
// create one.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  triplex init\n\n"+
				"Or specify a custom config file:\n"+
				"  triplex <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s\n\n"+
			"Please create the configuration file:\n"+
			"  triplex init --config %s",
			configPath, configPath)
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML. The file is created 0600 because
// it may carry the JWT secret.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// configDecodeHooks converts the human-readable config forms: "4Ki" style
// sizes into bytesize.ByteSize and "30s" style strings into time.Duration.
// Bare numbers pass through as bytes and nanoseconds respectively.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(decodeByteSize, decodeDuration)
}

func decodeByteSize(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(bytesize.ByteSize(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return bytesize.ParseByteSize(v)
	case int:
		return bytesize.ByteSize(v), nil
	case int64:
		return bytesize.ByteSize(v), nil
	case uint64:
		return bytesize.ByteSize(v), nil
	case float64:
		// YAML numbers often arrive as float64.
		return bytesize.ByteSize(v), nil
	default:
		return data, nil
	}
}

func decodeDuration(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v), nil
	case int64:
		return time.Duration(v), nil
	case float64:
		return time.Duration(v), nil
	default:
		return data, nil
	}
}

// GetConfigDir returns the configuration directory: $XDG_CONFIG_HOME/triplex,
// ~/.config/triplex, or "." when no home directory can be determined.
func GetConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "triplex")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "triplex")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
