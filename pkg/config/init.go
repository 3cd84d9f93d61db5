package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// configTemplate is the scaffold written by 'triplex init'. It lists every
// section with its default values so users can edit in place. Written as a
// literal template (not yaml.Marshal) so the generated file keeps comments.
const configTemplate = `# Triplex Configuration File
#
# Precedence: CLI flags > TRIPLEX_* environment variables > this file > defaults.
# Example override: TRIPLEX_LOGGING_LEVEL=DEBUG

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: %s
  # Output format: text, json
  format: text
  # Destination: stdout, stderr, or a file path
  output: stdout

security:
  # Verify HS256 bearer tokens on WebSocket upgrades
  enable_authentication: false
  # Refuse WebSocket upgrades without an authenticated principal
  require_authenticated_user: false
  # Shared secret for HS256 token verification (generated by 'triplex init')
  jwt_secret: "%s"

server:
  # Maximum time to drain connections during graceful shutdown
  shutdown_timeout: 10s
  # Concurrent handlers per connection
  max_concurrent_requests: 64

  websocket:
    enabled: true
    port: %d
    # HTTP paths accepting WebSocket upgrades
    patterns:
      - /ws
    buffer_size: 4Ki
    # Interval between server pings; negative disables
    keep_alive_interval: 30s

  tcpstream:
    enabled: true
    port: %d
    buffer_size: 4Ki
    # 0 = unlimited concurrent connections
    max_connections: 0

  kcp:
    enabled: true
    port: %d
    # Optional packet encryption key (PBKDF2-derived AES); empty disables encryption
    key: ""
    # Forward error correction shards; both 0 disables FEC
    data_shards: 0
    parity_shards: 0

metrics:
  # Expose Prometheus metrics at /metrics on the websocket port
  enabled: %t

telemetry:
  # Export OpenTelemetry traces via OTLP gRPC
  enabled: false
  service_name: triplex
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  profiling:
    # Continuous profiling with Pyroscope
    enabled: false
    endpoint: http://localhost:4040
`

// InitOptions parametrizes the scaffold written by InitConfigWithOptions.
// The interactive 'triplex init' fills these from prompts; everything else
// in the scaffold keeps its default value.
type InitOptions struct {
	LogLevel       string
	WebSocketPort  int
	TCPPort        int
	KCPPort        int
	MetricsEnabled bool
}

// DefaultInitOptions returns the scaffold defaults.
func DefaultInitOptions() InitOptions {
	return InitOptions{
		LogLevel:      "INFO",
		WebSocketPort: 5000,
		TCPPort:       5003,
		KCPPort:       5004,
	}
}

// InitConfig creates a commented default configuration file at the default
// location ($XDG_CONFIG_HOME/triplex/config.yaml or ~/.config/triplex/config.yaml).
//
// Parameters:
//   - force: Overwrite an existing config file
//
// Returns:
//   - string: Path of the created config file
//   - error: Creation error, including "already exists" when force is false
func InitConfig(force bool) (string, error) {
	configPath := GetDefaultConfigPath()
	if err := InitConfigToPath(configPath, force); err != nil {
		return "", err
	}
	return configPath, nil
}

// InitConfigToPath creates a commented default configuration file at the
// given path, creating parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	return InitConfigWithOptions(path, force, DefaultInitOptions())
}

// InitConfigWithOptions creates a commented configuration file at the given
// path with the scaffold values from opts.
func InitConfigWithOptions(path string, force bool, opts InitOptions) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	secret, err := generateJWTSecret()
	if err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}

	if opts.LogLevel == "" {
		opts.LogLevel = "INFO"
	}
	content := fmt.Sprintf(configTemplate,
		opts.LogLevel, secret,
		opts.WebSocketPort, opts.TCPPort, opts.KCPPort,
		opts.MetricsEnabled)

	// 0600 because the file carries the generated JWT secret
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generateJWTSecret returns a 64-character hex secret from crypto/rand.
// The secret is written into the scaffold so enabling authentication is a
// single flag flip rather than a two-step edit.
func generateJWTSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
