package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks a loaded configuration for correctness.
//
// Struct-level rules (ports, enums, ranges) are declared as `validate` tags
// on the config types and enforced with go-playground/validator. Rules that
// span multiple fields (authentication secrets, telemetry endpoints, FEC
// shard pairing) are enforced here because tags cannot express them.
//
// Validate does not mutate the configuration; normalization (such as
// uppercasing the log level) happens in ApplyDefaults.
func Validate(cfg *Config) error {
	v := validator.New()

	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid configuration: %s", formatValidationErrors(verrs))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry is enabled but telemetry.endpoint is empty")
	}

	if cfg.Security.EnableAuthentication && cfg.Security.JWTSecret == "" {
		return fmt.Errorf("security.enable_authentication requires security.jwt_secret to be set")
	}
	if cfg.Security.RequireAuthenticatedUser && !cfg.Security.EnableAuthentication {
		return fmt.Errorf("security.require_authenticated_user requires security.enable_authentication")
	}

	// FEC only works with both shard counts set; one without the other is
	// almost certainly a typo
	if (cfg.Server.KCP.DataShards > 0) != (cfg.Server.KCP.ParityShards > 0) {
		return fmt.Errorf("kcp forward error correction requires both data_shards and parity_shards to be positive")
	}

	if !cfg.Server.WebSocket.IsEnabled() && !cfg.Server.TCPStream.IsEnabled() && !cfg.Server.KCP.IsEnabled() {
		return fmt.Errorf("no transports enabled: enable at least one of server.websocket, server.tcpstream, server.kcp")
	}

	// Metrics are served on the WebSocket gateway's HTTP server
	if cfg.Metrics.Enabled && !cfg.Server.WebSocket.IsEnabled() {
		return fmt.Errorf("metrics.enabled requires the websocket gateway (metrics are served on its port)")
	}

	return nil
}

// formatValidationErrors renders validator errors with their field paths so
// users can find the offending config key.
func formatValidationErrors(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on the '%s' rule", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
