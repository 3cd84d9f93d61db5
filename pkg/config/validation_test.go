package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()

	err := Validate(cfg)
	if err != nil {
		t.Errorf("Expected valid config to pass validation, got error: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Level = "INVALID"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log level")
	}
	if !strings.Contains(err.Error(), "oneof") {
		t.Errorf("Expected 'oneof' validation error, got: %v", err)
	}
}

func TestValidate_InvalidLogFormat(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Logging.Format = "xml"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for invalid log format")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.WebSocket.Port = 70000 // Out of range

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for port out of range")
	}
	if !strings.Contains(err.Error(), "max") {
		t.Errorf("Expected 'max' validation error, got: %v", err)
	}
}

func TestValidate_NegativePort(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.TCPStream.Port = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for negative port")
	}
}

func TestValidate_PatternWithoutSlash(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.WebSocket.Patterns = []string{"ws"}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for pattern without leading slash")
	}
	if !strings.Contains(err.Error(), "startswith") {
		t.Errorf("Expected 'startswith' validation error, got: %v", err)
	}
}

func TestValidate_TelemetryEnabledWithoutEndpoint(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for telemetry enabled without endpoint")
	}
	if !strings.Contains(err.Error(), "telemetry") && !strings.Contains(err.Error(), "endpoint") {
		t.Errorf("Expected error about telemetry endpoint, got: %v", err)
	}
}

func TestValidate_TelemetrySampleRate(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Endpoint = "localhost:4317"
	cfg.Telemetry.SampleRate = 1.5 // Out of range (should be 0.0-1.0)

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for sample rate out of range")
	}
}

func TestValidate_AuthenticationWithoutSecret(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Security.EnableAuthentication = true
	cfg.Security.JWTSecret = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for authentication without JWT secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("Expected error about jwt_secret, got: %v", err)
	}
}

func TestValidate_RequireAuthWithoutAuthentication(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Security.RequireAuthenticatedUser = true
	cfg.Security.EnableAuthentication = false

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for require_authenticated_user without enable_authentication")
	}
}

func TestValidate_MismatchedFECShards(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Server.KCP.DataShards = 10
	cfg.Server.KCP.ParityShards = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for data shards without parity shards")
	}
	if !strings.Contains(err.Error(), "parity_shards") {
		t.Errorf("Expected error about parity_shards, got: %v", err)
	}
}

func TestValidate_AllTransportsDisabled(t *testing.T) {
	off := false
	cfg := GetDefaultConfig()
	cfg.Server.WebSocket.Enabled = &off
	cfg.Server.TCPStream.Enabled = &off
	cfg.Server.KCP.Enabled = &off

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error when every transport is disabled")
	}
	if !strings.Contains(err.Error(), "transport") {
		t.Errorf("Expected error about transports, got: %v", err)
	}
}

func TestValidate_MetricsWithoutWebSocket(t *testing.T) {
	off := false
	cfg := GetDefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Server.WebSocket.Enabled = &off

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for metrics without the websocket gateway")
	}
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	// Test that validation accepts both uppercase and lowercase log levels
	testCases := []string{"info", "INFO", "debug", "DEBUG", "warn", "WARN", "error", "ERROR"}

	for _, level := range testCases {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level

		err := Validate(cfg)
		if err != nil {
			t.Errorf("Validation failed for level %q: %v", level, err)
		}

		// Validation should NOT normalize - level should remain as-is
		if cfg.Logging.Level != level {
			t.Errorf("Expected level to remain %q after validation, got %q", level, cfg.Logging.Level)
		}
	}
}
