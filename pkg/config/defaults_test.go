package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected default shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.MaxConcurrentRequests != 64 {
		t.Errorf("Expected default max concurrent requests 64, got %d", cfg.Server.MaxConcurrentRequests)
	}
}

func TestApplyDefaults_Gateways(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.WebSocket.Port != 5000 {
		t.Errorf("Expected default WebSocket port 5000, got %d", cfg.Server.WebSocket.Port)
	}
	if len(cfg.Server.WebSocket.Patterns) != 1 || cfg.Server.WebSocket.Patterns[0] != "/ws" {
		t.Errorf("Expected default WebSocket patterns [/ws], got %v", cfg.Server.WebSocket.Patterns)
	}
	if cfg.Server.WebSocket.BufferSize != 4096 {
		t.Errorf("Expected default WebSocket buffer size 4096, got %d", cfg.Server.WebSocket.BufferSize)
	}
	if cfg.Server.WebSocket.KeepAliveInterval != 30*time.Second {
		t.Errorf("Expected default keepalive interval 30s, got %v", cfg.Server.WebSocket.KeepAliveInterval)
	}
	if cfg.Server.TCPStream.Port != 5003 {
		t.Errorf("Expected default TCP port 5003, got %d", cfg.Server.TCPStream.Port)
	}
	if cfg.Server.TCPStream.MaxConnections != 0 {
		t.Errorf("Expected default max connections 0 (unlimited), got %d", cfg.Server.TCPStream.MaxConnections)
	}
	if cfg.Server.KCP.Port != 5004 {
		t.Errorf("Expected default KCP port 5004, got %d", cfg.Server.KCP.Port)
	}
	if cfg.Server.KCP.DataShards != 0 || cfg.Server.KCP.ParityShards != 0 {
		t.Error("Expected FEC disabled by default")
	}
}

func TestApplyDefaults_NegativeKeepAlivePreserved(t *testing.T) {
	// A negative interval means "pings disabled" and must survive defaulting
	cfg := &Config{}
	cfg.Server.WebSocket.KeepAliveInterval = -1

	ApplyDefaults(cfg)

	if cfg.Server.WebSocket.KeepAliveInterval != -1 {
		t.Errorf("Expected negative keepalive interval to be preserved, got %v", cfg.Server.WebSocket.KeepAliveInterval)
	}
}

func TestApplyDefaults_Telemetry(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Telemetry.Enabled {
		t.Error("Expected telemetry disabled by default")
	}
	if cfg.Telemetry.ServiceName != "triplex" {
		t.Errorf("Expected default service name 'triplex', got %q", cfg.Telemetry.ServiceName)
	}
	if cfg.Telemetry.Endpoint != "localhost:4317" {
		t.Errorf("Expected default OTLP endpoint 'localhost:4317', got %q", cfg.Telemetry.Endpoint)
	}
	if cfg.Telemetry.SampleRate != 1.0 {
		t.Errorf("Expected default sample rate 1.0, got %v", cfg.Telemetry.SampleRate)
	}
	if cfg.Telemetry.Profiling.Endpoint != "http://localhost:4040" {
		t.Errorf("Expected default Pyroscope endpoint, got %q", cfg.Telemetry.Profiling.Endpoint)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/triplex.log",
		},
		Server: ServerConfig{
			ShutdownTimeout: 60 * time.Second,
			WebSocket: WebSocketConfig{
				Port:     8443,
				Patterns: []string{"/rpc", "/ws"},
			},
		},
	}

	ApplyDefaults(cfg)

	// Verify explicit values were preserved
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/triplex.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Server.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.WebSocket.Port != 8443 {
		t.Errorf("Expected explicit WebSocket port to be preserved, got %d", cfg.Server.WebSocket.Port)
	}
	if len(cfg.Server.WebSocket.Patterns) != 2 {
		t.Errorf("Expected explicit patterns to be preserved, got %v", cfg.Server.WebSocket.Patterns)
	}
}

func TestApplyDefaults_NormalizesLogLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "info"}}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected ApplyDefaults to normalize 'info' to 'INFO', got %q", cfg.Logging.Level)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	// The default config should pass validation
	err := Validate(cfg)
	if err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	// Check all required sections are present
	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.Server.WebSocket.Port == 0 {
		t.Error("Default config missing WebSocket port")
	}
	if cfg.Server.TCPStream.Port == 0 {
		t.Error("Default config missing TCP port")
	}
	if cfg.Server.KCP.Port == 0 {
		t.Error("Default config missing KCP port")
	}
}
