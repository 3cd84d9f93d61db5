// Package health provides shared types for health check responses.
package health

// GatewayStatus describes one running gateway in the health payload.
type GatewayStatus struct {
	Transport         string `json:"transport"`
	Port              int    `json:"port"`
	ActiveConnections int32  `json:"active_connections"`
}

// Data is the health payload under the standard response wrapper.
type Data struct {
	Service          string          `json:"service"`
	StartedAt        string          `json:"started_at"`
	Uptime           string          `json:"uptime"`
	Gateways         []GatewayStatus `json:"gateways"`
	TotalConnections int32           `json:"total_connections"`
}

// Response represents the /healthz response structure.
type Response struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Data      Data   `json:"data"`
	Error     string `json:"error,omitempty"`
}
