// Package handlers implements the HTTP endpoints that ride on the
// WebSocket listener alongside the upgrade paths.
package handlers

import (
	"net/http"
	"time"
)

// GatewayStatus describes one running gateway for health reporting.
type GatewayStatus struct {
	Transport         string `json:"transport"`
	Port              int    `json:"port"`
	ActiveConnections int32  `json:"active_connections"`
}

// StatusFunc returns a point-in-time snapshot of every running gateway.
// Implemented by the server runtime, which knows the full gateway set.
type StatusFunc func() []GatewayStatus

// HealthHandler handles the health check endpoint.
//
// The endpoint is unauthenticated: it reports whether the process is
// serving and how many connections each gateway is carrying, nothing a
// caller could abuse.
type HealthHandler struct {
	status  StatusFunc
	started time.Time
}

// healthData is the payload under the standard response wrapper.
type healthData struct {
	Service          string          `json:"service"`
	StartedAt        string          `json:"started_at"`
	Uptime           string          `json:"uptime"`
	Gateways         []GatewayStatus `json:"gateways"`
	TotalConnections int32           `json:"total_connections"`
}

// NewHealthHandler creates a health handler backed by the given snapshot
// function. A nil status function reports an empty gateway list. Uptime is
// measured from construction, which happens once at server start.
func NewHealthHandler(status StatusFunc) *HealthHandler {
	return &HealthHandler{status: status, started: time.Now()}
}

// Health handles GET /healthz.
//
// Returns 200 OK whenever the HTTP host is responsive; the payload lists
// each gateway's transport, port, and active connection count so operators
// and the status CLI can see the whole server at a glance.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	data := healthData{
		Service:   "triplex",
		StartedAt: h.started.UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Gateways:  []GatewayStatus{},
	}

	if h.status != nil {
		data.Gateways = h.status()
		for _, g := range data.Gateways {
			data.TotalConnections += g.ActiveConnections
		}
	}

	writeJSON(w, http.StatusOK, healthyResponse(data))
}
