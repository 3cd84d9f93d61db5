// Package server assembles a running triplex node from configuration: the
// shared dispatch router, the metrics registry, and one gateway per enabled
// transport, managed as a single lifecycle group.
//
// All gateways dispatch into the same router, so a command registered with
// RegisterAll behaves identically over WebSocket, TCP, and KCP. The group
// fails together: when any gateway's Serve returns, the remaining gateways
// are shut down, because a node with a dead listener is half-reachable and
// worse than a dead node.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/api/handlers"
	"github.com/triplexrpc/triplex/pkg/config"
	"github.com/triplexrpc/triplex/pkg/gateway"
	"github.com/triplexrpc/triplex/pkg/gateway/kcp"
	"github.com/triplexrpc/triplex/pkg/gateway/tcpstream"
	"github.com/triplexrpc/triplex/pkg/gateway/ws"
	prommetrics "github.com/triplexrpc/triplex/pkg/metrics/prometheus"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// Server owns the router and the enabled transport gateways.
//
// Construction (New) binds no sockets; Serve does. Handlers may therefore
// be registered on Router() between New and Serve without racing the accept
// loops.
type Server struct {
	cfg      *config.Config
	router   *rpc.Router
	registry *prometheus.Registry

	mu       sync.Mutex
	started  bool
	gateways []gateway.Gateway
}

// New builds a server from validated configuration.
//
// The prometheus registry and RPC metrics are created only when
// cfg.Metrics.Enabled; otherwise the router runs with a nil sink and the
// HTTP host serves no /metrics route. Gateway construction can fail (for
// example on a malformed JWT secret), so misconfiguration surfaces here
// rather than mid-Serve.
func New(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	if cfg.Metrics.Enabled {
		s.registry = prometheus.NewRegistry()
	}
	s.router = rpc.NewRouter(rpc.NewHandlerRegistry(), rpc.NewConnectionRegistry(), prommetrics.NewRPCMetrics(s.registry))

	opts := gateway.Options{
		Router:          s.router,
		Metrics:         s.router.Metrics(),
		MaxInFlight:     cfg.Server.MaxConcurrentRequests,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}

	if cfg.Server.TCPStream.IsEnabled() {
		s.gateways = append(s.gateways, tcpstream.New(cfg.Server.TCPStream, opts))
	}
	if cfg.Server.KCP.IsEnabled() {
		s.gateways = append(s.gateways, kcp.New(cfg.Server.KCP, opts))
	}
	if cfg.Server.WebSocket.IsEnabled() {
		var metricsHandler http.Handler
		if s.registry != nil {
			metricsHandler = promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
		}
		wsGateway, err := ws.New(cfg.Server.WebSocket, cfg.Security, opts, ws.HostOptions{
			Status:  s.GatewayStatus,
			Metrics: metricsHandler,
		})
		if err != nil {
			return nil, fmt.Errorf("websocket gateway: %w", err)
		}
		s.gateways = append(s.gateways, wsGateway)
	}

	// Connect-time credentials exist only on the WebSocket upgrade; the
	// stream transports always hand handlers an anonymous principal.
	if cfg.Security.RequireAuthenticatedUser &&
		(cfg.Server.TCPStream.IsEnabled() || cfg.Server.KCP.IsEnabled()) {
		logger.Warn("require_authenticated_user cannot be enforced on tcp/kcp connections; they connect anonymously")
	}

	return s, nil
}

// Router returns the shared dispatch router. Register handlers and obtain
// broadcasters here.
func (s *Server) Router() *rpc.Router {
	return s.router
}

// Registry returns the prometheus registry, nil when metrics are disabled.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Gateways returns the constructed gateways in startup order.
func (s *Server) Gateways() []gateway.Gateway {
	return s.gateways
}

// Serve starts every enabled gateway and blocks until ctx is cancelled or
// a gateway exits.
//
// Each gateway runs in its own goroutine; the first exit cancels the rest,
// which then drain per the shutdown contract. Serve returns nil only when
// every gateway shut down cleanly — a drain that had to force-close
// connections counts as an unclean shutdown and its error is returned.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	if len(s.gateways) == 0 {
		return fmt.Errorf("no gateways enabled")
	}

	serveCtx, cancelAll := context.WithCancel(ctx)
	defer cancelAll()

	type gatewayResult struct {
		transport rpc.Transport
		err       error
	}
	results := make(chan gatewayResult, len(s.gateways))

	for _, gw := range s.gateways {
		go func(gw gateway.Gateway) {
			logger.Info("Starting gateway",
				logger.Transport(string(gw.Transport())),
				logger.KeyPort, gw.Port())
			err := gw.Serve(serveCtx)
			if err != nil && err != context.Canceled && serveCtx.Err() == nil {
				logger.Error("Gateway failed",
					logger.Transport(string(gw.Transport())),
					logger.Err(err))
			}
			results <- gatewayResult{transport: gw.Transport(), err: err}
		}(gw)
	}

	var firstErr error
	for remaining := len(s.gateways); remaining > 0; remaining-- {
		res := <-results
		if res.err != nil && res.err != context.Canceled && firstErr == nil {
			firstErr = fmt.Errorf("%s gateway: %w", res.transport, res.err)
		}
		// One gateway down takes the group down.
		cancelAll()
	}
	return firstErr
}

// Stop shuts down every gateway, draining connections within ctx.
//
// Safe to call concurrently with Serve and more than once; gateways treat
// repeated Stop as a no-op. The last error wins, matching the drain loop's
// best-effort contract.
func (s *Server) Stop(ctx context.Context) error {
	var lastErr error
	for _, gw := range s.gateways {
		logger.Info("Stopping gateway", logger.Transport(string(gw.Transport())))
		if err := gw.Stop(ctx); err != nil {
			logger.Warn("Gateway stop error",
				logger.Transport(string(gw.Transport())),
				logger.Err(err))
			lastErr = err
		}
	}
	return lastErr
}

// GatewayStatus snapshots every gateway for the health endpoint.
func (s *Server) GatewayStatus() []handlers.GatewayStatus {
	statuses := make([]handlers.GatewayStatus, 0, len(s.gateways))
	for _, gw := range s.gateways {
		statuses = append(statuses, handlers.GatewayStatus{
			Transport:         string(gw.Transport()),
			Port:              gw.Port(),
			ActiveConnections: gw.ActiveConnections(),
		})
	}
	return statuses
}
