// Package api hosts the HTTP surface that rides on the WebSocket listener:
// the upgrade paths themselves, the health endpoint, and the Prometheus
// metrics endpoint when enabled.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/triplexrpc/triplex/internal/logger"
)

// Server wraps the http.Server that carries WebSocket upgrades and the
// plain HTTP endpoints.
//
// The WebSocket gateway owns the Server and coordinates its lifecycle with
// connection draining: Stop closes the listener and drains plain HTTP
// requests, but upgraded connections are hijacked from the http.Server and
// must be drained by their owner.
type Server struct {
	server *http.Server
	port   int

	// listener is stored for Addr(); tests bind port 0.
	listener   net.Listener
	listenerMu sync.RWMutex

	// listenerReady is closed once the listener is accepting.
	listenerReady chan struct{}

	shutdownOnce sync.Once
}

// NewServer creates the HTTP host for the given handler.
//
// ReadHeaderTimeout protects against slow-header clients. There is no
// ReadTimeout or WriteTimeout: whole-connection deadlines would also apply
// to the upgrade requests, and upgraded connections manage their own
// deadlines.
func NewServer(port int, handler http.Handler) *Server {
	return &Server{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		port:          port,
		listenerReady: make(chan struct{}),
	}
}

// Serve binds the listener and blocks until Stop is called or the server
// fails. Returns nil after a Stop-initiated shutdown.
func (s *Server) Serve() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("http host: listen on port %d: %w", s.port, err)
	}

	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()
	close(s.listenerReady)

	logger.Info("HTTP host listening", logger.KeyPort, s.port)

	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http host: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP host: the listener closes first so no
// new upgrades land, then in-flight plain HTTP requests drain. Safe to call
// multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP host shutdown initiated")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("http host shutdown: %w", err)
		}
	})
	return shutdownErr
}

// Port returns the configured listen port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound listener address. It blocks until the listener is
// ready, so tests can dial the OS-assigned port without racing startup.
func (s *Server) Addr() net.Addr {
	<-s.listenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
