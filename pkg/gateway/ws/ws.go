// Package ws implements the WebSocket gateway.
//
// The gateway owns an http.Server whose handler is the chi router from
// pkg/api: the upgrade handler is mounted at every configured pattern, and
// the health and metrics endpoints ride on the same listener. Envelopes map
// one-to-one onto binary WebSocket messages; the transport's own framing
// replaces the length prefix used by the stream gateways.
//
// This is the only transport that authenticates at connect time: a bearer
// token on the upgrade request (Authorization header or "token" query
// parameter) becomes the connection's principal.
package ws

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/triplexrpc/triplex/internal/auth"
	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/api"
	"github.com/triplexrpc/triplex/pkg/api/handlers"
	"github.com/triplexrpc/triplex/pkg/config"
	"github.com/triplexrpc/triplex/pkg/gateway"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// HostOptions configures the plain HTTP endpoints hosted on the WebSocket
// listener alongside the upgrade paths.
type HostOptions struct {
	// Status feeds GET /healthz. Nil reports an empty gateway list.
	Status handlers.StatusFunc

	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler
}

// Gateway serves envelopes over WebSocket connections and hosts the HTTP
// endpoints that share its port.
type Gateway struct {
	cfg  config.WebSocketConfig
	sec  config.SecurityConfig
	opts gateway.Options

	// tokens verifies upgrade bearer tokens. Nil when authentication is
	// disabled, in which case every connection is anonymous.
	tokens *auth.Service

	upgrader websocket.Upgrader
	server   *api.Server

	// activeConns tracks connection loops for graceful shutdown.
	activeConns sync.WaitGroup

	// activeSockets maps connection id to *websocket.Conn for close frames
	// and forced closure.
	activeSockets sync.Map

	// connCount is the number of connections currently being served.
	connCount atomic.Int32

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// shutdownCtx parents every dispatch context; cancelled on shutdown.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// New creates a WebSocket gateway. It fails only when authentication is
// enabled with an unusable secret, so misconfiguration surfaces at startup
// rather than on the first upgrade.
func New(cfg config.WebSocketConfig, sec config.SecurityConfig, opts gateway.Options, host HostOptions) (*Gateway, error) {
	var tokens *auth.Service
	if sec.EnableAuthentication {
		svc, err := auth.NewService(sec.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("ws gateway: %w", err)
		}
		tokens = svc
	}

	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = gateway.DefaultShutdownTimeout
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	g := &Gateway{
		cfg:    cfg,
		sec:    sec,
		opts:   opts,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  int(cfg.BufferSize),
			WriteBufferSize: int(cfg.BufferSize),
			// Browser-origin policy is an application concern; handlers see
			// the Origin header through the connection info.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}

	g.server = api.NewServer(cfg.Port, api.NewRouter(api.RouterConfig{
		Upgrade:  g.handleUpgrade,
		Patterns: cfg.Patterns,
		Status:   host.Status,
		Metrics:  host.Metrics,
	}))

	return g, nil
}

// Serve runs the HTTP host and blocks until the context is cancelled or the
// server fails, then drains active WebSocket connections.
func (g *Gateway) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		logger.Debug("WebSocket gateway shutdown signal received",
			logger.Transport(string(rpc.TransportWS)),
			logger.Err(ctx.Err()))
		g.initiateShutdown()
	}()

	err := g.server.Serve()

	select {
	case <-g.shutdown:
		// Listener closed by shutdown; drain the upgraded connections the
		// http.Server does not know about.
		drainErr := g.gracefulShutdown()
		if err != nil {
			return err
		}
		return drainErr
	default:
		// Startup failure or server fault outside a requested shutdown.
		g.initiateShutdown()
		return err
	}
}

// handleUpgrade authenticates the request, upgrades it, and serves the
// connection until it ends. Running synchronously keeps the connection's
// lifetime visible to the HTTP request log.
func (g *Gateway) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	select {
	case <-g.shutdown:
		api.JSON(w, http.StatusServiceUnavailable, api.ErrorResponse("server is shutting down"))
		return
	default:
	}

	principal, err := g.authenticate(r)
	if err != nil {
		logger.Warn("Rejected WebSocket upgrade: invalid token",
			logger.KeyRemoteAddr, r.RemoteAddr,
			logger.Err(err))
		api.JSON(w, http.StatusUnauthorized, api.ErrorResponse("invalid token"))
		return
	}
	if g.sec.RequireAuthenticatedUser && principal == nil {
		logger.Warn("Rejected WebSocket upgrade: authentication required",
			logger.KeyRemoteAddr, r.RemoteAddr)
		api.JSON(w, http.StatusUnauthorized, api.ErrorResponse("authentication required"))
		return
	}

	sock, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already answered the request with an HTTP error.
		logger.Debug("WebSocket upgrade failed",
			logger.KeyRemoteAddr, r.RemoteAddr,
			logger.Err(err))
		return
	}

	g.serveConn(sock, r, principal)
}

// serveConn owns one upgraded socket: it wires the rpc.Conn, runs keepalive
// and the read loop, and tears everything down when the loop exits.
func (g *Gateway) serveConn(sock *websocket.Conn, r *http.Request, principal *rpc.Principal) {
	transport := string(rpc.TransportWS)
	connID := uuid.NewString()
	remoteAddr := sock.RemoteAddr().String()

	g.activeConns.Add(1)
	g.connCount.Add(1)
	g.activeSockets.Store(connID, sock)

	if g.opts.Metrics != nil {
		g.opts.Metrics.RecordConnectionAccepted(transport)
		g.opts.Metrics.SetActiveConnections(transport, g.connCount.Load())
	}

	defer func() {
		g.activeSockets.Delete(connID)
		g.activeConns.Done()
		g.connCount.Add(-1)
		if g.opts.Metrics != nil {
			g.opts.Metrics.RecordConnectionClosed(transport)
			g.opts.Metrics.SetActiveConnections(transport, g.connCount.Load())
		}
	}()

	conn := rpc.NewConn(rpc.ConnConfig{
		Info: rpc.ConnInfo{
			ID:          connID,
			Transport:   rpc.TransportWS,
			RemoteAddr:  remoteAddr,
			ConnectedAt: time.Now(),
			Principal:   principal,
			Headers:     flattenHeader(r.Header),
			Query:       flattenQuery(r.URL.Query()),
		},
		WriteFrame: func(frame []byte) error {
			if err := sock.SetWriteDeadline(time.Now().Add(gateway.DefaultWriteTimeout)); err != nil {
				return err
			}
			return sock.WriteMessage(websocket.BinaryMessage, frame)
		},
		Close:       sock.Close,
		MaxInFlight: g.opts.MaxInFlight,
		Metrics:     g.opts.Metrics,
	})

	g.opts.Router.Connections().Register(conn)

	ctx := logger.WithContext(g.shutdownCtx,
		logger.NewLogContext(transport, connID, remoteAddr))

	subject := ""
	if principal != nil {
		subject = principal.Subject
	}
	logger.InfoCtx(ctx, "Connection established",
		"path", r.URL.Path,
		"subject", subject,
		"active", g.connCount.Load())

	stopKeepalive := g.startKeepalive(ctx, sock)
	g.readLoop(ctx, conn, sock)
	if stopKeepalive != nil {
		stopKeepalive()
	}

	// Let running handlers finish before the connection disappears from the
	// registry, then close the socket.
	conn.WaitHandlers()
	g.opts.Router.Connections().Unregister(rpc.TransportWS, connID)
	_ = conn.Close()

	logger.InfoCtx(ctx, "Connection closed",
		"active", g.connCount.Load()-1)
}

// startKeepalive arms the ping/pong liveness check. The peer must answer a
// ping within two intervals or the read deadline expires and the read loop
// tears the connection down. Returns nil when keepalive is disabled.
func (g *Gateway) startKeepalive(ctx context.Context, sock *websocket.Conn) func() {
	interval := g.cfg.KeepAliveInterval
	if interval <= 0 {
		return nil
	}

	deadline := 2 * interval
	_ = sock.SetReadDeadline(time.Now().Add(deadline))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(deadline))
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				// WriteControl is safe concurrently with data writes.
				if err := sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					logger.DebugCtx(ctx, "Keepalive ping failed", logger.Err(err))
					return
				}
			}
		}
	}()

	return func() { close(done) }
}

// readLoop pulls messages off the socket and hands them to the router until
// the peer goes away or violates the binary-only protocol.
func (g *Gateway) readLoop(ctx context.Context, conn *rpc.Conn, sock *websocket.Conn) {
	transport := string(rpc.TransportWS)
	sock.SetReadLimit(rpc.MaxFrameSize)

	for {
		msgType, frame, err := sock.ReadMessage()
		if err != nil {
			select {
			case <-g.shutdown:
				logger.DebugCtx(ctx, "Read interrupted by shutdown")
				return
			default:
			}

			switch {
			case websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived):
				logger.DebugCtx(ctx, "Peer closed connection")

			case err == websocket.ErrReadLimit:
				logger.WarnCtx(ctx, "Message over frame ceiling, closing connection",
					logger.Err(err))
				if g.opts.Metrics != nil {
					g.opts.Metrics.RecordEnvelopeRejected(transport, "frame_too_large")
				}

			default:
				logger.DebugCtx(ctx, "Read error", logger.Err(err))
			}
			return
		}

		if msgType != websocket.BinaryMessage {
			// The protocol is binary-only; a text frame is a peer bug. Close
			// with a protocol-level status so the peer sees why.
			logger.WarnCtx(ctx, "Non-binary message, closing connection",
				logger.KeyType, msgType)
			if g.opts.Metrics != nil {
				g.opts.Metrics.RecordEnvelopeRejected(transport, "non_binary_message")
			}
			_ = sock.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "binary messages only"),
				time.Now().Add(time.Second))
			return
		}

		g.opts.Router.Dispatch(ctx, conn, frame)
	}
}

// initiateShutdown begins graceful shutdown: stop accepting upgrades, ask
// connected peers to go away, and cancel in-flight handler contexts. Safe
// to call multiple times.
func (g *Gateway) initiateShutdown() {
	g.shutdownOnce.Do(func() {
		close(g.shutdown)

		httpCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.server.Stop(httpCtx); err != nil {
			logger.Debug("HTTP host stop error", logger.Err(err))
		}

		g.closeActiveConnections()
		g.cancelRequests()
	})
}

// closeActiveConnections sends a close frame to every connected peer and
// unblocks their reads so connection loops notice shutdown quickly.
func (g *Gateway) closeActiveConnections() {
	closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server is shutting down")
	writeDeadline := time.Now().Add(time.Second)
	readDeadline := time.Now().Add(100 * time.Millisecond)

	g.activeSockets.Range(func(key, value any) bool {
		if sock, ok := value.(*websocket.Conn); ok {
			_ = sock.WriteControl(websocket.CloseMessage, closeMsg, writeDeadline)
			_ = sock.SetReadDeadline(readDeadline)
		}
		return true
	})
}

// gracefulShutdown waits for connection loops to drain or force-closes the
// sockets when the shutdown timeout expires.
func (g *Gateway) gracefulShutdown() error {
	transport := string(rpc.TransportWS)
	logger.Info("WebSocket gateway draining connections",
		logger.Transport(transport),
		"active", g.connCount.Load(),
		"timeout", g.opts.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		g.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("WebSocket gateway stopped", logger.Transport(transport))
		return nil

	case <-time.After(g.opts.ShutdownTimeout):
		remaining := g.connCount.Load()
		logger.Warn("Shutdown timeout exceeded, forcing closure",
			logger.Transport(transport),
			"active", remaining)

		g.activeSockets.Range(func(key, value any) bool {
			if sock, ok := value.(*websocket.Conn); ok {
				if err := sock.Close(); err == nil && g.opts.Metrics != nil {
					g.opts.Metrics.RecordConnectionForceClosed(transport)
				}
			}
			return true
		})
		return fmt.Errorf("ws gateway shutdown timeout: %d connections force-closed", remaining)
	}
}

// Stop initiates graceful shutdown and waits for connections to drain. The
// context bounds the wait.
func (g *Gateway) Stop(ctx context.Context) error {
	g.initiateShutdown()

	done := make(chan struct{})
	go func() {
		g.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		logger.Warn("WebSocket gateway stop cancelled",
			"active", g.connCount.Load(),
			logger.Err(ctx.Err()))
		return ctx.Err()
	}
}

// Transport returns rpc.TransportWS.
func (g *Gateway) Transport() rpc.Transport {
	return rpc.TransportWS
}

// Port returns the configured listen port.
func (g *Gateway) Port() int {
	return g.cfg.Port
}

// ActiveConnections returns the number of WebSocket connections currently
// served. Plain HTTP requests are not counted.
func (g *Gateway) ActiveConnections() int32 {
	return g.connCount.Load()
}

// Addr returns the bound listener address, blocking until the listener is
// ready. Tests bind port 0 and dial the address returned here.
func (g *Gateway) Addr() net.Addr {
	return g.server.Addr()
}

// flattenHeader keeps the first value of each header, which is all the
// dispatch layer carries.
func flattenHeader(h http.Header) map[string]string {
	m := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			m[k] = v[0]
		}
	}
	return m
}

// flattenQuery keeps the first value of each query parameter.
func flattenQuery(q map[string][]string) map[string]string {
	m := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			m[k] = v[0]
		}
	}
	return m
}
