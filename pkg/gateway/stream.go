package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/bufpool"
	"github.com/triplexrpc/triplex/pkg/metrics"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// DefaultShutdownTimeout bounds the graceful connection drain when the
// configuration does not say otherwise.
const DefaultShutdownTimeout = 10 * time.Second

// DefaultWriteTimeout bounds a single frame write on stream transports.
const DefaultWriteTimeout = 30 * time.Second

// StreamConfig configures a StreamServer.
type StreamConfig struct {
	// Transport tags every connection accepted by this server.
	Transport rpc.Transport

	// Port is recorded for logging and health reporting. The listener itself
	// is produced by the owning gateway, which may bind an OS-assigned port
	// in tests.
	Port int

	// MaxConnections limits concurrent connections. 0 means unlimited.
	MaxConnections int

	// MaxInFlight bounds concurrent handler invocations per connection.
	MaxInFlight int

	// ShutdownTimeout is the maximum time to wait for active connections to
	// drain before force-closing them. Zero falls back to
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	// WriteTimeout bounds a single frame write. Zero falls back to
	// DefaultWriteTimeout; negative disables the deadline.
	WriteTimeout time.Duration

	// Router dispatches decoded frames into the shared handler table.
	Router *rpc.Router

	// Metrics may be nil to disable collection.
	Metrics metrics.RPCMetrics
}

// StreamServer drives length-prefixed envelope traffic over an ordered byte
// stream listener.
//
// The TCP and KCP gateways differ only in how they produce the listener and
// tune accepted sockets; everything after Accept — framing, dispatch,
// connection tracking, graceful shutdown — is shared and lives here.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Blocking reads interrupted via a short read deadline
//  4. In-flight handler contexts cancelled
//  5. Wait for active connections to drain (up to ShutdownTimeout)
//  6. Force-close whatever remains after the timeout
type StreamServer struct {
	cfg StreamConfig

	// listener accepts inbound connections. Closed during shutdown.
	listener   net.Listener
	listenerMu sync.RWMutex

	// listenerReady is closed once the listener is accepting. Tests use it
	// to synchronize with startup.
	listenerReady chan struct{}

	// activeConns tracks connection goroutines for graceful shutdown.
	activeConns sync.WaitGroup

	// activeSockets maps connection id to net.Conn for read interruption
	// and forced closure.
	activeSockets sync.Map

	// connCount is the number of connections currently being served.
	connCount atomic.Int32

	// connSemaphore limits concurrent connections when MaxConnections > 0.
	// nil means unlimited.
	connSemaphore chan struct{}

	// shutdownOnce makes shutdown idempotent across Stop() and context
	// cancellation.
	shutdownOnce sync.Once

	// shutdown is closed when shutdown begins; the accept loop and read
	// loops use it to tell expected errors from real ones.
	shutdown chan struct{}

	// shutdownCtx is the parent of every dispatch context. Cancelled during
	// shutdown so in-flight handlers can abort.
	shutdownCtx    context.Context
	cancelRequests context.CancelFunc
}

// NewStreamServer wires a stream server from its configuration. The zero
// values of ShutdownTimeout and WriteTimeout are replaced with defaults.
func NewStreamServer(cfg StreamConfig) *StreamServer {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	var connSemaphore chan struct{}
	if cfg.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, cfg.MaxConnections)
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &StreamServer{
		cfg:            cfg,
		listenerReady:  make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdown:       make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}
}

// Serve accepts connections from ln until the context is cancelled or Stop
// is called, then drains active connections and returns.
//
// The server takes ownership of ln and closes it during shutdown.
func (s *StreamServer) Serve(ctx context.Context, ln net.Listener) error {
	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()
	close(s.listenerReady)

	transport := string(s.cfg.Transport)
	logger.Info("Stream gateway listening",
		logger.Transport(transport),
		"addr", ln.Addr().String())

	// Watch for context cancellation in a separate goroutine so the accept
	// loop stays a tight blocking loop.
	go func() {
		<-ctx.Done()
		logger.Debug("Stream gateway shutdown signal received",
			logger.Transport(transport),
			logger.Err(ctx.Err()))
		s.initiateShutdown()
	}()

	for {
		// Acquire a connection slot first so Accept never over-admits while
		// the server is at MaxConnections.
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		sock, err := ln.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				// Listener closed by shutdown; expected.
				return s.gracefulShutdown()
			default:
				logger.Debug("Accept error",
					logger.Transport(transport),
					logger.Err(err))
				continue
			}
		}

		connID := uuid.NewString()

		s.activeConns.Add(1)
		s.connCount.Add(1)
		s.activeSockets.Store(connID, sock)

		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordConnectionAccepted(transport)
			s.cfg.Metrics.SetActiveConnections(transport, s.connCount.Load())
		}

		go s.handleConnection(connID, sock)
	}
}

// handleConnection owns one accepted socket: it wires the rpc.Conn, runs the
// read loop, and tears everything down when the loop exits.
func (s *StreamServer) handleConnection(connID string, sock net.Conn) {
	transport := string(s.cfg.Transport)
	remoteAddr := sock.RemoteAddr().String()

	defer func() {
		s.activeSockets.Delete(connID)
		s.activeConns.Done()
		s.connCount.Add(-1)
		if s.connSemaphore != nil {
			<-s.connSemaphore
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.RecordConnectionClosed(transport)
			s.cfg.Metrics.SetActiveConnections(transport, s.connCount.Load())
		}
	}()

	conn := rpc.NewConn(rpc.ConnConfig{
		Info: rpc.ConnInfo{
			ID:          connID,
			Transport:   s.cfg.Transport,
			RemoteAddr:  remoteAddr,
			ConnectedAt: time.Now(),
		},
		WriteFrame: func(frame []byte) error {
			if s.cfg.WriteTimeout > 0 {
				if err := sock.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
					return err
				}
			}
			return WriteFrame(sock, frame)
		},
		Close:       sock.Close,
		MaxInFlight: s.cfg.MaxInFlight,
		Metrics:     s.cfg.Metrics,
	})

	s.cfg.Router.Connections().Register(conn)

	ctx := logger.WithContext(s.shutdownCtx,
		logger.NewLogContext(transport, connID, remoteAddr))

	logger.InfoCtx(ctx, "Connection established",
		"active", s.connCount.Load())

	s.readLoop(ctx, conn, sock)

	// Let running handlers finish before the connection disappears from the
	// registry, then close the socket.
	conn.WaitHandlers()
	s.cfg.Router.Connections().Unregister(s.cfg.Transport, connID)
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.DebugCtx(ctx, "Error closing connection", logger.Err(err))
	}

	logger.InfoCtx(ctx, "Connection closed",
		"active", s.connCount.Load()-1)
}

// readLoop pulls frames off the socket and hands them to the router until
// the peer goes away, the framing breaks, or shutdown interrupts the read.
func (s *StreamServer) readLoop(ctx context.Context, conn *rpc.Conn, sock net.Conn) {
	transport := string(s.cfg.Transport)

	for {
		frame, err := ReadFrame(sock)
		if err != nil {
			switch {
			case err == io.EOF:
				logger.DebugCtx(ctx, "Peer closed connection")

			case isShutdownRead(err, s.shutdown):
				logger.DebugCtx(ctx, "Read interrupted by shutdown")

			case errors.Is(err, ErrZeroLengthFrame) || errors.Is(err, rpc.ErrFrameTooLarge):
				// Framing violation: the stream offset is unrecoverable, so
				// no reply is attempted. The close is the error signal.
				logger.WarnCtx(ctx, "Framing violation, closing connection",
					logger.Err(err))
				if s.cfg.Metrics != nil {
					s.cfg.Metrics.RecordEnvelopeRejected(transport, "framing_violation")
				}

			default:
				logger.DebugCtx(ctx, "Read error", logger.Err(err))
			}
			return
		}

		s.cfg.Router.Dispatch(ctx, conn, frame)
		bufpool.Put(frame)
	}
}

// isShutdownRead reports whether a read error is the expected result of the
// shutdown sequence interrupting a blocked read.
func isShutdownRead(err error, shutdown <-chan struct{}) bool {
	select {
	case <-shutdown:
	default:
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, net.ErrClosed)
}

// initiateShutdown begins graceful shutdown. Safe to call multiple times;
// only the first call acts.
func (s *StreamServer) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)

		s.listenerMu.Lock()
		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing listener",
					logger.Transport(string(s.cfg.Transport)),
					logger.Err(err))
			}
		}
		s.listenerMu.Unlock()

		// Wake up reads blocked on idle connections so their loops notice
		// shutdown quickly instead of waiting out a long read.
		s.interruptBlockingReads()

		// Cancel dispatch contexts so in-flight handlers can abort.
		s.cancelRequests()
	})
}

// interruptBlockingReads sets a short deadline on every active socket so
// blocked reads return with a timeout error.
func (s *StreamServer) interruptBlockingReads() {
	deadline := time.Now().Add(100 * time.Millisecond)

	s.activeSockets.Range(func(key, value any) bool {
		if sock, ok := value.(net.Conn); ok {
			if err := sock.SetReadDeadline(deadline); err != nil {
				logger.Debug("Error setting shutdown read deadline",
					logger.ConnectionID(key.(string)),
					logger.Err(err))
			}
		}
		return true
	})
}

// gracefulShutdown waits for active connections to drain or force-closes
// them when ShutdownTimeout expires.
func (s *StreamServer) gracefulShutdown() error {
	transport := string(s.cfg.Transport)
	active := s.connCount.Load()
	logger.Info("Stream gateway draining connections",
		logger.Transport(transport),
		"active", active,
		"timeout", s.cfg.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Stream gateway stopped", logger.Transport(transport))
		return nil

	case <-time.After(s.cfg.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Shutdown timeout exceeded, forcing closure",
			logger.Transport(transport),
			"active", remaining)
		s.forceCloseConnections()
		return fmt.Errorf("%s gateway shutdown timeout: %d connections force-closed", transport, remaining)
	}
}

// forceCloseConnections closes every remaining socket to unblock stuck I/O.
func (s *StreamServer) forceCloseConnections() {
	transport := string(s.cfg.Transport)
	closed := 0

	s.activeSockets.Range(func(key, value any) bool {
		sock := value.(net.Conn)
		if err := sock.Close(); err == nil {
			closed++
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.RecordConnectionForceClosed(transport)
			}
		}
		return true
	})

	if closed > 0 {
		logger.Info("Force-closed connections",
			logger.Transport(transport),
			"count", closed)
	}
}

// Stop initiates graceful shutdown and waits for active connections to
// drain. The context bounds the wait; a nil context falls back to the
// configured ShutdownTimeout.
func (s *StreamServer) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Stream gateway stop cancelled",
			logger.Transport(string(s.cfg.Transport)),
			"active", remaining,
			logger.Err(ctx.Err()))
		return ctx.Err()
	}
}

// ActiveConnections returns the number of connections currently served.
func (s *StreamServer) ActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the bound listener address. It blocks until the listener is
// ready, so tests can dial the OS-assigned port without racing startup.
func (s *StreamServer) Addr() net.Addr {
	<-s.listenerReady

	s.listenerMu.RLock()
	defer s.listenerMu.RUnlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
