package rpc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/bufpool"
	"github.com/triplexrpc/triplex/pkg/envelope"
	"github.com/triplexrpc/triplex/pkg/metrics"
)

// Conn is one live transport connection.
//
// Gateways construct a Conn per accepted socket and provide the two
// transport-specific callbacks: one that writes a single envelope's bytes
// as one wire frame, and one that closes the socket. Everything above the
// framing layer (dispatch, responders, broadcasters) writes through Send,
// which serializes frames under a per-connection mutex so concurrent
// senders cannot interleave bytes on the wire.
type Conn struct {
	info ConnInfo

	writeFrame func([]byte) error
	closeConn  func() error

	writeMu sync.Mutex
	closed  atomic.Bool

	// Concurrent dispatch bookkeeping. The semaphore bounds in-flight
	// handlers per connection; the wait group lets graceful close wait for
	// them.
	requestSem chan struct{}
	wg         sync.WaitGroup

	attrsMu sync.RWMutex
	attrs   map[string]any

	metrics metrics.RPCMetrics
}

// ConnConfig carries everything a gateway provides when wiring a new
// connection.
type ConnConfig struct {
	Info ConnInfo

	// WriteFrame writes one envelope's bytes as a single transport frame.
	// It is always called under the connection's write mutex and must not
	// retain the slice after returning.
	WriteFrame func([]byte) error

	// Close tears down the underlying socket. Called at most once.
	Close func() error

	// MaxInFlight bounds concurrent handler invocations on this connection.
	// Values below 1 fall back to 1.
	MaxInFlight int

	// Metrics may be nil to disable collection.
	Metrics metrics.RPCMetrics
}

// NewConn wires a connection from its transport callbacks.
func NewConn(cfg ConnConfig) *Conn {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 1
	}

	return &Conn{
		info:       cfg.Info,
		writeFrame: cfg.WriteFrame,
		closeConn:  cfg.Close,
		requestSem: make(chan struct{}, maxInFlight),
		attrs:      make(map[string]any),
		metrics:    cfg.Metrics,
	}
}

// Info returns the immutable identity of the connection.
func (c *Conn) Info() ConnInfo {
	return c.info
}

// ID returns the process-unique connection id.
func (c *Conn) ID() string {
	return c.info.ID
}

// Transport returns the transport tag of this connection.
func (c *Conn) Transport() Transport {
	return c.info.Transport
}

// SetAttr stores a free-form connection attribute. Attributes live for the
// life of the connection and are how applications attach state such as a
// post-connect authentication result on TCP and KCP.
func (c *Conn) SetAttr(key string, value any) {
	c.attrsMu.Lock()
	c.attrs[key] = value
	c.attrsMu.Unlock()
}

// Attr returns a connection attribute stored by SetAttr.
func (c *Conn) Attr(key string) (any, bool) {
	c.attrsMu.RLock()
	v, ok := c.attrs[key]
	c.attrsMu.RUnlock()
	return v, ok
}

// Send encodes the envelope and writes it as one transport frame.
//
// Safe for concurrent use; frames from concurrent senders are serialized
// and never interleaved. Returns ErrConnectionClosed once the connection
// has been closed and ErrFrameTooLarge for envelopes over MaxFrameSize.
func (c *Conn) Send(e envelope.Envelope) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	size := e.Size()
	if size > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	buf := bufpool.Get(size)
	defer bufpool.Put(buf)

	frame, err := envelope.Append(buf[:0], e)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	c.writeMu.Lock()
	err = c.writeFrame(frame)
	c.writeMu.Unlock()

	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordBytesTransferred(string(c.info.Transport), "write", uint64(len(frame)))
	}

	logger.Debug("Sent envelope",
		logger.Transport(string(c.info.Transport)),
		logger.ConnectionID(c.info.ID),
		logger.Command(e.ID),
		logger.KeyType, e.Type.String(),
		logger.Size(len(frame)))

	return nil
}

// Close tears down the connection. It is idempotent; only the first call
// reaches the socket.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.closeConn == nil {
		return nil
	}
	return c.closeConn()
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// WaitHandlers blocks until every in-flight handler on this connection has
// returned. Gateways call it after the read loop exits so graceful close
// does not abandon running handlers.
func (c *Conn) WaitHandlers() {
	c.wg.Wait()
}

type connContextKey struct{}

// NewConnContext returns a copy of ctx carrying the connection, so handlers
// can recover the connection identity (id, transport, principal, attrs).
func NewConnContext(ctx context.Context, c *Conn) context.Context {
	return context.WithValue(ctx, connContextKey{}, c)
}

// ConnFromContext returns the connection stored by NewConnContext.
func ConnFromContext(ctx context.Context) (*Conn, bool) {
	c, ok := ctx.Value(connContextKey{}).(*Conn)
	return c, ok
}
