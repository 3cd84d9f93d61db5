// Package client implements the triplex client engine: one connection to a
// server over WebSocket, TCP, or KCP, with registered push handlers,
// correlated request/response, and reconnect with exponential backoff.
//
// The engine is symmetric with the server's dispatch model. Both ends
// exchange the same envelopes; the client routes inbound envelopes first by
// correlation token to a pending request, then by command id to a
// registered push handler.
//
// Requesters returned by Register hold the client, never the socket, so a
// requester obtained before a disconnect keeps working after the reconnect
// driver has replaced the connection.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/bufpool"
	"github.com/triplexrpc/triplex/pkg/envelope"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// State is the client connection state.
type State int32

const (
	// StateDisconnected means no connection and no driver trying to make
	// one.
	StateDisconnected State = iota

	// StateConnecting means a dial is in progress.
	StateConnecting

	// StateConnected means the connection is live and the receive loop is
	// running.
	StateConnected

	// StateReconnecting means the connection dropped and the reconnect
	// driver is between attempts.
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// pendingReply resolves one correlated request: the reply envelope, or the
// error that made a reply impossible.
type pendingReply struct {
	env envelope.Envelope
	err error
}

// Client is a triplex client. Create with New, connect with Connect,
// register push handlers with Register. All methods are safe for
// concurrent use.
type Client struct {
	target target
	opts   options

	// mu guards conn and state. conn is nil exactly when no connection is
	// live; senders snapshot it under read lock and never hold mu across
	// I/O.
	mu    sync.RWMutex
	conn  transportConn
	state State

	// writeMu serializes whole-frame writes so concurrent senders never
	// interleave bytes on the socket.
	writeMu sync.Mutex

	// reconnectMu admits one connector at a time: an explicit Connect or
	// the reconnect driver, never both.
	reconnectMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string]*pushHandler

	// pending maps request id to a 1-buffered chan pendingReply. Whoever
	// removes an entry (reply, timeout, cancellation, teardown) owns the
	// single send into its channel.
	pending sync.Map

	closed  atomic.Bool
	closeCh chan struct{}
}

// New builds a client for the given endpoint. The endpoint scheme selects
// the transport: ws:// or wss:// for WebSocket, tcp:// for length-prefixed
// TCP, kcp:// for KCP over UDP.
//
// New does not dial; call Connect.
func New(endpoint string, opts ...Option) (*Client, error) {
	t, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Client{
		target:   t,
		opts:     o,
		handlers: make(map[string]*pushHandler),
		closeCh:  make(chan struct{}),
	}, nil
}

// Transport returns the transport selected by the endpoint scheme.
func (c *Client) Transport() rpc.Transport {
	return c.target.transport
}

// Endpoint returns the endpoint the client dials.
func (c *Client) Endpoint() string {
	return c.target.endpoint
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Connect dials the endpoint and starts the receive loop. It is a no-op
// when already connected. The dial is bounded by the connect timeout and
// by ctx, whichever ends first.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()
	return c.connect(ctx)
}

// connect performs one dial-and-install. Caller holds reconnectMu, so at
// most one receive loop is ever started per live connection.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.connectTimeout)
	defer cancel()

	tc, err := dial(dialCtx, c.target, &c.opts)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("connect %s: %w", c.target.endpoint, err)
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		_ = tc.Close()
		return ErrClosed
	}
	c.conn = tc
	c.state = StateConnected
	c.mu.Unlock()

	logger.Info("Connected",
		logger.Transport(string(c.target.transport)),
		logger.KeyEndpoint, c.target.endpoint)

	go c.readLoop(tc)

	if c.opts.onConnect != nil {
		c.opts.onConnect()
	}
	return nil
}

// Close tears the client down: the socket is closed, pending requests
// fail, and the reconnect driver (if running) stops. Idempotent.
func (c *Client) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		close(c.closeCh)
	}

	c.mu.RLock()
	tc := c.conn
	c.mu.RUnlock()

	if tc != nil {
		// The receive loop notices the closed socket and runs the shared
		// teardown path (pending requests, onDisconnect).
		return tc.Close()
	}
	return nil
}

// Register binds a push handler to commandID and returns a Requester for
// sending on that command.
//
// decode parses inbound push bodies (nil passes raw bytes through);
// onMessage receives each decoded push; onError receives decode failures
// and remote ERROR pushes. Both callbacks run on their own goroutine and
// may be nil. Re-registering a command id replaces the handler with a
// warning.
func (c *Client) Register(commandID string, decode func([]byte) (any, error), onMessage MessageFunc, onError ErrorFunc) *Requester {
	c.handlersMu.Lock()
	if _, exists := c.handlers[commandID]; exists {
		logger.Warn("Overwriting push handler", logger.Command(commandID))
	}
	c.handlers[commandID] = &pushHandler{
		commandID: commandID,
		decode:    decode,
		onMessage: onMessage,
		onError:   onError,
	}
	c.handlersMu.Unlock()

	return &Requester{client: c, commandID: commandID, decode: decode}
}

// Send writes a fire-and-forget REQUEST envelope for commandID. No
// correlation token is attached; any reply the server chooses to push
// arrives through the handler registered for the command.
func (c *Client) Send(ctx context.Context, commandID string, body any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeClientBody(body)
	if err != nil {
		return fmt.Errorf("encode request body: %w", err)
	}
	return c.send(envelope.NewRequest(commandID, "", data))
}

// SendRequest writes a correlated REQUEST envelope for commandID and waits
// for the matching reply, the request timeout, or ctx, whichever comes
// first. An ERROR reply is returned as a *RemoteError. The reply body is
// returned raw; Requester.SendRequest additionally applies the command's
// decoder.
func (c *Client) SendRequest(ctx context.Context, commandID string, body any) (envelope.Envelope, error) {
	data, err := encodeClientBody(body)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("encode request body: %w", err)
	}

	requestID := uuid.NewString()
	ch := make(chan pendingReply, 1)
	c.pending.Store(requestID, ch)

	if err := c.send(envelope.NewRequest(commandID, requestID, data)); err != nil {
		c.pending.Delete(requestID)
		return envelope.Envelope{}, err
	}

	timer := time.NewTimer(c.opts.requestTimeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return unwrapReply(reply)
	case <-timer.C:
		if _, ok := c.pending.LoadAndDelete(requestID); ok {
			return envelope.Envelope{}, fmt.Errorf("%w: no reply to %q within %s",
				ErrRequestTimeout, commandID, c.opts.requestTimeout)
		}
		// The reply won the race with the timer; it is already in flight
		// into the channel.
		return unwrapReply(<-ch)
	case <-ctx.Done():
		if _, ok := c.pending.LoadAndDelete(requestID); ok {
			return envelope.Envelope{}, ctx.Err()
		}
		return unwrapReply(<-ch)
	}
}

// unwrapReply turns a resolved pendingReply into the reply envelope,
// translating ERROR envelopes into *RemoteError.
func unwrapReply(reply pendingReply) (envelope.Envelope, error) {
	if reply.err != nil {
		return envelope.Envelope{}, reply.err
	}
	if reply.env.Type == envelope.TypeError {
		return envelope.Envelope{}, &RemoteError{Command: reply.env.ID, Reason: reply.env.Reason()}
	}
	return reply.env, nil
}

// Broadcast writes a REQUEST envelope for commandID with no correlation
// token and no local expectation of a reply.
func (c *Client) Broadcast(ctx context.Context, commandID string, body any) error {
	return c.Send(ctx, commandID, body)
}

// send marshals and writes one envelope on the current connection.
func (c *Client) send(e envelope.Envelope) error {
	size := e.Size()
	if size > rpc.MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", rpc.ErrFrameTooLarge, size)
	}

	c.mu.RLock()
	tc := c.conn
	c.mu.RUnlock()
	if tc == nil {
		return ErrNotConnected
	}

	buf := bufpool.Get(size)
	defer bufpool.Put(buf)

	frame, err := envelope.Append(buf[:0], e)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	c.writeMu.Lock()
	err = tc.WriteFrame(frame)
	c.writeMu.Unlock()

	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	logger.Debug("Sent envelope",
		logger.Transport(string(c.target.transport)),
		logger.Command(e.ID),
		logger.KeyType, e.Type.String(),
		logger.Size(len(frame)))
	return nil
}

// readLoop reads and routes envelopes until the connection fails. Exactly
// one readLoop runs per live connection.
func (c *Client) readLoop(tc transportConn) {
	for {
		frame, err := tc.ReadFrame()
		if err != nil {
			c.connectionLost(tc, err)
			return
		}

		e, derr := envelope.Unmarshal(frame)
		bufpool.Put(frame)
		if derr != nil {
			logger.Warn("Dropping invalid envelope", logger.Err(derr))
			continue
		}

		// Correlated replies resolve their waiter; everything else is an
		// unsolicited push. A reply that lost its waiter (timed out or
		// cancelled) falls through to the push path.
		if e.RequestID != "" {
			if ch, ok := c.pending.LoadAndDelete(e.RequestID); ok {
				ch.(chan pendingReply) <- pendingReply{env: e}
				continue
			}
		}

		c.dispatchPush(e)
	}
}

// connectionLost is the single teardown path for a dead connection: it
// uninstalls the socket, fails pending requests, fires onDisconnect, and
// hands off to the reconnect driver when enabled.
func (c *Client) connectionLost(tc transportConn, cause error) {
	c.mu.Lock()
	if c.conn != tc {
		// This loop's socket was already replaced; nothing to tear down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = StateDisconnected
	c.mu.Unlock()

	_ = tc.Close()
	c.failPending(ErrConnectionLost)

	if c.closed.Load() {
		logger.Debug("Connection closed",
			logger.Transport(string(c.target.transport)),
			logger.KeyEndpoint, c.target.endpoint)
	} else {
		logger.Warn("Connection lost",
			logger.Transport(string(c.target.transport)),
			logger.KeyEndpoint, c.target.endpoint,
			logger.Err(cause))
	}

	if c.opts.onDisconnect != nil {
		c.opts.onDisconnect()
	}

	if c.opts.autoReconnect && !c.closed.Load() {
		c.setState(StateReconnecting)
		go c.reconnectLoop()
	}
}

// failPending resolves every pending request with err.
func (c *Client) failPending(err error) {
	c.pending.Range(func(key, _ any) bool {
		if ch, ok := c.pending.LoadAndDelete(key); ok {
			ch.(chan pendingReply) <- pendingReply{err: err}
		}
		return true
	})
}

// reconnectLoop redials with exponential backoff until it succeeds, the
// retry budget runs out, or the client is closed.
func (c *Client) reconnectLoop() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	for attempt := 1; ; attempt++ {
		if c.closed.Load() {
			return
		}

		delay := backoffDelay(attempt)
		logger.Info("Reconnecting",
			logger.KeyEndpoint, c.target.endpoint,
			logger.KeyAttempt, attempt,
			logger.KeyBackoff, delay.String())

		select {
		case <-c.closeCh:
			c.setState(StateDisconnected)
			return
		case <-time.After(delay):
		}

		err := c.connect(context.Background())
		if err == nil {
			return
		}
		logger.Warn("Reconnect attempt failed",
			logger.KeyEndpoint, c.target.endpoint,
			logger.KeyAttempt, attempt,
			logger.Err(err))

		if c.opts.maxRetries > 0 && attempt >= c.opts.maxRetries {
			logger.Error("Reconnect attempts exhausted",
				logger.KeyEndpoint, c.target.endpoint,
				logger.KeyMaxRetries, c.opts.maxRetries)
			c.setState(StateDisconnected)
			return
		}

		c.setState(StateReconnecting)
	}
}

// backoffDelay returns the delay before the given reconnect attempt:
// 1s, 2s, 4s, ... capped at 60s.
func backoffDelay(attempt int) time.Duration {
	if attempt >= 7 { // 2^6 = 64s, already past the cap
		return maxBackoff
	}
	return time.Duration(1<<(attempt-1)) * time.Second
}

// encodeClientBody turns an outbound body into envelope bytes: nil sends
// an empty body, byte slices and strings pass through, anything else is
// JSON-marshaled.
func encodeClientBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(body)
	}
}
