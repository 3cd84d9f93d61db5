package client

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	kcpgo "github.com/xtaci/kcp-go/v5"

	"github.com/triplexrpc/triplex/pkg/gateway"
	kcpgateway "github.com/triplexrpc/triplex/pkg/gateway/kcp"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// transportConn is one live socket with its transport's framing applied:
// ReadFrame returns exactly one envelope's bytes, WriteFrame emits exactly
// one envelope's bytes.
//
// ReadFrame is called only by the client's receive loop; WriteFrame is
// serialized by the client's write mutex. Implementations need no internal
// locking.
type transportConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(frame []byte) error
	Close() error
	RemoteAddr() net.Addr
}

// target is a parsed endpoint: the transport selected by the URL scheme
// plus the address in the form that transport's dialer wants.
type target struct {
	transport rpc.Transport
	endpoint  string // as given, for logs and errors
	addr      string // host:port for tcp/kcp, full URL for ws
}

// parseEndpoint maps an endpoint URL onto a transport:
//
//	ws://host:port/path  (or wss://) — WebSocket
//	tcp://host:port               — length-prefixed TCP
//	kcp://host:port               — KCP over UDP
func parseEndpoint(endpoint string) (target, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return target{}, fmt.Errorf("parse endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return target{}, fmt.Errorf("endpoint %q has no host", endpoint)
	}

	switch u.Scheme {
	case "ws", "wss":
		return target{transport: rpc.TransportWS, endpoint: endpoint, addr: endpoint}, nil
	case "tcp":
		return target{transport: rpc.TransportTCP, endpoint: endpoint, addr: u.Host}, nil
	case "kcp":
		return target{transport: rpc.TransportKCP, endpoint: endpoint, addr: u.Host}, nil
	default:
		return target{}, fmt.Errorf("endpoint %q: unsupported scheme %q (want ws, wss, tcp, or kcp)", endpoint, u.Scheme)
	}
}

// dial opens one connection to the target. ctx bounds the dial; the
// returned connection is not bound to it.
func dial(ctx context.Context, t target, opts *options) (transportConn, error) {
	switch t.transport {
	case rpc.TransportWS:
		return dialWS(ctx, t.addr, opts)
	case rpc.TransportTCP:
		return dialTCP(ctx, t.addr, opts)
	case rpc.TransportKCP:
		return dialKCP(t.addr, opts)
	default:
		return nil, fmt.Errorf("unsupported transport %q", t.transport)
	}
}

// wsConn frames envelopes as single binary WebSocket messages.
type wsConn struct {
	sock         *websocket.Conn
	writeTimeout time.Duration
}

func dialWS(ctx context.Context, endpoint string, opts *options) (*wsConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: opts.connectTimeout,
	}

	sock, resp, err := dialer.DialContext(ctx, endpoint, opts.headers)
	if err != nil {
		if resp != nil {
			// The server refused the upgrade; its status line says why
			// (401 on a rejected token, 503 during shutdown).
			return nil, fmt.Errorf("dial ws: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial ws: %w", err)
	}

	sock.SetReadLimit(rpc.MaxFrameSize)
	return &wsConn{sock: sock, writeTimeout: opts.writeTimeout}, nil
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	msgType, data, err := c.sock.ReadMessage()
	if err != nil {
		return nil, err
	}
	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected message type %d (envelopes are binary)", msgType)
	}
	return data, nil
}

func (c *wsConn) WriteFrame(frame []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.sock.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *wsConn) Close() error {
	// Best-effort close handshake so the server logs a clean disconnect.
	_ = c.sock.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.sock.Close()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.sock.RemoteAddr()
}

// streamConn frames envelopes with the shared 4-byte little-endian length
// prefix. It serves both the tcp and kcp transports; a KCP session is a
// net.Conn over a reliable byte stream once it is in stream mode.
type streamConn struct {
	sock         net.Conn
	writeTimeout time.Duration
}

func dialTCP(ctx context.Context, addr string, opts *options) (*streamConn, error) {
	dialer := net.Dialer{Timeout: opts.connectTimeout}
	sock, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp: %w", err)
	}
	return &streamConn{sock: sock, writeTimeout: opts.writeTimeout}, nil
}

// dialKCP opens a KCP session. KCP has no connection handshake, so there is
// nothing for a context to interrupt; liveness is discovered on first I/O.
func dialKCP(addr string, opts *options) (*streamConn, error) {
	block, err := kcpgateway.BlockCrypt(opts.kcpKey)
	if err != nil {
		return nil, fmt.Errorf("dial kcp: derive block crypt: %w", err)
	}

	sess, err := kcpgo.DialWithOptions(addr, block, opts.kcpDataShards, opts.kcpParityShards)
	if err != nil {
		return nil, fmt.Errorf("dial kcp: %w", err)
	}
	kcpgateway.Tune(sess)

	return &streamConn{sock: sess, writeTimeout: opts.writeTimeout}, nil
}

func (c *streamConn) ReadFrame() ([]byte, error) {
	return gateway.ReadFrame(c.sock)
}

func (c *streamConn) WriteFrame(frame []byte) error {
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return gateway.WriteFrame(c.sock, frame)
}

func (c *streamConn) Close() error {
	return c.sock.Close()
}

func (c *streamConn) RemoteAddr() net.Addr {
	return c.sock.RemoteAddr()
}
