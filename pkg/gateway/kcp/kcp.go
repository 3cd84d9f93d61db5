// Package kcp implements the KCP-over-UDP gateway.
//
// KCP provides a reliable, ordered byte stream over UDP with latency
// characteristics tuned for lossy links. Sessions run in stream mode, so
// frames use the same 4-byte little-endian length prefix as the TCP gateway
// and a frame may span any number of KCP segments. Like TCP, this transport
// has no connect-time authentication.
//
// When a pre-shared key is configured, packets are encrypted with AES using
// a PBKDF2-derived key. Optional Reed-Solomon forward error correction is
// controlled by the data/parity shard counts.
package kcp

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net"

	kcpgo "github.com/xtaci/kcp-go/v5"
	"golang.org/x/crypto/pbkdf2"

	"github.com/triplexrpc/triplex/pkg/config"
	"github.com/triplexrpc/triplex/pkg/gateway"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// cryptSalt is fixed by the protocol: both ends derive the AES key from the
// pre-shared key with the same salt.
const cryptSalt = "triplex-kcp"

// Gateway serves length-prefixed envelopes over KCP sessions. Everything
// after accept is handled by the shared gateway.StreamServer; this type
// produces the tuned listener.
type Gateway struct {
	cfg    config.KCPConfig
	stream *gateway.StreamServer
}

// New creates a KCP gateway from its configuration.
func New(cfg config.KCPConfig, opts gateway.Options) *Gateway {
	return &Gateway{
		cfg: cfg,
		stream: gateway.NewStreamServer(gateway.StreamConfig{
			Transport:       rpc.TransportKCP,
			Port:            cfg.Port,
			MaxInFlight:     opts.MaxInFlight,
			ShutdownTimeout: opts.ShutdownTimeout,
			Router:          opts.Router,
			Metrics:         opts.Metrics,
		}),
	}
}

// Serve binds the UDP listener and blocks until the context is cancelled or
// an unrecoverable error occurs.
func (g *Gateway) Serve(ctx context.Context) error {
	block, err := BlockCrypt(g.cfg.Key)
	if err != nil {
		return fmt.Errorf("kcp gateway: derive block crypt: %w", err)
	}

	ln, err := kcpgo.ListenWithOptions(fmt.Sprintf(":%d", g.cfg.Port), block, g.cfg.DataShards, g.cfg.ParityShards)
	if err != nil {
		return fmt.Errorf("kcp gateway: listen on port %d: %w", g.cfg.Port, err)
	}

	return g.stream.Serve(ctx, &tunedListener{ln})
}

// Stop initiates graceful shutdown. Safe to call multiple times.
func (g *Gateway) Stop(ctx context.Context) error {
	return g.stream.Stop(ctx)
}

// Transport returns rpc.TransportKCP.
func (g *Gateway) Transport() rpc.Transport {
	return rpc.TransportKCP
}

// Port returns the configured listen port.
func (g *Gateway) Port() int {
	return g.cfg.Port
}

// ActiveConnections returns the number of sessions currently served.
func (g *Gateway) ActiveConnections() int32 {
	return g.stream.ActiveConnections()
}

// Addr returns the bound listener address, blocking until the listener is
// ready.
func (g *Gateway) Addr() net.Addr {
	return g.stream.Addr()
}

// BlockCrypt derives the AES packet cipher from the pre-shared key. An empty
// key returns (nil, nil), which disables encryption. Clients share this
// derivation so both ends agree on the cipher.
func BlockCrypt(key string) (kcpgo.BlockCrypt, error) {
	if key == "" {
		return nil, nil
	}
	pass := pbkdf2.Key([]byte(key), []byte(cryptSalt), 4096, 32, sha1.New)
	return kcpgo.NewAESBlockCrypt(pass)
}

// tunedListener applies per-session tuning at accept time. The session API
// is a byte stream either way (writes above the MSS are split into separate
// KCP messages), so envelopes carry their own length prefix; stream mode
// additionally lets the window coalesce small writes.
type tunedListener struct {
	*kcpgo.Listener
}

func (l *tunedListener) Accept() (net.Conn, error) {
	sess, err := l.AcceptKCP()
	if err != nil {
		return nil, err
	}
	Tune(sess)
	return sess, nil
}

// Tune applies the session knobs shared by the server and client sides:
// stream mode for the framing, no write delay, and the low-latency
// retransmission profile.
func Tune(sess *kcpgo.UDPSession) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(1, 10, 2, 1)
}
