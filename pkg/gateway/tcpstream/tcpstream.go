// Package tcpstream implements the raw TCP gateway.
//
// Frames are 4-byte little-endian length prefixes followed by the envelope
// payload, carried over a plain TCP stream. There is no connect-time
// authentication on this transport; applications that need one authenticate
// through an application-level command and store the result in a connection
// attribute.
package tcpstream

import (
	"context"
	"fmt"
	"net"

	"github.com/triplexrpc/triplex/pkg/config"
	"github.com/triplexrpc/triplex/pkg/gateway"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// Gateway serves length-prefixed envelopes over TCP. The heavy lifting —
// accept loop, framing, dispatch, graceful shutdown — lives in the shared
// gateway.StreamServer; this type only produces the listener.
type Gateway struct {
	cfg    config.TCPStreamConfig
	stream *gateway.StreamServer
}

// New creates a TCP gateway from its configuration.
func New(cfg config.TCPStreamConfig, opts gateway.Options) *Gateway {
	return &Gateway{
		cfg: cfg,
		stream: gateway.NewStreamServer(gateway.StreamConfig{
			Transport:       rpc.TransportTCP,
			Port:            cfg.Port,
			MaxConnections:  cfg.MaxConnections,
			MaxInFlight:     opts.MaxInFlight,
			ShutdownTimeout: opts.ShutdownTimeout,
			Router:          opts.Router,
			Metrics:         opts.Metrics,
		}),
	}
}

// Serve binds the TCP listener and blocks until the context is cancelled or
// an unrecoverable error occurs.
func (g *Gateway) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", g.cfg.Port))
	if err != nil {
		return fmt.Errorf("tcp gateway: listen on port %d: %w", g.cfg.Port, err)
	}
	return g.stream.Serve(ctx, ln)
}

// Stop initiates graceful shutdown. Safe to call multiple times.
func (g *Gateway) Stop(ctx context.Context) error {
	return g.stream.Stop(ctx)
}

// Transport returns rpc.TransportTCP.
func (g *Gateway) Transport() rpc.Transport {
	return rpc.TransportTCP
}

// Port returns the configured listen port.
func (g *Gateway) Port() int {
	return g.cfg.Port
}

// ActiveConnections returns the number of connections currently served.
func (g *Gateway) ActiveConnections() int32 {
	return g.stream.ActiveConnections()
}

// Addr returns the bound listener address, blocking until the listener is
// ready. Tests bind port 0 and dial the address returned here.
func (g *Gateway) Addr() net.Addr {
	return g.stream.Addr()
}
