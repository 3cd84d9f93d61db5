// Package gateway defines the lifecycle contract shared by the transport
// listeners and the stream plumbing used by the length-prefixed gateways.
//
// A gateway owns one listening socket for one transport. It accepts
// connections, adapts each one into an rpc.Conn, and feeds inbound frames to
// the shared rpc.Router. All gateways attached to the same router dispatch
// into the same handler table, so a command behaves identically no matter
// which transport carried it.
package gateway

import (
	"context"
	"time"

	"github.com/triplexrpc/triplex/pkg/metrics"
	"github.com/triplexrpc/triplex/pkg/rpc"
)

// Options carries the dependencies shared by every gateway: the router they
// all dispatch into, the optional metrics sink, and the server-wide limits
// that apply regardless of transport.
type Options struct {
	// Router dispatches inbound envelopes and tracks live connections.
	Router *rpc.Router

	// Metrics may be nil to disable collection.
	Metrics metrics.RPCMetrics

	// MaxInFlight bounds concurrent handler invocations per connection.
	MaxInFlight int

	// ShutdownTimeout bounds the graceful connection drain on shutdown.
	ShutdownTimeout time.Duration
}

// Gateway is a transport-specific listener that can be managed by the server
// runtime.
//
// Lifecycle:
//  1. Creation: the gateway is created with its transport configuration and
//     the shared router.
//  2. Startup: Serve() binds the listener and blocks until shutdown.
//  3. Shutdown: Stop() or context cancellation initiates graceful shutdown.
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve() and must be idempotent.
type Gateway interface {
	// Serve binds the listener and blocks until the context is cancelled or
	// an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for in-flight handlers to complete (up to the shutdown timeout)
	//   - Force-close whatever remains after the timeout
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails or shutdown was not graceful
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. Safe to call multiple times and
	// concurrently with Serve(). The context bounds how long Stop waits for
	// active connections to drain.
	Stop(ctx context.Context) error

	// Transport returns the transport tag connections accepted by this
	// gateway carry. Constant for the life of the gateway.
	Transport() rpc.Transport

	// Port returns the port the gateway is listening on, for logging and
	// health reporting. Returns the configured port before Serve() binds.
	Port() int

	// ActiveConnections returns the number of connections currently being
	// served. Used by health reporting and tests.
	ActiveConnections() int32
}
