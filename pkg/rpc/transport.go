// Package rpc implements the transport-independent dispatch core: the
// handler registry, connection bookkeeping, and the routing of inbound
// envelopes to registered command handlers.
//
// Gateways (pkg/gateway) own sockets and framing. They hand every received
// frame to a Router and register live connections here, so responders and
// broadcasters can write back through a single serialized send path per
// connection.
package rpc

import "time"

// Transport tags a connection with the wire protocol carrying it.
type Transport string

const (
	// TransportWS is the WebSocket transport. One envelope per binary message.
	TransportWS Transport = "ws"

	// TransportTCP is the raw TCP transport. Envelopes are length-prefixed.
	TransportTCP Transport = "tcp"

	// TransportKCP is the KCP-over-UDP transport. Envelopes are
	// length-prefixed over the reliable KCP stream, same framing as TCP.
	TransportKCP Transport = "kcp"
)

// Transports lists every supported transport tag.
var Transports = []Transport{TransportWS, TransportTCP, TransportKCP}

func (t Transport) String() string {
	return string(t)
}

// Principal identifies the authenticated peer of a connection.
//
// Only HTTP-upgrade transports authenticate at connect time, so the
// principal is nil on TCP and KCP connections. Applications that
// authenticate those transports through an application-level command can
// store the result in a connection attribute instead.
type Principal struct {
	// Subject is the stable identity of the peer, taken from the token's
	// "sub" claim.
	Subject string

	// Claims carries the verified token claims.
	Claims map[string]any
}

// ConnInfo is the immutable identity of a connection, fixed at accept time.
type ConnInfo struct {
	// ID is process-unique and stable for the life of the socket.
	ID string

	// Transport tags the wire protocol carrying this connection.
	Transport Transport

	// RemoteAddr is the peer address as reported by the socket.
	RemoteAddr string

	// ConnectedAt records when the connection was accepted.
	ConnectedAt time.Time

	// Principal is the authenticated peer. Nil when authentication is
	// disabled or the transport cannot authenticate at connect time.
	Principal *Principal

	// Headers holds HTTP headers captured at upgrade time. Empty for
	// non-HTTP transports.
	Headers map[string]string

	// Query holds URL query parameters captured at upgrade time. Empty for
	// non-HTTP transports.
	Query map[string]string
}
