package rpc

import "errors"

// MaxFrameSize caps a single envelope frame on every transport. Inbound
// frames above this limit close the connection without a reply; outbound
// sends above it fail before touching the socket.
const MaxFrameSize = 10 << 20 // 10 MiB

var (
	// ErrConnectionClosed is returned by sends on a connection whose socket
	// has been closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrConnectionNotFound is returned by broadcaster sends addressed to a
	// connection id that is not registered.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrFrameTooLarge is returned when an envelope frame exceeds
	// MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)
