package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by sends attempted while the client has
	// no live connection (never connected, reconnecting, or closed).
	ErrNotConnected = errors.New("client not connected")

	// ErrConnectionLost fails every pending request when the receive loop
	// exits, so callers blocked on SendRequest unblock promptly.
	ErrConnectionLost = errors.New("connection lost")

	// ErrRequestTimeout is returned when no reply arrives within the
	// request timeout. The pending entry is removed exactly once.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrClosed is returned by operations on a client after Close.
	ErrClosed = errors.New("client closed")
)

// RemoteError is a protocol ERROR envelope surfaced as a Go error: the
// peer handled the request and answered with a failure instead of a
// response body.
type RemoteError struct {
	// Command is the command id the ERROR envelope was sent under.
	Command string

	// Reason is the peer's failure description.
	Reason string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error on %q: %s", e.Command, e.Reason)
}
