package client

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/envelope"
)

// MessageFunc receives one decoded push message for a registered command.
type MessageFunc func(msg any)

// ErrorFunc receives push failures for a registered command: body decode
// errors and remote ERROR envelopes (as *RemoteError).
type ErrorFunc func(err error)

// pushHandler is one row of the client's push registry.
type pushHandler struct {
	commandID string
	decode    func([]byte) (any, error)
	onMessage MessageFunc
	onError   ErrorFunc
}

// dispatchPush routes one unsolicited envelope to its registered handler
// on a fresh goroutine, keeping user code off the receive loop.
func (c *Client) dispatchPush(e envelope.Envelope) {
	c.handlersMu.RLock()
	h, ok := c.handlers[e.ID]
	c.handlersMu.RUnlock()

	if !ok {
		logger.Debug("Dropping envelope with no handler",
			logger.Command(e.ID),
			logger.KeyType, e.Type.String())
		return
	}

	go h.dispatch(e)
}

func (h *pushHandler) dispatch(e envelope.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Push handler panic",
				logger.Command(h.commandID),
				logger.KeyReason, fmt.Sprint(r),
				"stack", string(debug.Stack()))
		}
	}()

	if e.Type == envelope.TypeError {
		h.fail(&RemoteError{Command: e.ID, Reason: e.Reason()})
		return
	}

	msg := any(e.Data)
	if h.decode != nil {
		v, err := h.decode(e.Data)
		if err != nil {
			h.fail(fmt.Errorf("decode push body: %w", err))
			return
		}
		msg = v
	}

	if h.onMessage == nil {
		logger.Debug("Dropping push with no message callback", logger.Command(h.commandID))
		return
	}
	h.onMessage(msg)
}

func (h *pushHandler) fail(err error) {
	if h.onError != nil {
		h.onError(err)
		return
	}
	logger.Warn("Push handler error", logger.Command(h.commandID), logger.Err(err))
}

// Requester sends on one command id.
//
// A requester holds the client, never the socket: every send resolves the
// connection current at call time. Requesters obtained before a disconnect
// therefore keep working after the reconnect driver has replaced the
// connection, with no re-registration.
type Requester struct {
	client    *Client
	commandID string
	decode    func([]byte) (any, error)
}

// CommandID returns the command this requester sends on.
func (r *Requester) CommandID() string {
	return r.commandID
}

// Send writes a fire-and-forget REQUEST. Replies, if the server pushes
// any, arrive through the command's registered push callback.
func (r *Requester) Send(ctx context.Context, body any) error {
	return r.client.Send(ctx, r.commandID, body)
}

// SendRequest performs one correlated round-trip and decodes the reply
// body with the command's registered decoder (raw bytes when none was
// registered). Remote ERROR replies surface as *RemoteError.
func (r *Requester) SendRequest(ctx context.Context, body any) (any, error) {
	reply, err := r.client.SendRequest(ctx, r.commandID, body)
	if err != nil {
		return nil, err
	}
	if r.decode == nil {
		return reply.Data, nil
	}
	return r.decode(reply.Data)
}
