package rpc

import (
	"context"
	"fmt"

	"github.com/triplexrpc/triplex/internal/telemetry"
	"github.com/triplexrpc/triplex/pkg/envelope"
)

// Broadcaster pushes server-initiated envelopes to named connections.
//
// It is command-scoped and connection-addressed: the envelopes it frames
// carry the command id it was built for and no correlation token, so the
// receiving client routes them to its handler for that command rather than
// to a pending request. Use a retained Responder instead when the push
// must correlate to an earlier request.
//
// Bodies are encoded with the encoder registered for the command on this
// broadcaster's transport, resolved at send time so registration order
// does not matter.
type Broadcaster struct {
	router    *Router
	transport Transport
	commandID string
}

// Transport returns the transport this broadcaster addresses.
func (b *Broadcaster) Transport() Transport {
	return b.transport
}

// CommandID returns the command id carried by every envelope this
// broadcaster sends.
func (b *Broadcaster) CommandID() string {
	return b.commandID
}

// Send delivers a RESPONSE envelope to the connection registered under
// connID. Returns ErrConnectionNotFound when the id is unknown.
func (b *Broadcaster) Send(connID string, body any) error {
	data, err := encodeBody(b.encoder(), body)
	if err != nil {
		return fmt.Errorf("encode broadcast body: %w", err)
	}
	return b.router.conns.TrySend(b.transport, connID, envelope.NewResponse(b.commandID, "", data))
}

// SendError delivers an ERROR envelope carrying reason to the connection
// registered under connID. Returns ErrConnectionNotFound when the id is
// unknown.
func (b *Broadcaster) SendError(connID string, reason string) error {
	return b.router.conns.TrySend(b.transport, connID, envelope.NewError(b.commandID, "", reason))
}

// SendAll delivers a RESPONSE envelope to every live connection on the
// broadcaster's transport. Per-connection failures are collected; the
// first is returned with the failure count.
func (b *Broadcaster) SendAll(body any) error {
	data, err := encodeBody(b.encoder(), body)
	if err != nil {
		return fmt.Errorf("encode broadcast body: %w", err)
	}

	e := envelope.NewResponse(b.commandID, "", data)
	targets := b.router.conns.Snapshot(b.transport)

	// Broadcasts originate on the server, so the span is a fresh root.
	ctx, span := telemetry.StartBroadcastSpan(context.Background(),
		string(b.transport), b.commandID,
		telemetry.Connections(len(targets)),
		telemetry.PayloadSize(len(data)))
	defer span.End()

	var firstErr error
	failed := 0
	for _, c := range targets {
		if err := c.Send(e); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		err := fmt.Errorf("broadcast to %d connection(s) failed: %w", failed, firstErr)
		telemetry.RecordError(ctx, err)
		return err
	}
	return nil
}

func (b *Broadcaster) encoder() func(any) ([]byte, error) {
	if entry, ok := b.router.handlers.Lookup(b.transport, b.commandID); ok {
		return entry.Encode
	}
	return nil
}
