package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for RPC operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Envelope-level keys use the "rpc." prefix; connection-level keys use
// "client." and "conn.".
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientAddr = "client.address"

	// ========================================================================
	// RPC attributes
	// ========================================================================
	AttrTransport    = "rpc.transport"    // ws, tcp, kcp
	AttrCommand      = "rpc.command"      // Command identifier (envelope id)
	AttrRequestID    = "rpc.request_id"   // Correlation id echoed in replies
	AttrEnvelopeType = "rpc.envelope"     // REQUEST, RESPONSE, ERROR
	AttrPayloadSize  = "rpc.payload_size" // Body size in bytes
	AttrErrorReason  = "rpc.error_reason" // Reason text of an ERROR envelope

	// ========================================================================
	// Connection attributes
	// ========================================================================
	AttrConnectionID = "conn.id"
	AttrConnections  = "conn.count" // Fan-out size for broadcasts

	// ========================================================================
	// User/Auth attributes
	// ========================================================================
	AttrUsername = "user.name"
)

// Span names for operations.
// Format: rpc.<command> for dispatched commands, broadcast.<command> for
// server-initiated pushes. Gateways add no spans of their own; the dispatch
// span is the root of each request.
const (
	// Root span for request dispatch (child spans carry the command name)
	SpanRPCRequest = "rpc.request"

	// Root span for server-initiated broadcasts
	SpanBroadcast = "rpc.broadcast"
)

// ClientAddr returns an attribute for the full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Transport returns an attribute for the transport name (ws, tcp, kcp)
func Transport(name string) attribute.KeyValue {
	return attribute.String(AttrTransport, name)
}

// Command returns an attribute for the command identifier
func Command(id string) attribute.KeyValue {
	return attribute.String(AttrCommand, id)
}

// RequestID returns an attribute for the request correlation id
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// EnvelopeType returns an attribute for the envelope type name
func EnvelopeType(t string) attribute.KeyValue {
	return attribute.String(AttrEnvelopeType, t)
}

// PayloadSize returns an attribute for the body size in bytes
func PayloadSize(n int) attribute.KeyValue {
	return attribute.Int(AttrPayloadSize, n)
}

// ErrorReason returns an attribute for an ERROR envelope reason
func ErrorReason(reason string) attribute.KeyValue {
	return attribute.String(AttrErrorReason, reason)
}

// ConnectionID returns an attribute for the connection identifier
func ConnectionID(id string) attribute.KeyValue {
	return attribute.String(AttrConnectionID, id)
}

// Connections returns an attribute for a broadcast fan-out size
func Connections(n int) attribute.KeyValue {
	return attribute.Int(AttrConnections, n)
}

// Username returns an attribute for the authenticated principal
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// StartCommandSpan starts a span for a dispatched command.
// This is a convenience function that sets common attributes.
func StartCommandSpan(ctx context.Context, transport, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Transport(transport),
		Command(command),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "rpc."+command, trace.WithAttributes(allAttrs...))
}

// StartBroadcastSpan starts a span for a server-initiated broadcast.
func StartBroadcastSpan(ctx context.Context, transport, command string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Transport(transport),
		Command(command),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "broadcast."+command, trace.WithAttributes(allAttrs...))
}
