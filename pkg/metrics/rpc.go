package metrics

import (
	"time"
)

// RPCMetrics provides observability for envelope dispatch and connection
// lifecycle across all transports.
//
// Implementations can collect metrics about command dispatch, connection
// churn, throughput, and protocol errors. This interface is optional - pass
// nil to disable metrics collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics := prometheus.NewRPCMetrics(registry)
//	router := rpc.NewRouter(handlers, connections, metrics)
//
//	// Without metrics (pass nil for zero overhead)
//	router := rpc.NewRouter(handlers, connections, nil)
type RPCMetrics interface {
	// RecordRequest records a completed dispatch with its transport,
	// command, duration, and outcome.
	//
	// Parameters:
	//   - transport: Transport tag ("ws", "tcp", "kcp")
	//   - command: Command identifier (e.g., "ping", "message.send")
	//   - duration: Time taken to process the request
	//   - errorKind: Failure class if dispatch failed ("decode_error",
	//     "unknown_command", "handler_error"), empty if successful
	RecordRequest(transport string, command string, duration time.Duration, errorKind string)

	// RecordRequestStart increments the in-flight request counter.
	// Should be called when starting to process a request.
	//
	// Parameters:
	//   - transport: Transport tag
	//   - command: Command identifier
	RecordRequestStart(transport string, command string)

	// RecordRequestEnd decrements the in-flight request counter.
	// Should be called when request processing completes.
	//
	// Parameters:
	//   - transport: Transport tag
	//   - command: Command identifier
	RecordRequestEnd(transport string, command string)

	// RecordBytesTransferred records envelope bytes read or written on a
	// connection.
	//
	// Parameters:
	//   - transport: Transport tag
	//   - direction: "read" or "write"
	//   - bytes: Number of bytes transferred
	RecordBytesTransferred(transport string, direction string, bytes uint64)

	// SetActiveConnections updates the current connection count for a
	// transport.
	//
	// Parameters:
	//   - transport: Transport tag
	//   - count: Current number of active connections
	SetActiveConnections(transport string, count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted(transport string)

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed(transport string)

	// RecordConnectionForceClosed increments the force-closed connections counter.
	// Called when connections are forcibly closed after shutdown timeout.
	RecordConnectionForceClosed(transport string)

	// RecordEnvelopeRejected records an inbound frame that was dropped or
	// answered with a protocol error before reaching a handler.
	//
	// Parameters:
	//   - transport: Transport tag
	//   - reason: Rejection reason ("parse_error", "frame_too_large",
	//     "framing_violation", "non_binary_message")
	RecordEnvelopeRejected(transport string, reason string)
}
