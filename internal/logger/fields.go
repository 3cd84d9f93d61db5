package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that logs can
// be aggregated and queried across transports.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Dispatch
	KeyTransport = "transport"  // Transport tag: ws, tcp, kcp
	KeyCommand   = "command"    // Command id of the envelope
	KeyRequestID = "request_id" // Correlation token, when present
	KeyType      = "type"       // Envelope type: REQUEST, RESPONSE, ERROR

	// Connection lifecycle
	KeyConnectionID = "connection_id" // Process-unique connection id
	KeyRemoteAddr   = "remote_addr"   // Peer address
	KeyLocalAddr    = "local_addr"    // Listener address
	KeyPort         = "port"          // Listener port

	// I/O
	KeySize         = "size"          // Frame or payload size in bytes
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// Client engine
	KeyEndpoint   = "endpoint"    // Dial target
	KeyAttempt    = "attempt"     // Reconnect attempt number
	KeyMaxRetries = "max_retries" // Maximum reconnect attempts
	KeyBackoff    = "backoff"     // Backoff delay before next attempt
	KeyPending    = "pending"     // Pending correlated requests

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyReason     = "reason"      // Protocol-level error reason
)

// Field constructors for type safety.

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Transport returns a slog.Attr for the transport tag
func Transport(t string) slog.Attr {
	return slog.String(KeyTransport, t)
}

// Command returns a slog.Attr for a command id
func Command(id string) slog.Attr {
	return slog.String(KeyCommand, id)
}

// RequestID returns a slog.Attr for a correlation token
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// ConnectionID returns a slog.Attr for a connection id
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// RemoteAddr returns a slog.Attr for the peer address
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// Size returns a slog.Attr for a frame or payload size
func Size(n int) slog.Attr {
	return slog.Int(KeySize, n)
}

// DurationMs returns a slog.Attr for a duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, tolerating nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
