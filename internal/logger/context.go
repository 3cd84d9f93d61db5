package logger

import (
	"context"
	"time"
)

// contextKey is unexported so no other package can collide with it.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds connection- and request-scoped logging context that
// the *Ctx logging functions inject automatically.
type LogContext struct {
	TraceID      string    // OpenTelemetry trace ID
	SpanID       string    // OpenTelemetry span ID
	Transport    string    // Transport tag: ws, tcp, kcp
	Command      string    // Command id of the envelope being handled
	ConnectionID string    // Connection id minted on accept/connect
	RequestID    string    // Correlation token of the envelope, if any
	RemoteAddr   string    // Peer address (without resolution)
	StartTime    time.Time // For duration calculation
}

// WithContext attaches lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext returns the LogContext carried by ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext seeds a LogContext for a freshly accepted connection.
func NewLogContext(transport, connectionID, remoteAddr string) *LogContext {
	return &LogContext{
		Transport:    transport,
		ConnectionID: connectionID,
		RemoteAddr:   remoteAddr,
		StartTime:    time.Now(),
	}
}

// Clone returns a shallow copy, nil in nil out.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithCommand returns a copy scoped to one inbound envelope. The copy's
// StartTime restarts so DurationMs measures the command, not the connection.
func (lc *LogContext) WithCommand(command, requestID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Command = command
		clone.RequestID = requestID
		clone.StartTime = time.Now()
	}
	return clone
}

// WithTrace returns a copy carrying the active span's identifiers.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs reports the time since StartTime in fractional milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
