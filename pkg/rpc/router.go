package rpc

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/internal/telemetry"
	"github.com/triplexrpc/triplex/pkg/envelope"
	"github.com/triplexrpc/triplex/pkg/metrics"
)

// Router ties the handler registry, connection registry, and metrics into
// the dispatch path every gateway feeds.
//
// One Router serves all transports. Gateways call Dispatch for each frame
// they read; applications register handlers and obtain broadcasters here.
type Router struct {
	handlers *HandlerRegistry
	conns    *ConnectionRegistry
	metrics  metrics.RPCMetrics
}

// NewRouter builds a router over the given registries. Nil registries are
// replaced with fresh empty ones; metrics may be nil to disable
// collection.
func NewRouter(handlers *HandlerRegistry, conns *ConnectionRegistry, m metrics.RPCMetrics) *Router {
	if handlers == nil {
		handlers = NewHandlerRegistry()
	}
	if conns == nil {
		conns = NewConnectionRegistry()
	}
	return &Router{
		handlers: handlers,
		conns:    conns,
		metrics:  m,
	}
}

// Handlers returns the handler registry backing this router.
func (r *Router) Handlers() *HandlerRegistry {
	return r.handlers
}

// Connections returns the connection registry backing this router.
func (r *Router) Connections() *ConnectionRegistry {
	return r.conns
}

// Metrics returns the metrics sink backing this router, nil when disabled.
func (r *Router) Metrics() metrics.RPCMetrics {
	return r.metrics
}

// Register binds a handler entry to (transport, commandID).
func (r *Router) Register(t Transport, commandID string, entry HandlerEntry) {
	r.handlers.Register(t, commandID, entry)
}

// RegisterAll binds a handler entry to commandID on every transport.
func (r *Router) RegisterAll(commandID string, entry HandlerEntry) {
	r.handlers.RegisterAll(commandID, entry)
}

// Broadcaster returns a broadcaster scoped to one command id on one
// transport. Broadcasters are cheap; obtain them as needed.
func (r *Router) Broadcaster(t Transport, commandID string) *Broadcaster {
	return &Broadcaster{
		router:    r,
		transport: t,
		commandID: commandID,
	}
}

// Dispatch decodes one inbound frame and routes it by (transport, command).
//
// The calling read loop never waits on handler execution: after lookup the
// handler runs on its own goroutine, bounded by the connection's in-flight
// semaphore. Dispatch blocks only when the connection already has
// MaxInFlight handlers running, which back-pressures the read loop.
//
// Protocol failures answer the peer and keep the connection open: a frame
// that fails envelope decoding gets "Invalid envelope: <err>", a command
// with no registered handler gets "Command '<id>' not supported".
func (r *Router) Dispatch(ctx context.Context, conn *Conn, frame []byte) {
	transport := string(conn.Transport())

	if r.metrics != nil {
		r.metrics.RecordBytesTransferred(transport, "read", uint64(len(frame)))
	}

	e, err := envelope.Unmarshal(frame)
	if err != nil {
		r.rejectFrame(ctx, conn, e, err)
		return
	}

	ctx = NewConnContext(ctx, conn)
	if lc := logger.FromContext(ctx); lc != nil {
		ctx = logger.WithContext(ctx, lc.WithCommand(e.ID, e.RequestID))
	}

	logger.DebugCtx(ctx, "Received envelope",
		logger.KeyType, e.Type.String(),
		logger.Size(len(frame)))

	entry, ok := r.handlers.Lookup(conn.Transport(), e.ID)
	if !ok {
		logger.WarnCtx(ctx, "Command not supported")
		if r.metrics != nil {
			r.metrics.RecordRequest(transport, e.ID, 0, "unknown_command")
		}
		r.sendError(ctx, conn, e.ID, e.RequestID, fmt.Sprintf("Command '%s' not supported", e.ID))
		return
	}

	// Acquire an in-flight slot before leaving the read loop so the
	// semaphore, not the scheduler, bounds handler concurrency.
	conn.requestSem <- struct{}{}
	conn.wg.Add(1)

	go r.invoke(ctx, conn, entry, e)
}

// invoke runs one handler with panic isolation so a misbehaving handler
// cannot take down the process or leak its semaphore slot.
func (r *Router) invoke(ctx context.Context, conn *Conn, entry *HandlerEntry, e envelope.Envelope) {
	transport := string(conn.Transport())
	rsp := newResponder(conn, e.ID, e.RequestID, entry.Encode)

	info := conn.Info()
	spanAttrs := []attribute.KeyValue{
		telemetry.ConnectionID(conn.ID()),
		telemetry.ClientAddr(info.RemoteAddr),
		telemetry.EnvelopeType(e.Type.String()),
		telemetry.PayloadSize(len(e.Data)),
	}
	if e.RequestID != "" {
		spanAttrs = append(spanAttrs, telemetry.RequestID(e.RequestID))
	}
	if info.Principal != nil {
		spanAttrs = append(spanAttrs, telemetry.Username(info.Principal.Subject))
	}
	ctx, span := telemetry.StartCommandSpan(ctx, transport, e.ID, spanAttrs...)

	start := time.Now()
	errorKind := ""

	defer func() {
		<-conn.requestSem
		conn.wg.Done()

		if rec := recover(); rec != nil {
			errorKind = "handler_error"
			logger.ErrorCtx(ctx, "Panic in handler",
				logger.KeyError, rec,
				"stack", string(debug.Stack()))
			telemetry.RecordError(ctx, fmt.Errorf("handler panic: %v", rec))
			reason := fmt.Sprintf("Handler error: %v", rec)
			span.SetAttributes(telemetry.ErrorReason(reason))
			_ = rsp.SendError(reason)
		}

		if r.metrics != nil {
			r.metrics.RecordRequestEnd(transport, e.ID)
			r.metrics.RecordRequest(transport, e.ID, time.Since(start), errorKind)
		}
		span.End()
	}()

	if r.metrics != nil {
		r.metrics.RecordRequestStart(transport, e.ID)
	}

	req, err := decodeBody(entry.Decode, e.Data)
	if err != nil {
		errorKind = "decode_error"
		logger.WarnCtx(ctx, "Failed to decode request body", logger.Err(err))
		telemetry.RecordError(ctx, err)
		reason := fmt.Sprintf("Handler error: %v", err)
		span.SetAttributes(telemetry.ErrorReason(reason))
		_ = rsp.SendError(reason)
		return
	}

	if err := entry.Handle(ctx, req, rsp); err != nil {
		errorKind = "handler_error"
		logger.WarnCtx(ctx, "Handler failed", logger.Err(err))
		telemetry.RecordError(ctx, err)
		reason := fmt.Sprintf("Handler error: %v", err)
		span.SetAttributes(telemetry.ErrorReason(reason))
		_ = rsp.SendError(reason)
		return
	}

	logger.DebugCtx(ctx, "Handler completed",
		logger.DurationMs(logger.Duration(start)))
}

// rejectFrame answers a frame that failed envelope decoding. Replies must
// carry the command id of the envelope they answer, so a frame whose id
// did not survive decoding is logged and dropped instead. The connection
// stays open either way.
func (r *Router) rejectFrame(ctx context.Context, conn *Conn, partial envelope.Envelope, decodeErr error) {
	logger.WarnCtx(ctx, "Failed to decode envelope",
		logger.Err(decodeErr),
		logger.Command(partial.ID),
		logger.RequestID(partial.RequestID))

	if r.metrics != nil {
		r.metrics.RecordEnvelopeRejected(string(conn.Transport()), "parse_error")
	}

	if partial.ID == "" {
		return
	}
	r.sendError(ctx, conn, partial.ID, partial.RequestID, fmt.Sprintf("Invalid envelope: %v", decodeErr))
}

func (r *Router) sendError(ctx context.Context, conn *Conn, commandID, requestID, reason string) {
	if err := conn.Send(envelope.NewError(commandID, requestID, reason)); err != nil {
		logger.DebugCtx(ctx, "Failed to send protocol error reply", logger.Err(err))
	}
}
