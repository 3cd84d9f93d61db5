package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false, ServiceName: "triplex"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.False(t, IsEnabled())
	assert.NoError(t, shutdown(context.Background()))

	// Disabled tracing still hands out working no-op spans.
	ctx, span := StartSpan(context.Background(), "rpc.ping")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
}

func TestTracerBeforeInit(t *testing.T) {
	tracer = nil
	enabled = false

	require.NotNil(t, Tracer())
	assert.False(t, IsEnabled())
}

func TestSamplerFor(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample(), samplerFor(1.0))
	assert.Equal(t, sdktrace.AlwaysSample(), samplerFor(2.5))
	assert.Equal(t, sdktrace.NeverSample(), samplerFor(0))
	assert.Equal(t, sdktrace.NeverSample(), samplerFor(-1))
	assert.Equal(t, sdktrace.TraceIDRatioBased(0.25), samplerFor(0.25))
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() { RecordError(ctx, nil) })
	require.NotPanics(t, func() { RecordError(ctx, errors.New("dispatch failed")) })
}

func TestAttributeHelpers(t *testing.T) {
	addr := ClientAddr("192.168.1.100:12345")
	assert.Equal(t, AttrClientAddr, string(addr.Key))
	assert.Equal(t, "192.168.1.100:12345", addr.Value.AsString())

	tr := Transport("ws")
	assert.Equal(t, AttrTransport, string(tr.Key))
	assert.Equal(t, "ws", tr.Value.AsString())

	cmd := Command("message.test")
	assert.Equal(t, AttrCommand, string(cmd.Key))
	assert.Equal(t, "message.test", cmd.Value.AsString())

	assert.Equal(t, AttrRequestID, string(RequestID("req-42").Key))
	assert.Equal(t, AttrEnvelopeType, string(EnvelopeType("REQUEST").Key))
	assert.Equal(t, AttrErrorReason, string(ErrorReason("Handler error: boom").Key))
	assert.Equal(t, AttrConnectionID, string(ConnectionID("conn-7").Key))
	assert.Equal(t, AttrUsername, string(Username("alice").Key))

	assert.Equal(t, int64(4096), PayloadSize(4096).Value.AsInt64())
	assert.Equal(t, int64(12), Connections(12).Value.AsInt64())
}

func TestCommandAndBroadcastSpans(t *testing.T) {
	ctx := context.Background()

	spanCtx, span := StartCommandSpan(ctx, "tcp", "ping", RequestID("r1"), PayloadSize(64))
	require.NotNil(t, spanCtx)
	require.NotNil(t, span)
	span.End()

	spanCtx, span = StartBroadcastSpan(ctx, "ws", "message.test", Connections(3))
	require.NotNil(t, spanCtx)
	require.NotNil(t, span)
	span.End()
}

func TestInitProfilingDisabled(t *testing.T) {
	shutdown, err := InitProfiling(ProfilingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.False(t, IsProfilingEnabled())
	assert.NoError(t, shutdown())
}

func TestInitProfilingRejectsUnknownProfileType(t *testing.T) {
	_, err := InitProfiling(ProfilingConfig{
		Enabled:      true,
		ServiceName:  "triplex",
		Endpoint:     "http://localhost:4040",
		ProfileTypes: []string{"cpu", "heap_of_trouble"},
	})
	assert.ErrorContains(t, err, "unknown profile type")
}
