// Package prometheus provides Prometheus-backed implementations of the
// metrics interfaces in pkg/metrics.
//
// Collectors are registered on the registry passed to the constructor, so
// callers control exposure (typically via promhttp on the API server).
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/triplexrpc/triplex/pkg/metrics"
)

// rpcMetrics is the Prometheus implementation of metrics.RPCMetrics.
type rpcMetrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	inFlightRequests  *prometheus.GaugeVec
	bytesTransferred  *prometheus.CounterVec
	activeConnections *prometheus.GaugeVec
	connsAccepted     *prometheus.CounterVec
	connsClosed       *prometheus.CounterVec
	connsForceClosed  *prometheus.CounterVec
	envelopesRejected *prometheus.CounterVec
}

// NewRPCMetrics creates a new Prometheus-backed RPCMetrics instance with
// all collectors registered on reg.
//
// Returns nil if reg is nil, which disables collection with zero overhead.
func NewRPCMetrics(reg *prometheus.Registry) metrics.RPCMetrics {
	if reg == nil {
		return nil
	}

	return &rpcMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "triplex_rpc_requests_total",
				Help: "Total number of dispatched requests by transport, command and outcome",
			},
			[]string{"transport", "command", "error"}, // error: "" on success
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "triplex_rpc_request_duration_milliseconds",
				Help: "Duration of request dispatch in milliseconds",
				Buckets: []float64{
					0.5,   // 500us - in-process handlers
					1,     // 1ms
					5,     // 5ms
					10,    // 10ms
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s
					5000,  // 5s
					20000, // 20s - client request timeout
				},
			},
			[]string{"transport", "command"},
		),
		inFlightRequests: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "triplex_rpc_in_flight_requests",
				Help: "Current number of requests being processed by transport and command",
			},
			[]string{"transport", "command"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "triplex_bytes_transferred_total",
				Help: "Total envelope bytes moved across connections by transport and direction",
			},
			[]string{"transport", "direction"}, // direction: "read", "write"
		),
		activeConnections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "triplex_connections_active",
				Help: "Current number of active connections by transport",
			},
			[]string{"transport"},
		),
		connsAccepted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "triplex_connections_accepted_total",
				Help: "Total number of accepted connections by transport",
			},
			[]string{"transport"},
		),
		connsClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "triplex_connections_closed_total",
				Help: "Total number of closed connections by transport",
			},
			[]string{"transport"},
		),
		connsForceClosed: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "triplex_connections_force_closed_total",
				Help: "Total number of connections forcibly closed during shutdown by transport",
			},
			[]string{"transport"},
		),
		envelopesRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "triplex_envelopes_rejected_total",
				Help: "Total number of inbound frames rejected before dispatch by transport and reason",
			},
			[]string{"transport", "reason"}, // reason: "parse_error", "frame_too_large", "framing_violation", "non_binary_message"
		),
	}
}

func (m *rpcMetrics) RecordRequest(transport string, command string, duration time.Duration, errorKind string) {
	if m == nil {
		return
	}

	m.requestsTotal.WithLabelValues(transport, command, errorKind).Inc()
	m.requestDuration.WithLabelValues(transport, command).Observe(duration.Seconds() * 1000)
}

func (m *rpcMetrics) RecordRequestStart(transport string, command string) {
	if m == nil {
		return
	}

	m.inFlightRequests.WithLabelValues(transport, command).Inc()
}

func (m *rpcMetrics) RecordRequestEnd(transport string, command string) {
	if m == nil {
		return
	}

	m.inFlightRequests.WithLabelValues(transport, command).Dec()
}

func (m *rpcMetrics) RecordBytesTransferred(transport string, direction string, bytes uint64) {
	if m == nil {
		return
	}

	m.bytesTransferred.WithLabelValues(transport, direction).Add(float64(bytes))
}

func (m *rpcMetrics) SetActiveConnections(transport string, count int32) {
	if m == nil {
		return
	}

	m.activeConnections.WithLabelValues(transport).Set(float64(count))
}

func (m *rpcMetrics) RecordConnectionAccepted(transport string) {
	if m == nil {
		return
	}

	m.connsAccepted.WithLabelValues(transport).Inc()
}

func (m *rpcMetrics) RecordConnectionClosed(transport string) {
	if m == nil {
		return
	}

	m.connsClosed.WithLabelValues(transport).Inc()
}

func (m *rpcMetrics) RecordConnectionForceClosed(transport string) {
	if m == nil {
		return
	}

	m.connsForceClosed.WithLabelValues(transport).Inc()
}

func (m *rpcMetrics) RecordEnvelopeRejected(transport string, reason string) {
	if m == nil {
		return
	}

	m.envelopesRejected.WithLabelValues(transport, reason).Inc()
}
