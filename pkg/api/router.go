package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/triplexrpc/triplex/internal/logger"
	"github.com/triplexrpc/triplex/pkg/api/handlers"
)

// RouterConfig wires the endpoints hosted on the WebSocket listener.
type RouterConfig struct {
	// Upgrade handles WebSocket upgrade requests, mounted at every pattern.
	Upgrade http.HandlerFunc

	// Patterns are the URL paths that serve the upgrade handler.
	Patterns []string

	// Status feeds the health endpoint. Nil reports an empty gateway list.
	Status handlers.StatusFunc

	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler
}

// NewRouter builds the chi router shared by the WebSocket gateway and the
// plain HTTP endpoints:
//
//	GET /healthz    gateway health summary
//	GET /metrics    Prometheus scrape endpoint (when enabled)
//	GET <pattern>   WebSocket upgrade, one route per configured pattern
//
// Every request passes through request-ID assignment, client IP extraction,
// structured logging, and panic recovery, in that order.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	// Plain HTTP endpoints get a request timeout. Upgrade paths must not:
	// an upgraded connection lives for as long as the peer stays.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		healthHandler := handlers.NewHealthHandler(cfg.Status)
		r.Get("/healthz", healthHandler.Health)

		if cfg.Metrics != nil {
			r.Method(http.MethodGet, "/metrics", cfg.Metrics)
		}
	})

	if cfg.Upgrade != nil {
		for _, pattern := range cfg.Patterns {
			r.Get(pattern, cfg.Upgrade)
		}
	}

	return r
}

// requestLogger emits a DEBUG line when a request arrives and an INFO line
// when it completes. For upgrade paths the completion line fires when the
// WebSocket connection ends, so its duration is the connection lifetime.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("HTTP request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			logger.KeyRemoteAddr, r.RemoteAddr,
		)

		// chi's wrapper records the status and byte count for the log line.
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("HTTP request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
