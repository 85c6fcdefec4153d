// Package observability provides the HTTP server for health checks and
// Prometheus metrics endpoints.
//
// # Endpoints
//
//   - GET /healthz: Health check endpoint. Returns 200 if the adapter process
//     is running. Used by Docker HEALTHCHECK and Kubernetes liveness probes.
//
//   - GET /readyz: Readiness check endpoint. Returns 200 when the adapter has
//     completed initialization and its healthcheck loop is running. Used by
//     Kubernetes readiness probes and load balancers.
//
//   - GET /metrics: Prometheus metrics in text exposition format. Includes
//     both Go runtime metrics and custom adapter metrics.
//
// # Custom Metrics
//
// The following adapter-specific metrics are exported:
//
//	┌─────────────────────────────────┬─────────┬──────────────────────────────────────┐
//	│ Metric Name                     │ Type    │ Description                          │
//	├─────────────────────────────────┼─────────┼──────────────────────────────────────┤
//	│ adapter_api_requests_total      │ Counter │ ServiceNow Table API requests        │
//	│ adapter_api_errors_total        │ Counter │ Table API failures (by reason)       │
//	│ adapter_api_latency_seconds     │ Hist    │ Table API response latency           │
//	│ adapter_healthchecks_total      │ Counter │ Healthcheck runs (by outcome)        │
//	│ adapter_status_events_total     │ Counter │ ONLINE/OFFLINE emissions (by status) │
//	│ adapter_online                  │ Gauge   │ 1 while the instance looks reachable │
//	│ adapter_relay_publish_total     │ Counter │ Status events relayed to Kafka       │
//	│ adapter_registry_requests_total │ Counter │ Schema registry calls (by outcome)   │
//	└─────────────────────────────────┴─────────┴──────────────────────────────────────┘
//
// # Usage
//
//	srv := observability.NewServer(":8080", logger)
//	go srv.Start(ctx)
//	// When ready:
//	srv.SetReady(true)
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ----- Prometheus Metrics -----

// Metrics holds all Prometheus metrics used by the adapter.
// Using promauto for automatic registration with the default registry.
var Metrics = struct {
	// ServiceNow Table API metrics
	APIRequestsTotal *prometheus.CounterVec
	APIErrorsTotal   *prometheus.CounterVec
	APILatency       *prometheus.HistogramVec

	// Lifecycle metrics
	HealthchecksTotal *prometheus.CounterVec
	StatusEventsTotal *prometheus.CounterVec
	AdapterOnline     prometheus.Gauge

	// Relay metrics
	RelayPublishTotal     *prometheus.CounterVec
	RegistryRequestsTotal *prometheus.CounterVec
}{
	APIRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_api_requests_total",
		Help: "Total number of ServiceNow Table API requests.",
	}, []string{"method"}),

	APIErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_api_errors_total",
		Help: "Total number of Table API failures by reason or status code.",
	}, []string{"method", "reason"}),

	APILatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "adapter_api_latency_seconds",
		Help:    "ServiceNow Table API response latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method"}),

	HealthchecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_healthchecks_total",
		Help: "Total number of healthcheck runs by outcome.",
	}, []string{"outcome"}),

	StatusEventsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_status_events_total",
		Help: "Total number of emitted ONLINE/OFFLINE status events.",
	}, []string{"status"}),

	AdapterOnline: promauto.NewGauge(prometheus.GaugeOpts{
		Name: "adapter_online",
		Help: "1 when the last healthcheck saw a reachable instance, 0 otherwise.",
	}),

	RelayPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_relay_publish_total",
		Help: "Total number of status events handed to the Kafka relay by result.",
	}, []string{"result"}),

	RegistryRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "adapter_registry_requests_total",
		Help: "Total number of schema registry requests by outcome.",
	}, []string{"outcome"}),
}

// ----- Health/Readiness Server -----

// Server provides HTTP endpoints for health checks, readiness probes,
// and Prometheus metrics.
type Server struct {
	addr   string
	ready  atomic.Bool
	logger *slog.Logger
	srv    *http.Server
}

// NewServer creates a new observability HTTP server.
func NewServer(addr string, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		logger: logger.With("component", "observability"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests. Blocks until the context is
// cancelled, then gracefully shuts down the server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("observability server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		s.logger.Info("shutting down observability server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(shutdownCtx)
	}()

	if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("observability server: %w", err)
	}
	return nil
}

// SetReady marks the server as ready (or not ready) for readiness probes.
// Call SetReady(true) once the healthcheck loop has started.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
	s.logger.Info("readiness state changed", "ready", ready)
}

// handleHealth responds with 200 OK — the process is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"healthy"}`)
}

// handleReady responds with 200 if ready, 503 if not yet ready.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ready"}`)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, `{"status":"not_ready"}`)
	}
}
