// Package metrics exposes Prometheus metrics for the HTTP transport and for
// proof lookup outcomes. Each Metrics value owns a private registry so tests
// and multiple servers never collide.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"StarkProof/internal/proofs"
)

// Metrics holds the collectors registered by the proof service.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	lookups        *prometheus.CounterVec
	lookupDuration *prometheus.HistogramVec
	droppedRecords *prometheus.CounterVec
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "starkproof_http_requests_total",
				Help: "Total number of HTTP requests processed.",
			},
			[]string{"handler", "method", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "starkproof_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"handler", "method"},
		),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "starkproof_proof_lookups_total",
				Help: "Proof lookups by outcome and error code.",
			},
			[]string{"outcome", "code"},
		),
		lookupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "starkproof_proof_lookup_duration_seconds",
				Help:    "Time spent resolving a proof through the provider.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		droppedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "starkproof_observability_records_dropped_total",
				Help: "Observability records dropped because a sink buffer was full.",
			},
			[]string{"sink"},
		),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.lookups,
		m.lookupDuration,
		m.droppedRecords,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	m.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveDropped counts an observability record lost by the named sink.
func (m *Metrics) ObserveDropped(sink string) {
	m.droppedRecords.WithLabelValues(sink).Inc()
}

// Sink returns a proofs.Sink that counts lookup outcomes.
func (m *Metrics) Sink() proofs.Sink {
	return proofs.SinkFunc(func(_ context.Context, rec proofs.Record) {
		code := string(rec.Code)
		if code == "" {
			code = "OK"
		}
		m.lookups.WithLabelValues(string(rec.Outcome), code).Inc()
		m.lookupDuration.WithLabelValues(string(rec.Outcome)).Observe(rec.Duration.Seconds())
	})
}

// Handler exposes the metrics in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency for next under handler.
func (m *Metrics) Middleware(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		m.ObserveHTTPRequest(handler, r.Method, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func (m *Metrics) StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
