package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"StarkProof/internal/proofs"
)

func TestMiddlewareCountsRequests(t *testing.T) {
	m := New()
	handler := m.Middleware("stark_proof", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))

	for _, path := range []string{"/ok", "/ok", "/missing"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("stark_proof", "GET", "200")); got != 2 {
		t.Fatalf("expected 2 ok requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("stark_proof", "GET", "404")); got != 1 {
		t.Fatalf("expected 1 not found request, got %v", got)
	}
}

func TestSinkCountsOutcomes(t *testing.T) {
	m := New()
	sink := m.Sink()
	ctx := context.Background()

	sink.Record(ctx, proofs.Record{Outcome: proofs.OutcomeSuccess, Duration: time.Millisecond})
	sink.Record(ctx, proofs.Record{Outcome: proofs.OutcomeFailure, Code: proofs.CodeProofNotFound})
	sink.Record(ctx, proofs.Record{Outcome: proofs.OutcomeFailure, Code: proofs.CodeProofNotFound})

	if got := testutil.ToFloat64(m.lookups.WithLabelValues("success", "OK")); got != 1 {
		t.Fatalf("unexpected success count: %v", got)
	}
	if got := testutil.ToFloat64(m.lookups.WithLabelValues("failure", "PROOF_NOT_FOUND")); got != 2 {
		t.Fatalf("unexpected not found count: %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("stark_proof", "GET", 200, 10*time.Millisecond)
	m.ObserveDropped("rabbitmq")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		`starkproof_http_requests_total{code="200",handler="stark_proof",method="GET"} 1`,
		`starkproof_observability_records_dropped_total{sink="rabbitmq"} 1`,
		"starkproof_http_request_duration_seconds_bucket",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestStartServerRequiresAddress(t *testing.T) {
	if err := New().StartServer(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
