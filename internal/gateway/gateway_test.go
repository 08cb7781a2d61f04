package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voclab/voxgram/internal/config"
)

func testGateway(webhook http.Handler, registry *prometheus.Registry, ping func(context.Context) error, metricsEnabled bool) *Gateway {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.ServerConfig{Listen: "127.0.0.1:0", MetricsEnabled: metricsEnabled}
	return New(cfg, webhook, registry, ping, logger)
}

func TestHealth_OK(t *testing.T) {
	g := testGateway(nil, nil, func(context.Context) error { return nil }, false)

	rec := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Store != "ok" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHealth_DegradedOnStoreFailure(t *testing.T) {
	g := testGateway(nil, nil, func(context.Context) error { return errors.New("database is locked") }, false)

	rec := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "degraded" || !strings.Contains(resp.Store, "locked") {
		t.Errorf("resp = %+v", resp)
	}
}

func TestWebhookRoute(t *testing.T) {
	called := false
	webhook := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	g := testGateway(webhook, nil, nil, false)

	rec := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/telegram", strings.NewReader("{}")))

	if !called || rec.Code != http.StatusOK {
		t.Errorf("called = %v, status = %d", called, rec.Code)
	}
}

func TestWebhookRoute_NotMountedInPollingMode(t *testing.T) {
	g := testGateway(nil, nil, nil, false)

	rec := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/telegram", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestMetricsRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "voxgram_test_total"})
	registry.MustRegister(counter)
	counter.Inc()

	g := testGateway(nil, registry, nil, true)

	rec := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "voxgram_test_total 1") {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}
}

func TestMetricsRoute_Disabled(t *testing.T) {
	g := testGateway(nil, prometheus.NewRegistry(), nil, false)

	rec := httptest.NewRecorder()
	g.buildRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
