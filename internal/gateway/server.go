package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", g.handleHealth())

	// Webhook mode only; polling deployments run the gateway without it.
	if g.webhook != nil {
		r.Post("/webhooks/telegram", g.webhook.ServeHTTP)
	}

	if g.cfg.MetricsEnabled && g.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{}))
	}

	return r
}
