package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status string `json:"status"` // "ok" or "degraded"
	Uptime string `json:"uptime"`
	Store  string `json:"store,omitempty"`
}

// handleHealth returns an http.HandlerFunc for GET /health. The store
// probe degrades the status (503) without taking the endpoint down.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Uptime: time.Since(g.startedAt).Round(time.Second).String(),
		}

		if g.ping != nil {
			if err := g.ping(r.Context()); err != nil {
				resp.Status = "degraded"
				resp.Store = err.Error()
			} else {
				resp.Store = "ok"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
