// Package gateway provides the HTTP server exposing health, metrics, and
// the Telegram webhook endpoint.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/voclab/voxgram/internal/config"
)

const shutdownTimeout = 10 * time.Second

// Gateway is the HTTP edge of the bot. The webhook handler is nil when the
// bot runs in polling mode; the route is simply not mounted then.
type Gateway struct {
	cfg      config.ServerConfig
	logger   *slog.Logger
	webhook  http.Handler
	registry *prometheus.Registry
	ping     func(ctx context.Context) error

	server    *http.Server
	startedAt time.Time
}

// New creates the gateway. ping probes the durable store for the health
// endpoint; nil disables the probe.
func New(cfg config.ServerConfig, webhook http.Handler, registry *prometheus.Registry,
	ping func(ctx context.Context) error, logger *slog.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		logger:   logger,
		webhook:  webhook,
		registry: registry,
		ping:     ping,
	}
}

// Start binds the listener and serves in a goroutine.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.cfg.Listen,
		Handler:      g.buildRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Listen)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.Listen)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the server down.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
