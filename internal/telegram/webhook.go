package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

const maxWebhookBody = 1 << 20

// WebhookReceiver processes incoming Telegram webhook payloads. It is
// mounted as an http.Handler on the gateway router.
type WebhookReceiver struct {
	handler Handler
	logger  *slog.Logger
	secret  string
}

// NewWebhookReceiver creates a new WebhookReceiver. If secret is non-empty,
// Telegram's X-Telegram-Bot-Api-Secret-Token header is required to match.
func NewWebhookReceiver(handler Handler, logger *slog.Logger, secret string) *WebhookReceiver {
	return &WebhookReceiver{
		handler: handler,
		logger:  logger,
		secret:  secret,
	}
}

// ServeHTTP implements http.Handler.
func (w *WebhookReceiver) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if w.secret != "" {
		token := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
		if subtle.ConstantTimeCompare([]byte(w.secret), []byte(token)) != 1 {
			w.logger.Warn("webhook rejected: invalid secret token")
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		w.logger.Warn("webhook rejected: invalid update JSON", "error", err)
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	// Acknowledge immediately; processing happens off the request path so
	// Telegram never retries an update that is merely slow to transcribe.
	// The request context dies with the response, so detach.
	go w.handler(context.Background(), &update)

	rw.WriteHeader(http.StatusOK)
}
