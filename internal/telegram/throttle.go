package telegram

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle funnels all outbound Bot API calls through a single lane:
// at most one call in flight process-wide, with a minimum spacing between
// calls. This respects Telegram's own per-bot throttling regardless of
// how many media requests are being processed concurrently.
type Throttle struct {
	mu  sync.Mutex
	lim *rate.Limiter
}

// NewThrottle creates a throttle enforcing the given minimum spacing.
// A non-positive spacing disables pacing but still serializes calls.
func NewThrottle(spacing time.Duration) *Throttle {
	t := &Throttle{}
	if spacing > 0 {
		t.lim = rate.NewLimiter(rate.Every(spacing), 1)
	}
	return t
}

// Do runs fn exclusively, waiting for the spacing budget first.
func (t *Throttle) Do(ctx context.Context, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.lim != nil {
		if err := t.lim.Wait(ctx); err != nil {
			return err
		}
	}
	return fn()
}
