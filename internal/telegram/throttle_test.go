package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestThrottle_SerializesCalls(t *testing.T) {
	th := NewThrottle(0)

	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
	)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = th.Do(context.Background(), func() error {
				mu.Lock()
				inFlight++
				if inFlight > maxSeen {
					maxSeen = inFlight
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inFlight--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max in-flight calls = %d, want 1", maxSeen)
	}
}

func TestThrottle_EnforcesSpacing(t *testing.T) {
	spacing := 20 * time.Millisecond
	th := NewThrottle(spacing)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := th.Do(context.Background(), func() error { return nil }); err != nil {
			t.Fatalf("Do() error: %v", err)
		}
	}
	// First call may pass immediately; the next two must each wait.
	if elapsed := time.Since(start); elapsed < 2*spacing {
		t.Errorf("3 calls finished in %v, want at least %v", elapsed, 2*spacing)
	}
}

func TestThrottle_PropagatesError(t *testing.T) {
	th := NewThrottle(0)
	sentinel := errors.New("send failed")

	if err := th.Do(context.Background(), func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}
}

func TestThrottle_ContextCancelledWhileWaiting(t *testing.T) {
	th := NewThrottle(time.Hour)

	// First call consumes the burst token.
	if err := th.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("first Do() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := th.Do(ctx, func() error {
		t.Error("fn should not run after context expiry")
		return nil
	})
	if err == nil {
		t.Fatal("expected context error")
	}
}
