package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// stubJob is a minimal Job for scheduler tests.
type stubJob struct {
	name     string
	schedule string
	runFunc  func(ctx context.Context) error
	mu       sync.Mutex
	calls    int
}

func (j *stubJob) Name() string     { return j.name }
func (j *stubJob) Schedule() string { return j.schedule }
func (j *stubJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.calls++
	j.mu.Unlock()
	if j.runFunc != nil {
		return j.runFunc(ctx)
	}
	return nil
}

func TestScheduler_RegisterJob_DuplicateName(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())

	if err := s.RegisterJob(&stubJob{name: "digest", schedule: "0 9 * * *"}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := s.RegisterJob(&stubJob{name: "digest", schedule: "0 9 * * *"}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestScheduler_Start_InvalidSchedule(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&stubJob{name: "bad", schedule: "not a schedule"})

	if err := s.Start(); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestScheduler_StopWaitsForJobs(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&stubJob{
		name:     "slow",
		schedule: "* * * * *",
		runFunc: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	// The first tick can be up to a minute away; don't wait for it in a
	// unit test. Stop must return cleanly whether or not a job ran.
	go func() {
		select {
		case <-started:
			close(release)
		case <-time.After(100 * time.Millisecond):
			close(release)
		}
	}()

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestScheduler_JobErrorDoesNotStopScheduler(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default())
	_ = s.RegisterJob(&stubJob{
		name:     "failing",
		schedule: "* * * * *",
		runFunc:  func(ctx context.Context) error { return errors.New("boom") },
	})
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}
