package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterValidation(t *testing.T) {
	s := New()
	if err := s.Register(JobSpec{}); err == nil {
		t.Fatal("expected validation error")
	}

	valid := JobSpec{
		Name:     "poll",
		Interval: 10 * time.Millisecond,
		Run:      func(context.Context) error { return nil },
	}
	if err := s.Register(valid); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := s.Register(valid); !errors.Is(err, ErrJobExists) {
		t.Fatalf("expected ErrJobExists, got %v", err)
	}
}

func TestRunOnStartAndPeriodicTicks(t *testing.T) {
	s := New()
	var runs atomic.Int32

	err := s.Register(JobSpec{
		Name:       "poll",
		Interval:   15 * time.Millisecond,
		RunOnStart: true,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if runs.Load() < 2 {
		t.Fatalf("expected immediate run plus at least one tick, got %d", runs.Load())
	}
}

func TestStopJoinsRunningJob(t *testing.T) {
	s := New()
	finished := make(chan struct{})

	err := s.Register(JobSpec{
		Name:       "slow",
		Interval:   time.Hour,
		RunOnStart: true,
		Run: func(ctx context.Context) error {
			time.Sleep(30 * time.Millisecond)
			close(finished)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.Stop(time.Second); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	select {
	case <-finished:
	default:
		t.Fatal("stop returned before the running job finished")
	}
}

func TestDoubleStartRejected(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Start(ctx); !errors.Is(err, ErrSchedulerStart) {
		t.Fatalf("expected ErrSchedulerStart, got %v", err)
	}
	_ = s.Stop(time.Second)
}
