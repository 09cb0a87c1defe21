// Package scheduler runs named interval jobs on their own goroutines. The
// watcher registers its periodic folder poll here; Stop joins every job
// loop so shutdown never races a scan still in progress.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"minutesbot/app/pkg/logger"
)

var (
	ErrJobExists      = errors.New("scheduler: job already exists")
	ErrSchedulerStart = errors.New("scheduler: already started")
)

type JobSpec struct {
	Name       string
	Interval   time.Duration
	Timeout    time.Duration
	RunOnStart bool
	Run        func(context.Context) error
}

type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]JobSpec
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{jobs: make(map[string]JobSpec)}
}

func (s *Scheduler) Register(job JobSpec) error {
	if job.Name == "" {
		return errors.New("scheduler: job name is required")
	}
	if job.Interval <= 0 {
		return errors.New("scheduler: job interval must be greater than zero")
	}
	if job.Run == nil {
		return errors.New("scheduler: job run callback is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("%w: %s", ErrJobExists, job.Name)
	}
	s.jobs[job.Name] = job
	if s.started {
		s.startJobLocked(job)
	}
	return nil
}

func (s *Scheduler) Start(parent context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrSchedulerStart
	}
	s.ctx, s.cancel = context.WithCancel(parent)
	s.started = true
	for _, job := range s.jobs {
		s.startJobLocked(job)
	}
	return nil
}

// Stop cancels every job loop and waits for them to finish, bounded by
// timeout (zero means wait indefinitely).
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.ctx = nil
	s.cancel = nil
	s.started = false
	s.mu.Unlock()

	cancel()
	if timeout <= 0 {
		s.wg.Wait()
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("scheduler: stop timeout after %s", timeout)
	}
}

func (s *Scheduler) startJobLocked(job JobSpec) {
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if job.RunOnStart {
			runOnce(ctx, job)
		}
		ticker := time.NewTicker(job.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce(ctx, job)
			}
		}
	}()
}

func runOnce(parent context.Context, job JobSpec) {
	ctx := parent
	cancel := func() {}
	if job.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, job.Timeout)
	}
	defer cancel()

	if err := job.Run(ctx); err != nil {
		logger.Error("scheduler job %s failed: %v", job.Name, err)
	}
}
