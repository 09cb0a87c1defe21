// Package queue is a bounded background work queue. The ingest pipeline
// runs on it so webhook handlers can acknowledge immediately, and the folder
// watcher runs it with a single worker so scan triggers from the push
// channel and the poll timer serialize onto one scan at a time.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"minutesbot/app/pkg/logger"
)

var (
	ErrQueueStarted = errors.New("queue: already started")
	ErrQueueStopped = errors.New("queue: stopped")
)

type Job struct {
	ID  string
	Run func(context.Context) error
}

type Queue struct {
	mu       sync.Mutex
	jobs     chan Job
	started  bool
	stopping bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	nextID    atomic.Uint64
	pending   atomic.Int64
	enqueued  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

type Stats struct {
	Depth     int    `json:"depth"`
	Pending   int64  `json:"pending"`
	Enqueued  uint64 `json:"enqueued"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

func New(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{jobs: make(chan Job, buffer)}
}

// Enqueue blocks until the job is buffered or ctx ends.
func (q *Queue) Enqueue(ctx context.Context, job Job) (string, error) {
	if job.Run == nil {
		return "", errors.New("queue: job run callback is required")
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", q.nextID.Add(1))
	}

	q.mu.Lock()
	stopping := q.stopping
	q.mu.Unlock()
	if stopping {
		return "", ErrQueueStopped
	}

	select {
	case q.jobs <- job:
		q.pending.Add(1)
		q.enqueued.Add(1)
		return job.ID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// TryEnqueue buffers the job if there is room and drops it otherwise.
// Dropping is the coalescing behavior scan triggers want: a scan already
// waiting in the buffer covers the new trigger.
func (q *Queue) TryEnqueue(job Job) bool {
	if job.Run == nil {
		return false
	}
	q.mu.Lock()
	stopping := q.stopping
	q.mu.Unlock()
	if stopping {
		return false
	}

	select {
	case q.jobs <- job:
		q.pending.Add(1)
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

func (q *Queue) Start(parent context.Context, workers int) error {
	if workers <= 0 {
		workers = 1
	}

	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrQueueStarted
	}
	ctx, cancel := context.WithCancel(parent)
	q.cancel = cancel
	q.started = true
	q.stopping = false
	q.mu.Unlock()

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	return nil
}

// Stop drains buffered jobs, waits for in-flight work, and joins the
// workers. It is awaited, not fire-and-forget, so shutdown cannot race a
// final job.
func (q *Queue) Stop(timeout time.Duration) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	cancel := q.cancel
	q.cancel = nil
	q.started = false
	q.stopping = true
	q.mu.Unlock()

	// pending counts from enqueue until the job finishes, so a job that a
	// worker has received but not yet started cannot slip past the drain.
	deadline := time.Now().Add(timeout)
	for timeout <= 0 || time.Now().Before(deadline) {
		if q.pending.Load() == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.wg.Wait()
	}()
	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(time.Until(deadline) + 50*time.Millisecond):
		return fmt.Errorf("queue: stop timeout after %s", timeout)
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		Depth:     len(q.jobs),
		Pending:   q.pending.Load(),
		Enqueued:  q.enqueued.Load(),
		Completed: q.completed.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			if err := job.Run(ctx); err != nil {
				q.failed.Add(1)
				logger.Error("queue job %s failed: %v", job.ID, err)
			} else {
				q.completed.Add(1)
			}
			q.pending.Add(-1)
		}
	}
}
