package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("dispatcher closed")

type ProcessFunc func(ctx context.Context, jobID string) error

// localQueue runs jobs in-process with a bounded number of workers. It is
// used by the single-binary mode and by tests.
type localQueue struct {
	process ProcessFunc
	sem     *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLocal(ctx context.Context, workers int, process ProcessFunc) *localQueue {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &localQueue{
		process: process,
		sem:     semaphore.NewWeighted(int64(workers)),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (q *localQueue) Dispatch(_ context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("empty jobID")
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		if err := q.sem.Acquire(q.ctx, 1); err != nil {
			slog.Warn("job dropped on shutdown", slog.String("job_id", jobID))
			return
		}
		defer q.sem.Release(1)

		if err := q.process(q.ctx, jobID); err != nil {
			slog.Error("process job",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
	}()

	return nil
}

// Close stops accepting jobs, cancels the running ones and waits for them.
func (q *localQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// Wait blocks until every dispatched job has finished.
func (q *localQueue) Wait() {
	q.wg.Wait()
}
