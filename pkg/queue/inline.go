package queue

import (
	"context"
	"fmt"
	"sync"

	"CoinCast/pkg/logger"
)

// InlineQueue runs jobs in-process on background goroutines. It backs
// deployments without Redis: publishing dispatches immediately, there is
// no persistence and no retry, and Stop waits for in-flight jobs.
type InlineQueue struct {
	logger *logger.Logger
	jobs   map[string]Job
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewInlineQueue creates an in-process queue with the given jobs.
func NewInlineQueue(lgr *logger.Logger, jobs []Job) *InlineQueue {
	q := &InlineQueue{logger: lgr, jobs: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		q.jobs[job.Type()] = job
	}
	return q
}

// Start is a no-op; the queue is ready as soon as it is constructed.
func (q *InlineQueue) Start() error { return nil }

// Stop refuses new publishes and waits for in-flight jobs.
func (q *InlineQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(doneCh)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for inline jobs: %w", ctx.Err())
	case <-doneCh:
		return nil
	}
}

// PublishMessage dispatches the payload to the registered job on a new
// goroutine (implements QueueService).
func (q *InlineQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return fmt.Errorf("inline queue stopped")
	}
	job, ok := q.jobs[msgType]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("no job registered for type: %s", msgType)
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		// jobs outlive the request that published them
		if err := job.Handle(context.Background(), payload); err != nil {
			q.logger.Error("inline job error",
				logger.String("job", job.Name()),
				logger.String("type", msgType),
				logger.Error(err))
		}
	}()
	return nil
}
