package work

import (
	"context"
	"errors"
	"sync"
	"time"

	"speechbridge-server-go/internal/util"
)

var ErrWorkQueueClosed = errors.New("work queue closed")

// Item is one queued job with its retry budget.
type Item[T any] struct {
	Data       T
	Priority   int
	Retries    int
	MaxRetries int
	LastError  error
	CreatedAt  time.Time
}

// Handler processes one job. A non-nil error triggers a retry while the
// item's budget lasts; after that the item is dropped.
type Handler[T any] func(ctx context.Context, data T) error

// Queue runs jobs on a fixed worker pool, highest priority first. It backs
// the detached writes of the service: cache fills and history records that
// must not delay a response.
type Queue[T any] struct {
	queue   *util.PriorityQueue[*Item[T]]
	handler Handler[T]
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

func NewQueue[T any](numWorkers int, handler Handler[T]) *Queue[T] {
	if numWorkers <= 0 {
		numWorkers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue[T]{
		queue:   util.NewPriorityQueue[*Item[T]](),
		handler: handler,
		cancel:  cancel,
	}

	for i := 0; i < numWorkers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}

	return q
}

// Submit enqueues a job without retries.
func (q *Queue[T]) Submit(data T, priority int) error {
	return q.SubmitWithRetries(data, priority, 0)
}

// SubmitWithRetries enqueues a job that is retried with backoff up to
// maxRetries times.
func (q *Queue[T]) SubmitWithRetries(data T, priority int, maxRetries int) error {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return ErrWorkQueueClosed
	}

	item := &Item[T]{
		Data:       data,
		Priority:   priority,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}
	if err := q.queue.PushItem(item, priority); err != nil {
		return ErrWorkQueueClosed
	}
	return nil
}

// Stop stops accepting jobs and waits for the workers to exit. Jobs still
// queued are abandoned.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.queue.Close()
	q.cancel()
	q.wg.Wait()
}

// Len reports how many jobs are waiting.
func (q *Queue[T]) Len() int {
	return q.queue.Len()
}

func (q *Queue[T]) worker(ctx context.Context) {
	defer q.wg.Done()

	for {
		item, err := q.queue.PopItem(ctx)
		if err != nil {
			return
		}
		q.process(ctx, item)
	}
}

func (q *Queue[T]) process(ctx context.Context, item *Item[T]) {
	for {
		err := q.handler(ctx, item.Data)
		if err == nil {
			return
		}

		item.LastError = err
		item.Retries++
		if item.Retries > item.MaxRetries {
			return
		}

		backoff := time.Duration(item.Retries) * time.Second
		if backoff > time.Minute {
			backoff = time.Minute
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
	}
}
