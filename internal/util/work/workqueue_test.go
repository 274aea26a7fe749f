package work

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueProcessesSubmittedJobs(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int]bool)
	done := make(chan struct{}, 3)

	q := NewQueue[int](2, func(_ context.Context, n int) error {
		mu.Lock()
		seen[n] = true
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	defer q.Stop()

	for i := 1; i <= 3; i++ {
		if err := q.Submit(i, 0); err != nil {
			t.Fatalf("Submit error: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i <= 3; i++ {
		if !seen[i] {
			t.Fatalf("job %d never processed", i)
		}
	}
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	done := make(chan struct{})

	q := NewQueue[string](1, func(_ context.Context, _ string) error {
		if atomic.AddInt32(&attempts, 1) < 2 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})
	defer q.Stop()

	if err := q.SubmitWithRetries("job", 0, 3); err != nil {
		t.Fatalf("SubmitWithRetries error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("job never succeeded after retry")
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestQueueRejectsAfterStop(t *testing.T) {
	q := NewQueue[int](1, func(context.Context, int) error { return nil })
	q.Stop()

	if err := q.Submit(1, 0); err != ErrWorkQueueClosed {
		t.Fatalf("expected ErrWorkQueueClosed, got %v", err)
	}
}

func TestQueueStopIsIdempotent(t *testing.T) {
	q := NewQueue[int](1, func(context.Context, int) error { return nil })
	q.Stop()
	q.Stop()
}
