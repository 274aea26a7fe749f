package util

import (
	"container/heap"
	"context"
	"errors"
	"sync"
)

var ErrPriorityQueueClosed = errors.New("priority queue closed")

// PriorityItem pairs a value with its priority. Higher priority pops first.
type PriorityItem[T any] struct {
	Value    T
	Priority int
	index    int
}

// PriorityQueue is a concurrency-safe max-heap with a blocking pop.
type PriorityQueue[T any] struct {
	mu     sync.Mutex
	items  itemHeap[T]
	notify chan struct{}
	closed bool
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{
		notify: make(chan struct{}, 1),
	}
}

// PushItem enqueues value. It never blocks.
func (pq *PriorityQueue[T]) PushItem(value T, priority int) error {
	pq.mu.Lock()
	if pq.closed {
		pq.mu.Unlock()
		return ErrPriorityQueueClosed
	}
	heap.Push(&pq.items, &PriorityItem[T]{Value: value, Priority: priority})
	pq.mu.Unlock()

	pq.wake()
	return nil
}

func (pq *PriorityQueue[T]) wake() {
	select {
	case pq.notify <- struct{}{}:
	default:
	}
}

// PopItem blocks until an item is available, the queue is closed and
// drained, or ctx is done.
func (pq *PriorityQueue[T]) PopItem(ctx context.Context) (T, error) {
	var zero T
	for {
		pq.mu.Lock()
		if pq.items.Len() > 0 {
			item := heap.Pop(&pq.items).(*PriorityItem[T])
			remaining := pq.items.Len()
			pq.mu.Unlock()
			if remaining > 0 {
				pq.wake()
			}
			return item.Value, nil
		}
		if pq.closed {
			pq.mu.Unlock()
			// Cascade the wakeup to any other blocked waiter.
			pq.wake()
			return zero, ErrPriorityQueueClosed
		}
		pq.mu.Unlock()

		select {
		case <-pq.notify:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close stops further pushes. Queued items can still be popped.
func (pq *PriorityQueue[T]) Close() {
	pq.mu.Lock()
	pq.closed = true
	pq.mu.Unlock()

	pq.wake()
}

func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.items.Len()
}

type itemHeap[T any] []*PriorityItem[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool { return h[i].Priority > h[j].Priority }

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x interface{}) {
	item := x.(*PriorityItem[T])
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap[T]) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
