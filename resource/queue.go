package resource

import "sync"

// Queue is a FIFO that any goroutine may push to and a single consumer
// drains in batches.
//
// Drain hands back exactly what was queued when it was called; items pushed
// while the consumer walks the batch land in the next one. This keeps a
// tick bounded regardless of how fast producers run.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	spare []T
}

// Push appends v to the queue.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain removes and returns every queued item in FIFO order.
//
// The returned slice is only valid until the next Drain call.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	batch := q.items
	clear(q.spare)
	q.items = q.spare[:0]
	q.spare = batch
	q.mu.Unlock()
	return batch
}
