package eventbus

import "sync"

// Queue is a bounded FIFO that never blocks the producer. When full, Push
// evicts the oldest entry to make room, so the queue always holds the
// newest events.
type Queue[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	size    int
	dropped uint64

	// ready carries at most one wake-up for the consumer.
	ready chan struct{}
}

// NewQueue creates a queue holding at most capacity items.
//
// Parameters:
//   - capacity: maximum number of queued items; values below 1 become 1
//
// Returns:
//   - *Queue[T]: an empty queue
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		buf:   make([]T, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Push appends v, evicting the oldest item when the queue is full.
// It reports whether an item was evicted.
func (q *Queue[T]) Push(v T) (evicted bool) {
	q.mu.Lock()
	if q.size == len(q.buf) {
		var zero T
		q.buf[q.head] = zero
		q.head = (q.head + 1) % len(q.buf)
		q.size--
		q.dropped++
		evicted = true
	}
	q.buf[(q.head+q.size)%len(q.buf)] = v
	q.size++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted
}

// Pop removes and returns the oldest item.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.size == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	return v, true
}

// Ready receives a value after Push. Consumers drain with Pop until empty
// before waiting on Ready again.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return len(q.buf)
}

// Dropped returns how many items have been evicted since creation.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
