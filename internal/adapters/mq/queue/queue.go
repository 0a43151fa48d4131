// Package queue holds pending metric updates between flush ticks.
//
// The queue is a bounded FIFO: Enqueue never blocks, Drain hands the whole
// backlog to the flusher in enqueue order.
package queue

import (
	"context"
	"sync"

	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/pkg/metrics"
)

const defaultQueueCapacity = 10_000

// Update is the payload type flowing through the queue.
type Update = model.PendingUpdate

// Queue provides non-blocking enqueue and batch dequeue semantics.
type Queue interface {
	// Enqueue appends an update. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, u Update) bool

	// Requeue puts a failed update back for the next drain. It ignores the
	// capacity bound but not Close.
	Requeue(ctx context.Context, u Update) bool

	// Drain removes and returns every queued update in FIFO order.
	Drain(ctx context.Context) []Update

	// Len returns the current number of queued updates.
	Len(ctx context.Context) int

	// Close stops accepting updates. Pending updates remain drainable.
	Close() error
}

// InMemoryQueue implements Queue with a mutex-guarded slice.
type InMemoryQueue struct {
	mu       sync.Mutex
	items    []Update
	capacity int
	closed   bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make([]Update, 0, min(q.capacity, 64))
	return q
}

// Enqueue adds an update to the tail of the queue.
func (q *InMemoryQueue) Enqueue(_ context.Context, u Update) bool { //nolint:gocritic // hugeParam: value semantics keep callers from aliasing queued updates
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordUpdateDropped("queue_closed")
		return false
	}
	if len(q.items) >= q.capacity {
		metrics.RecordUpdateDropped("queue_full")
		return false
	}
	q.items = append(q.items, u)
	return true
}

// Requeue adds a previously drained update back to the tail.
func (q *InMemoryQueue) Requeue(_ context.Context, u Update) bool { //nolint:gocritic // hugeParam: see Enqueue
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		metrics.RecordUpdateDropped("queue_closed")
		return false
	}
	q.items = append(q.items, u)
	return true
}

// Drain returns every queued update and empties the queue.
func (q *InMemoryQueue) Drain(_ context.Context) []Update {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]Update, 0, cap(out))
	return out
}

// Len returns the current number of queued updates.
func (q *InMemoryQueue) Len(_ context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the queue from accepting updates.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
