// Package queue carries detection deliveries from their producers to the
// single consumer that applies them.
//
// Deliveries leave the queue in the order they entered it.
package queue

import (
	"context"
	"sync"

	"github.com/okian/smileboard/internal/domain/model"
	"github.com/okian/smileboard/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 256
)

// Delivery is the payload flowing through the queue.
type Delivery = model.Delivery

// Queue provides enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a delivery without blocking.
	// Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, d Delivery) bool

	// EnqueueWait adds a delivery, blocking while the queue is full.
	// Returns ErrClosed if the queue is or becomes closed, or ctx.Err().
	EnqueueWait(ctx context.Context, d Delivery) error

	// Dequeue returns a channel that will receive deliveries in order.
	// The channel is closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Delivery

	// Len returns the current number of queued deliveries.
	Len(ctx context.Context) int

	// Close stops accepting deliveries. Already queued deliveries remain
	// available to Dequeue.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan Delivery
	capacity int

	closing   chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex // write-held only while closing items
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		closing:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(q)
	}

	q.items = make(chan Delivery, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a delivery to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, d Delivery) bool { //nolint:gocritic // hugeParam: passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return false
	}

	select {
	case q.items <- d:
		q.enqueued()
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return false
	}
}

// EnqueueWait adds a delivery, waiting for room.
func (q *InMemoryQueue) EnqueueWait(ctx context.Context, d Delivery) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}

	select {
	case q.items <- d:
		q.enqueued()
		return nil
	case <-q.closing:
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError("context_cancelled")
		return ctx.Err()
	}
}

func (q *InMemoryQueue) enqueued() {
	metrics.RecordQueueEnqueue()
	q.observe(len(q.items))
}

func (q *InMemoryQueue) observe(size int) {
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Delivery {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for d := range q.items {
			select {
			case out <- d:
				metrics.RecordQueueDequeue()
				q.observe(len(q.items))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued deliveries.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.items)
	q.observe(size)
	return size
}

// Close stops accepting deliveries and wakes blocked producers.
func (q *InMemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.closing)

		q.mu.Lock()
		defer q.mu.Unlock()
		close(q.items)
		q.closed = true
	})
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
