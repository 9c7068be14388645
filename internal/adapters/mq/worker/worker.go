// Package worker runs the single consumer that applies detection deliveries.
//
// Exactly one worker reads a queue, so deliveries are applied one at a time
// in the order they were enqueued.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/smileboard/internal/adapters/mq/queue"
	"github.com/okian/smileboard/pkg/logger"
)

// Delivery abstracts what the worker reads off the queue.
type Delivery = queue.Delivery

// Applier applies one delivery to session state.
type Applier interface {
	Apply(ctx context.Context, d Delivery) error
}

// Queue defines how the worker receives deliveries.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Delivery
}

// Worker consumes a queue.
type Worker interface {
	// Run processes deliveries until the queue is closed and drained or
	// ctx is canceled.
	Run(ctx context.Context)

	// Shutdown waits for Run to drain. On ctx expiry it returns an error
	// and Run keeps draining.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	applier Applier
	name    string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, applier Applier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		applier:  applier,
		name:     "worker",
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	// ends the dequeue goroutine however Run returns
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-ch:
			if !ok {
				w.logger.Debug(ctx, "queue drained")
				return
			}
			w.process(ctx, d)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown waits for Run to return. The queue must already be closed.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker still draining: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, d Delivery) { //nolint:gocritic // hugeParam: passed by value for channel semantics
	start := time.Now()
	if err := w.applier.Apply(ctx, d); err != nil {
		w.logger.Warn(ctx, "delivery not applied",
			logger.String("request_id", d.RequestID),
			logger.String("source", string(d.Source)),
			logger.Error(err),
		)
		return
	}
	w.logger.Debug(ctx, "delivery applied",
		logger.String("request_id", d.RequestID),
		logger.Duration("elapsed", time.Since(start)),
	)
}
