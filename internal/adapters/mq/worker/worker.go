// Package worker drains the notification queue into the in-process
// listener, one event at a time.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/slipsync/internal/adapters/mq/queue"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
)

// Event is what the dispatcher reads off the queue.
type Event = queue.Event

// Queue defines how the dispatcher receives events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Sink consumes dispatched events; the listener implements it.
type Sink interface {
	Deliver(ctx context.Context, ev Event)
}

// Worker processes events until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// Dispatcher is the single consumer of the queue. Running exactly one keeps
// delivery in arrival order, which is the order observers rely on.
type Dispatcher struct {
	queue Queue
	sink  Sink
	name  string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

var _ Worker = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher with configuration options.
func NewDispatcher(q Queue, sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:    q,
		sink:     sink,
		name:     "dispatcher",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.GetOr(logger.Nop()),
	}

	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named(d.name)

	return d
}

// Run starts the dispatch loop.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)

	eventChan := d.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.shutdown:
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			d.dispatch(ctx, event)
		}
	}
}

// dispatch delivers one event; a panicking observer must not stop the loop.
func (d *Dispatcher) dispatch(ctx context.Context, event Event) { //nolint:gocritic // hugeParam: Event must be passed by value for channel semantics
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("dispatcher", "panic")
			d.logger.Error(ctx, "deliver",
				logger.String("eventID", event.ID),
				logger.Any("panic", r),
			)
		}
	}()
	if !event.At.IsZero() {
		metrics.RecordDispatchLatency(time.Since(event.At))
	}
	d.sink.Deliver(ctx, event)
}

// Shutdown gracefully stops the dispatcher.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	select {
	case <-d.shutdown:
	default:
		close(d.shutdown)
	}

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		d.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} { return d.done }
