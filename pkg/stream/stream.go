// Package stream provides push-based streams with synchronous delivery and
// explicit cancellation.
//
// A Stream describes how to attach to a source. Every Subscribe call attaches
// a new observer; values are pushed by the producer on the producer's
// goroutine, nothing is buffered or replayed. Unsubscribe detaches the
// observer immediately: once it returns, no further callback for that
// subscription starts.
package stream

import (
	"sync"
	"sync/atomic"
)

// Observer receives values and, optionally, a completion signal.
type Observer[T any] struct {
	Next     func(T)
	Complete func()
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe detaches the observer and releases the producer. Idempotent.
	Unsubscribe()
	// Closed reports whether the subscription was unsubscribed or completed.
	Closed() bool
}

// Producer attaches to a source and pushes values into sink. The returned
// teardown (may be nil) is called exactly once when the subscription ends.
type Producer[T any] func(sink *Sink[T]) (teardown func())

// Stream is a subscribable description of a push source.
type Stream[T any] struct {
	produce Producer[T]
}

// New creates a stream from a producer.
func New[T any](produce Producer[T]) Stream[T] {
	return Stream[T]{produce: produce}
}

// Subscribe attaches next as the value callback.
func (s Stream[T]) Subscribe(next func(T)) Subscription {
	return s.SubscribeObserver(Observer[T]{Next: next})
}

// SubscribeObserver attaches a full observer.
func (s Stream[T]) SubscribeObserver(o Observer[T]) Subscription {
	sink := &Sink[T]{observer: o}
	if s.produce == nil {
		sink.Complete()
		return sink
	}
	sink.setTeardown(s.produce(sink))
	return sink
}

// Sink is the producer side of a single subscription.
type Sink[T any] struct {
	observer Observer[T]
	closed   atomic.Bool

	mu       sync.Mutex
	teardown func()
}

// Next pushes v to the observer unless the subscription is closed.
func (s *Sink[T]) Next(v T) {
	if s.closed.Load() {
		return
	}
	if s.observer.Next != nil {
		s.observer.Next(v)
	}
}

// Complete closes the subscription and signals completion to the observer.
func (s *Sink[T]) Complete() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.observer.Complete != nil {
		s.observer.Complete()
	}
	s.runTeardown()
}

// Unsubscribe implements Subscription.
func (s *Sink[T]) Unsubscribe() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.runTeardown()
}

// Closed implements Subscription.
func (s *Sink[T]) Closed() bool {
	return s.closed.Load()
}

func (s *Sink[T]) setTeardown(td func()) {
	s.mu.Lock()
	if s.closed.Load() {
		// Closed while the producer was still attaching.
		s.mu.Unlock()
		if td != nil {
			td()
		}
		return
	}
	s.teardown = td
	s.mu.Unlock()
}

func (s *Sink[T]) runTeardown() {
	s.mu.Lock()
	td := s.teardown
	s.teardown = nil
	s.mu.Unlock()
	if td != nil {
		td()
	}
}

// Empty returns a stream that completes immediately.
func Empty[T any]() Stream[T] {
	return New(func(sink *Sink[T]) func() {
		sink.Complete()
		return nil
	})
}

// Of returns a stream that emits values in order and completes.
func Of[T any](values ...T) Stream[T] {
	return New(func(sink *Sink[T]) func() {
		for _, v := range values {
			if sink.Closed() {
				return nil
			}
			sink.Next(v)
		}
		sink.Complete()
		return nil
	})
}
