package stream

import (
	"sync"
	"time"
)

// Map projects every value through fn.
func Map[T, R any](s Stream[T], fn func(T) R) Stream[R] {
	return New(func(sink *Sink[R]) func() {
		up := s.SubscribeObserver(Observer[T]{
			Next:     func(v T) { sink.Next(fn(v)) },
			Complete: sink.Complete,
		})
		return up.Unsubscribe
	})
}

// Filter forwards only values for which keep returns true.
func Filter[T any](s Stream[T], keep func(T) bool) Stream[T] {
	return New(func(sink *Sink[T]) func() {
		up := s.SubscribeObserver(Observer[T]{
			Next: func(v T) {
				if keep(v) {
					sink.Next(v)
				}
			},
			Complete: sink.Complete,
		})
		return up.Unsubscribe
	})
}

// Distinct suppresses values equal to the previously forwarded one. Each
// subscription tracks its own last value. A nil eq uses Equal.
func Distinct[T any](s Stream[T], eq func(a, b T) bool) Stream[T] {
	if eq == nil {
		eq = Equal[T]
	}
	return New(func(sink *Sink[T]) func() {
		var (
			mu   sync.Mutex
			last T
			seen bool
		)
		up := s.SubscribeObserver(Observer[T]{
			Next: func(v T) {
				mu.Lock()
				if seen && eq(last, v) {
					mu.Unlock()
					return
				}
				last, seen = v, true
				mu.Unlock()
				sink.Next(v)
			},
			Complete: sink.Complete,
		})
		return up.Unsubscribe
	})
}

// StartWith emits the value produced by initial at subscription time, then
// forwards s.
func StartWith[T any](s Stream[T], initial func() T) Stream[T] {
	return New(func(sink *Sink[T]) func() {
		sink.Next(initial())
		if sink.Closed() {
			return nil
		}
		up := s.SubscribeObserver(Observer[T]{Next: sink.Next, Complete: sink.Complete})
		return up.Unsubscribe
	})
}

// Merge interleaves several streams; it completes when all of them have.
func Merge[T any](streams ...Stream[T]) Stream[T] {
	if len(streams) == 0 {
		return Empty[T]()
	}
	return New(func(sink *Sink[T]) func() {
		var (
			mu      sync.Mutex
			pending = len(streams)
			subs    = make([]Subscription, 0, len(streams))
		)
		done := func() {
			mu.Lock()
			pending--
			last := pending == 0
			mu.Unlock()
			if last {
				sink.Complete()
			}
		}
		for _, s := range streams {
			sub := s.SubscribeObserver(Observer[T]{Next: sink.Next, Complete: done})
			mu.Lock()
			subs = append(subs, sub)
			mu.Unlock()
		}
		return func() {
			mu.Lock()
			all := subs
			subs = nil
			mu.Unlock()
			for _, sub := range all {
				sub.Unsubscribe()
			}
		}
	})
}

// Tap calls fn for every value before forwarding it.
func Tap[T any](s Stream[T], fn func(T)) Stream[T] {
	return Map(s, func(v T) T {
		fn(v)
		return v
	})
}

// Debounce forwards a value only after d has passed without another value
// arriving; bursts collapse into their last value. A pending value is flushed
// when the source completes and dropped on unsubscribe.
func Debounce[T any](s Stream[T], d time.Duration) Stream[T] {
	return New(func(sink *Sink[T]) func() {
		var (
			mu      sync.Mutex
			timer   *time.Timer
			pending T
			has     bool
			gen     uint64
		)
		fire := func(g uint64) {
			mu.Lock()
			if g != gen || !has {
				mu.Unlock()
				return
			}
			v := pending
			has = false
			mu.Unlock()
			sink.Next(v)
		}
		up := s.SubscribeObserver(Observer[T]{
			Next: func(v T) {
				mu.Lock()
				pending, has = v, true
				gen++
				g := gen
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(d, func() { fire(g) })
				mu.Unlock()
			},
			Complete: func() {
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				v, flush := pending, has
				has = false
				gen++
				mu.Unlock()
				if flush {
					sink.Next(v)
				}
				sink.Complete()
			},
		})
		return func() {
			up.Unsubscribe()
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			has = false
			gen++
			mu.Unlock()
		}
	})
}
