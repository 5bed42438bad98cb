package stream

import (
	"reflect"
	"sync"
)

// Equal compares with == when T is comparable and falls back to
// reflect.DeepEqual for slices, maps and funcs.
func Equal[T any](a, b T) bool {
	va, vb := any(a), any(b)
	ta := reflect.TypeOf(va)
	if ta != nil && ta.Comparable() && ta.Kind() != reflect.Interface {
		return va == vb
	}
	return reflect.DeepEqual(va, vb)
}

// Subject is a hot multicast source. Values are delivered in subscription
// order to the observers attached at the moment Next is called.
type Subject[T any] struct {
	mu        sync.Mutex
	next      uint64
	order     []uint64
	observers map[uint64]*Sink[T]
	completed bool
}

// NewSubject creates an empty subject.
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{observers: make(map[uint64]*Sink[T])}
}

// Stream exposes the subject as a Stream.
func (s *Subject[T]) Stream() Stream[T] {
	return New(func(sink *Sink[T]) func() {
		s.mu.Lock()
		if s.completed {
			s.mu.Unlock()
			sink.Complete()
			return nil
		}
		s.next++
		id := s.next
		s.order = append(s.order, id)
		s.observers[id] = sink
		s.mu.Unlock()
		return func() { s.remove(id) }
	})
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.observers[id]; !ok {
		return
	}
	delete(s.observers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *Subject[T]) snapshot() []*Sink[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Sink[T], 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.observers[id])
	}
	return out
}

// Next delivers v to every current observer. Callbacks run outside the lock.
func (s *Subject[T]) Next(v T) {
	for _, sink := range s.snapshot() {
		sink.Next(v)
	}
}

// Complete completes every observer; later subscribers complete immediately.
func (s *Subject[T]) Complete() {
	s.mu.Lock()
	if s.completed {
		s.mu.Unlock()
		return
	}
	s.completed = true
	s.mu.Unlock()
	for _, sink := range s.snapshot() {
		sink.Complete()
	}
}

// Len returns the number of attached observers.
func (s *Subject[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
