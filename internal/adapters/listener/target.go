package listener

import (
	"sync"
	"sync/atomic"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/pkg/stream"
)

// Event is anything dispatched on an EventTarget.
type Event interface {
	Type() string
}

// Ambient event types.
const (
	TypeStorage = "storage"
	TypeInput   = "input"
	TypeChange  = "change"
	TypeError   = "error"
	TypeMessage = "message"
)

// StorageEvent is a storage mutation made by another context.
type StorageEvent struct {
	model.StorageEvent
}

// Type implements Event.
func (StorageEvent) Type() string { return TypeStorage }

// CustomEvent is an application-dispatched event carrying Detail.
type CustomEvent struct {
	Name   string
	Detail any
}

// Type implements Event.
func (e CustomEvent) Type() string { return e.Name }

// InputEvent reports an edit of an input element.
type InputEvent struct {
	Value string
}

// Type implements Event.
func (InputEvent) Type() string { return TypeInput }

// ChangeEvent reports a committed value change of an element.
type ChangeEvent struct {
	Value string
}

// Type implements Event.
func (ChangeEvent) Type() string { return TypeChange }

// ErrorEvent reports an uncaught error.
type ErrorEvent struct {
	Message string
	Err     error
}

// Type implements Event.
func (ErrorEvent) Type() string { return TypeError }

// MessageEvent is a cross-window message.
type MessageEvent struct {
	Origin string
	Data   any
}

// Type implements Event.
func (MessageEvent) Type() string { return TypeMessage }

type registration struct {
	id      uint64
	fn      func(Event)
	removed atomic.Bool
}

// EventTarget dispatches events to listeners registered per type, in
// registration order. It stands in for the window, the document or an
// element.
type EventTarget struct {
	mu        sync.Mutex
	next      uint64
	listeners map[string][]*registration
}

// NewEventTarget creates a target with no listeners.
func NewEventTarget() *EventTarget {
	return &EventTarget{listeners: make(map[string][]*registration)}
}

// AddEventListener registers fn for typ and returns its removal func. Once
// the removal func returns, fn is never called again.
func (t *EventTarget) AddEventListener(typ string, fn func(Event)) (remove func()) {
	t.mu.Lock()
	t.next++
	r := &registration{id: t.next, fn: fn}
	t.listeners[typ] = append(t.listeners[typ], r)
	t.mu.Unlock()

	return func() {
		if r.removed.Swap(true) {
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		list := t.listeners[typ]
		for i, cur := range list {
			if cur.id == r.id {
				t.listeners[typ] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		if len(t.listeners[typ]) == 0 {
			delete(t.listeners, typ)
		}
	}
}

// DispatchEvent calls every listener of ev's type synchronously.
func (t *EventTarget) DispatchEvent(ev Event) {
	t.mu.Lock()
	list := append([]*registration(nil), t.listeners[ev.Type()]...)
	t.mu.Unlock()
	for _, r := range list {
		if r.removed.Load() {
			continue
		}
		r.fn(ev)
	}
}

// ListenerCount returns how many listeners are registered for typ.
func (t *EventTarget) ListenerCount(typ string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners[typ])
}

// FromEvent streams every event of typ dispatched on t. Each subscription
// registers its own listener and removes it on unsubscribe.
func FromEvent(t *EventTarget, typ string) stream.Stream[Event] {
	return stream.New(func(sink *stream.Sink[Event]) func() {
		return t.AddEventListener(typ, sink.Next)
	})
}
