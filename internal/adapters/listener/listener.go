// Package listener turns ambient notifications (storage changes made by other
// contexts, custom events, errors, cross-window messages and input events)
// into typed, filtered streams.
package listener

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/okian/slipsync/internal/adapters/repository"
	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/domain/schema"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
	"github.com/okian/slipsync/pkg/stream"
)

// DefaultDebounce is the idle gap used by InputChanged and Changed when none
// is given.
const DefaultDebounce = 20 * time.Millisecond

// Listener owns the window target of one context.
type Listener struct {
	storage *repository.Storage
	window  *EventTarget
	logger  logger.Logger
}

// New creates a listener for the context that owns storage.
func New(storage *repository.Storage, opts ...Option) *Listener {
	l := &Listener{
		storage: storage,
		window:  NewEventTarget(),
		logger:  logger.GetOr(logger.Nop()),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.Named("ReactiveEventListener")
	return l
}

// Window returns the context-wide event target.
func (l *Listener) Window() *EventTarget { return l.window }

// Deliver dispatches a storage notification on the window. The dispatcher
// calls it for every event received from the transport.
func (l *Listener) Deliver(_ context.Context, ev model.StorageEvent) {
	l.window.DispatchEvent(StorageEvent{StorageEvent: ev})
}

// Dispatch dispatches ev on the window.
func (l *Listener) Dispatch(ev Event) {
	l.window.DispatchEvent(ev)
}

// StorageChanged streams mutations of area made by other contexts, limited to
// key when it is not empty. Only localStorage and sessionStorage carry
// notifications; other names fail with repository.ErrUnsupportedStorage.
func (l *Listener) StorageChanged(area repository.Name, key string) (stream.Stream[model.StorageEvent], error) {
	a, err := l.sharedArea(area)
	if err != nil {
		return stream.Stream[model.StorageEvent]{}, err
	}
	self := l.storage.ContextID()
	ns := a.Namespace()

	events := stream.Filter(FromEvent(l.window, TypeStorage), func(ev Event) bool {
		se, ok := ev.(StorageEvent)
		if !ok {
			return false
		}
		switch {
		case se.Area != string(area):
			return false
		case se.Namespace != ns:
			metrics.RecordNotificationFiltered("namespace")
			return false
		case se.Origin == self:
			metrics.RecordNotificationFiltered("own_origin")
			return false
		case key != "" && (se.Key == nil || *se.Key != key):
			return false
		}
		return true
	})
	return stream.Map(events, func(ev Event) model.StorageEvent {
		return ev.(StorageEvent).StorageEvent
	}), nil
}

func (l *Listener) sharedArea(area repository.Name) (*repository.Area, error) {
	if area != repository.LocalStorage && area != repository.SessionStorage {
		return nil, fmt.Errorf("%w: %q has no change notifications", repository.ErrUnsupportedStorage, area)
	}
	return l.storage.From(area)
}

// StorageItem streams the validated value of key in area. Unless
// skipInitial is set, the current stored value is emitted on subscription.
// A removed, malformed or invalid record yields an invalid item and the
// stream continues.
func StorageItem[T any](ctx context.Context, l *Listener, area repository.Name, key string, s schema.Schema[T], skipInitial bool) (stream.Stream[repository.Item[T]], error) {
	changes, err := l.StorageChanged(area, key)
	if err != nil {
		return stream.Stream[repository.Item[T]]{}, err
	}
	a, err := l.storage.From(area)
	if err != nil {
		return stream.Stream[repository.Item[T]]{}, err
	}
	items := stream.Map(changes, func(ev model.StorageEvent) repository.Item[T] {
		if ev.NewValue == nil {
			return repository.Item[T]{}
		}
		return repository.Decode(ctx, a, key, *ev.NewValue, s)
	})
	if skipInitial {
		return items, nil
	}
	return stream.StartWith(items, func() repository.Item[T] {
		v, ok := repository.GetItem(ctx, a, key, s)
		return repository.Item[T]{Value: v, Valid: ok}
	}), nil
}

// CustomPayload is a custom event with a typed detail.
type CustomPayload[T any] struct {
	Name   string
	Detail T
}

// CustomEvents streams custom events called name on target whose detail is a
// T. A nil target means the listener's window.
func CustomEvents[T any](l *Listener, name string, target *EventTarget) stream.Stream[CustomPayload[T]] {
	if target == nil {
		target = l.window
	}
	typed := stream.Filter(FromEvent(target, name), func(ev Event) bool {
		ce, ok := ev.(CustomEvent)
		if !ok {
			return false
		}
		_, ok = ce.Detail.(T)
		return ok
	})
	return stream.Map(typed, func(ev Event) CustomPayload[T] {
		ce := ev.(CustomEvent)
		l.logger.Debug(context.Background(), "listenToCustomEvent", logger.String("name", ce.Name))
		return CustomPayload[T]{Name: ce.Name, Detail: ce.Detail.(T)}
	})
}

// ErrorEvents streams error events dispatched on the window.
func (l *Listener) ErrorEvents() stream.Stream[ErrorEvent] {
	typed := stream.Filter(FromEvent(l.window, TypeError), func(ev Event) bool {
		_, ok := ev.(ErrorEvent)
		return ok
	})
	return stream.Map(typed, func(ev Event) ErrorEvent {
		ee := ev.(ErrorEvent)
		l.logger.Debug(context.Background(), "listenToErrorEvent", logger.String("message", ee.Message))
		return ee
	})
}

// MessagePayload is a cross-window message with typed data.
type MessagePayload[T any] struct {
	Origin string
	Data   T
}

// MessageEvents streams messages from allowedOrigins whose data is a T.
func MessageEvents[T any](l *Listener, allowedOrigins ...string) stream.Stream[MessagePayload[T]] {
	allowed := slices.Clone(allowedOrigins)
	typed := stream.Filter(FromEvent(l.window, TypeMessage), func(ev Event) bool {
		me, ok := ev.(MessageEvent)
		if !ok || !slices.Contains(allowed, me.Origin) {
			return false
		}
		_, ok = me.Data.(T)
		return ok
	})
	return stream.Map(typed, func(ev Event) MessagePayload[T] {
		me := ev.(MessageEvent)
		l.logger.Debug(context.Background(), "listenToMessageEvent", logger.String("origin", me.Origin))
		return MessagePayload[T]{Origin: me.Origin, Data: me.Data.(T)}
	})
}

// InputChanged streams input events of el, keeping only the last event of
// every burst separated by less than debounce. Zero uses DefaultDebounce.
func (l *Listener) InputChanged(el *EventTarget, debounce time.Duration) stream.Stream[Event] {
	return l.debounced(el, TypeInput, debounce, "listenToInputEvent")
}

// Changed is InputChanged for change events.
func (l *Listener) Changed(el *EventTarget, debounce time.Duration) stream.Stream[Event] {
	return l.debounced(el, TypeChange, debounce, "listenToChangeEvent")
}

func (l *Listener) debounced(el *EventTarget, typ string, d time.Duration, action string) stream.Stream[Event] {
	if d <= 0 {
		d = DefaultDebounce
	}
	return stream.Tap(stream.Debounce(FromEvent(el, typ), d), func(Event) {
		l.logger.Debug(context.Background(), action)
	})
}
