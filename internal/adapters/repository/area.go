package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/internal/domain/schema"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
)

// Name identifies a storage area.
type Name string

// Supported areas.
const (
	LocalStorage   Name = "localStorage"
	SessionStorage Name = "sessionStorage"
	MemoryStorage  Name = "memoryStorage"
)

// Names lists every supported area.
var Names = []Name{LocalStorage, SessionStorage, MemoryStorage}

// ParseName resolves an area name.
func ParseName(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedStorage, s)
}

// Publisher announces storage mutations to the other contexts of the origin.
type Publisher interface {
	Publish(ctx context.Context, ev model.StorageEvent) error
}

// Area is one named backend seen from one context. None of its methods
// return errors: failures are logged and reads report "absent".
type Area struct {
	name      Name
	namespace string
	origin    string
	backend   Backend
	publisher Publisher
	logger    logger.Logger
	now       func() time.Time
}

// NewArea binds backend to name. Without WithPublisher the area stays local
// to its context.
func NewArea(name Name, backend Backend, opts ...AreaOption) *Area {
	a := &Area{
		name:    name,
		backend: backend,
		logger:  logger.GetOr(logger.Nop()),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("WebStorage").Named(string(name))
	return a
}

// Name returns the area name.
func (a *Area) Name() Name { return a.name }

// Namespace returns the namespace carried on published events.
func (a *Area) Namespace() string { return a.namespace }

// Backend returns the underlying backend.
func (a *Area) Backend() Backend { return a.backend }

func (a *Area) observe(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		metrics.RecordErrorByComponent("storage", op)
	}
	metrics.RecordStorageOp(string(a.name), op, result, time.Since(start))
	if mb, ok := a.backend.(*MemoryBackend); ok && op != "get" {
		metrics.UpdateStorageAreaSize(string(a.name), mb.Len())
	}
}

// Get returns the raw stored value. Backend errors are logged and reported
// as absent.
func (a *Area) Get(ctx context.Context, key string) (string, bool) {
	start := time.Now()
	v, ok, err := a.backend.Get(ctx, key)
	a.observe("get", start, err)
	if err != nil {
		a.logger.Error(ctx, "getItem", logger.String("key", key), logger.Error(err))
		return "", false
	}
	return v, ok
}

// Set serializes value as JSON and stores it. A value that cannot be
// serialized is logged and the write is skipped.
func (a *Area) Set(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		metrics.RecordStorageWriteSkipped(string(a.name))
		a.logger.Error(ctx, "setItem", logger.String("key", key), logger.Error(err))
		return
	}
	a.SetRaw(ctx, key, string(raw))
}

// SetRaw stores an already serialized value.
func (a *Area) SetRaw(ctx context.Context, key, raw string) {
	start := time.Now()
	old, had, err := a.backend.Set(ctx, key, raw)
	a.observe("set", start, err)
	if err != nil {
		a.logger.Error(ctx, "setItem", logger.String("key", key), logger.Error(err))
		return
	}
	a.logger.Debug(ctx, "setItem", logger.String("key", key))
	if had && old == raw {
		return
	}
	ev := a.event(&key, &raw, nil)
	if had {
		ev.OldValue = &old
	}
	a.publish(ctx, ev)
}

// Remove deletes key.
func (a *Area) Remove(ctx context.Context, key string) {
	start := time.Now()
	old, had, err := a.backend.Remove(ctx, key)
	a.observe("remove", start, err)
	if err != nil {
		a.logger.Error(ctx, "removeItem", logger.String("key", key), logger.Error(err))
		return
	}
	a.logger.Debug(ctx, "removeItem", logger.String("key", key))
	if !had {
		return
	}
	a.publish(ctx, a.event(&key, nil, &old))
}

// Clear deletes every key of the area.
func (a *Area) Clear(ctx context.Context) {
	start := time.Now()
	n, err := a.backend.Clear(ctx)
	a.observe("clear", start, err)
	if err != nil {
		a.logger.Error(ctx, "clear", logger.Error(err))
		return
	}
	a.logger.Debug(ctx, "clear", logger.Int("removed", n))
	if n == 0 {
		return
	}
	a.publish(ctx, a.event(nil, nil, nil))
}

func (a *Area) event(key, newValue, oldValue *string) model.StorageEvent {
	return model.StorageEvent{
		ID:        uuid.NewString(),
		Area:      string(a.name),
		Namespace: a.namespace,
		Key:       key,
		NewValue:  newValue,
		OldValue:  oldValue,
		Origin:    a.origin,
		At:        a.now(),
	}
}

func (a *Area) publish(ctx context.Context, ev model.StorageEvent) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, ev); err != nil {
		metrics.RecordNotificationDropped("publish_error")
		a.logger.Error(ctx, "publish", logger.String("key", ev.KeyString()), logger.Error(err))
	}
}

// Item is a decoded stored value. Valid is false when the key was absent or
// the record failed to decode or validate.
type Item[T any] struct {
	Value T
	Valid bool
}

// Decode parses raw with s, logging and counting failures against area.
func Decode[T any](ctx context.Context, a *Area, key, raw string, s schema.Schema[T]) Item[T] {
	v, err := s.Parse([]byte(raw))
	if err != nil {
		reason := "schema"
		if errors.Is(err, schema.ErrMalformed) {
			reason = "malformed"
		}
		metrics.RecordStorageDecodeFailure(string(a.name), reason)
		a.logger.Error(ctx, "getItem", logger.String("key", key), logger.Error(err))
		return Item[T]{}
	}
	return Item[T]{Value: v, Valid: true}
}

// GetItem reads key and validates it with s. Absent, unreadable or invalid
// records all yield ok == false.
func GetItem[T any](ctx context.Context, a *Area, key string, s schema.Schema[T]) (T, bool) {
	raw, ok := a.Get(ctx, key)
	if !ok {
		var zero T
		return zero, false
	}
	it := Decode(ctx, a, key, raw, s)
	return it.Value, it.Valid
}
