// Package reactive holds application state and notifies observers when the
// part of it they select changes. A container can be bound to a storage key
// so that every context of the origin converges on the same value.
package reactive

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/slipsync/internal/adapters/listener"
	"github.com/okian/slipsync/internal/adapters/repository"
	"github.com/okian/slipsync/internal/domain/schema"
	"github.com/okian/slipsync/pkg/logger"
	"github.com/okian/slipsync/pkg/metrics"
	"github.com/okian/slipsync/pkg/stream"
)

// Binding ties a container to a stored record.
type Binding[T any] struct {
	Area   repository.Name
	Key    string
	Schema schema.Schema[T]
}

// observer is the container's view of one live observation.
type observer[T any] interface {
	start(v T, version uint64)
	deliver(v T, version uint64)
	complete()
}

// task is a unit of delivery. A task with init set starts that observation;
// any other task delivers value at version to every observation.
type task[T any] struct {
	init    observer[T]
	value   T
	version uint64
}

// Container owns a value of type T.
//
// Every delivery runs on a single drain loop per container: callbacks never
// run concurrently with each other, each observation sees versions in
// increasing order, and an update issued from inside a callback is delivered
// after the current one.
type Container[T any] struct {
	name   string
	equal  func(a, b T) bool
	logger logger.Logger

	mu       sync.Mutex
	value    T
	version  uint64
	disposed bool
	nextID   uint64
	order    []uint64
	obs      map[uint64]observer[T]
	tasks    []task[T]
	draining bool

	area    *repository.Area
	key     string
	feed    stream.Subscription
	writeMu sync.Mutex
	written uint64
}

// New creates a container holding initial. With WithStorage the stored
// record, when present and valid, replaces initial and later changes made by
// other contexts are applied with sync disabled.
func New[T any](ctx context.Context, initial T, opts ...Option) (*Container[T], error) {
	cfg := config{name: "state", logger: logger.GetOr(logger.Nop())}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Container[T]{
		name:   cfg.name,
		equal:  stream.Equal[T],
		logger: cfg.logger.Named("ReactiveState").Named(cfg.name),
		value:  initial,
		obs:    make(map[uint64]observer[T]),
	}
	if cfg.equal != nil {
		eq, ok := cfg.equal.(func(a, b T) bool)
		if !ok {
			return nil, fmt.Errorf("%w: comparator for %T", ErrOptionType, initial)
		}
		c.equal = eq
	}
	if cfg.binding != nil {
		b, ok := cfg.binding.(Binding[T])
		if !ok {
			return nil, fmt.Errorf("%w: binding for %T", ErrOptionType, initial)
		}
		if err := c.bind(ctx, cfg.storage, cfg.listener, b); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Container[T]) bind(ctx context.Context, storage *repository.Storage, l *listener.Listener, b Binding[T]) error {
	if storage == nil || l == nil || b.Schema == nil || b.Key == "" {
		return fmt.Errorf("%w: storage binding for %q is incomplete", ErrInvalidBinding, c.name)
	}
	area, err := storage.From(b.Area)
	if err != nil {
		return fmt.Errorf("bind %q: %w", c.name, err)
	}
	bg := context.WithoutCancel(ctx)
	changes, err := listener.StorageItem(bg, l, b.Area, b.Key, b.Schema, true)
	if err != nil {
		return fmt.Errorf("bind %q: %w", c.name, err)
	}
	c.area, c.key = area, b.Key
	feed := changes.Subscribe(func(it repository.Item[T]) {
		if !it.Valid {
			return
		}
		c.Set(bg, it.Value, false)
	})
	c.mu.Lock()
	c.feed = feed
	c.mu.Unlock()

	// The feed is live before the read, so a write landing in between is
	// applied by the feed and the read, which may be older, is dropped.
	if v, ok := repository.GetItem(ctx, area, b.Key, b.Schema); ok {
		c.mu.Lock()
		if c.version == 0 {
			c.value = v
		}
		c.mu.Unlock()
	}
	c.logger.Debug(ctx, "syncWithStorage", logger.String("area", string(b.Area)), logger.String("key", b.Key))
	return nil
}

// Name returns the container name used in logs and metrics.
func (c *Container[T]) Name() string { return c.name }

// Value returns the current value.
func (c *Container[T]) Value() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Version counts applied updates.
func (c *Container[T]) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Disposed reports whether Dispose was called.
func (c *Container[T]) Disposed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disposed
}

// Update replaces the value with fn(current). fn runs under the container
// lock and must not call back into the container. A panicking fn is logged
// and leaves the value untouched. Nothing happens when the
// result equals the current value. Otherwise observers are notified and,
// when syncStore is set and the container is bound, the value is written to
// storage. Update reports whether the value changed.
//
// Notifications are delivered before Update returns unless another goroutine
// is already delivering for this container, in which case that goroutine
// delivers them in order.
func (c *Container[T]) Update(ctx context.Context, fn func(T) T, syncStore bool) bool {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		c.logger.Debug(ctx, "setState", logger.String("skipped", "disposed"))
		return false
	}
	next, ok := c.apply(ctx, fn)
	if !ok {
		c.mu.Unlock()
		return false
	}
	if c.equal(next, c.value) {
		c.mu.Unlock()
		metrics.RecordContainerNoop(c.name)
		return false
	}
	c.value = next
	c.version++
	version := c.version
	c.enqueue(task[T]{value: next, version: version})
	metrics.RecordContainerUpdate(c.name)
	c.logger.Debug(ctx, "setState", logger.Int64("version", int64(version)), logger.Bool("sync", syncStore))

	if syncStore && c.area != nil {
		c.persist(ctx, next, version)
	}
	return true
}

// apply runs fn on the current value. It must be called with c.mu held and
// still holds it on return, panic or not.
func (c *Container[T]) apply(ctx context.Context, fn func(T) T) (next T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("container", "updater_panic")
			c.logger.Error(ctx, "setState", logger.Any("panic", r))
			ok = false
		}
	}()
	return fn(c.value), true
}

// Set is Update with a constant.
func (c *Container[T]) Set(ctx context.Context, v T, syncStore bool) bool {
	return c.Update(ctx, func(T) T { return v }, syncStore)
}

// persist writes v unless a newer version was already written.
func (c *Container[T]) persist(ctx context.Context, v T, version uint64) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if version <= c.written {
		c.logger.Debug(ctx, "setItem", logger.String("skipped", "stale"), logger.Int64("version", int64(version)))
		return
	}
	c.written = version
	c.area.Set(ctx, c.key, v)
}

// enqueue appends t and drains the queue unless a drain is already running.
// It must be called with c.mu held and returns with it released.
func (c *Container[T]) enqueue(t task[T]) {
	c.tasks = append(c.tasks, t)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.tasks) > 0 {
		cur := c.tasks[0]
		c.tasks[0] = task[T]{}
		c.tasks = c.tasks[1:]
		var targets []observer[T]
		if cur.init == nil {
			targets = c.snapshot()
		} else {
			cur.value, cur.version = c.value, c.version
		}
		c.mu.Unlock()

		if cur.init != nil {
			c.safely(func() { cur.init.start(cur.value, cur.version) })
		}
		for _, o := range targets {
			c.safely(func() { o.deliver(cur.value, cur.version) })
		}

		c.mu.Lock()
	}
	c.tasks = nil
	c.draining = false
	c.mu.Unlock()
}

func (c *Container[T]) snapshot() []observer[T] {
	out := make([]observer[T], 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.obs[id])
	}
	return out
}

// safely runs an observer callback, logging a panic instead of unwinding the
// drain loop.
func (c *Container[T]) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("container", "observer_panic")
			c.logger.Error(context.Background(), "observer", logger.Any("panic", r))
		}
	}()
	fn()
}

func (c *Container[T]) attach(o observer[T]) (id uint64, ok bool) {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return 0, false
	}
	c.nextID++
	id = c.nextID
	c.order = append(c.order, id)
	c.obs[id] = o
	metrics.AddContainerObservations(c.name, 1)
	c.enqueue(task[T]{init: o})
	return id, true
}

func (c *Container[T]) detach(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.obs[id]; !ok {
		return
	}
	delete(c.obs, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i:i], c.order[i+1:]...)
			break
		}
	}
	metrics.AddContainerObservations(c.name, -1)
}

// Observations returns the number of live observations.
func (c *Container[T]) Observations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

// Dispose detaches the storage feed, completes every observation and makes
// later Observe calls fail with ErrDisposed. Idempotent.
func (c *Container[T]) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	live := c.snapshot()
	metrics.AddContainerObservations(c.name, -len(live))
	c.obs = make(map[uint64]observer[T])
	c.order = nil
	feed := c.feed
	c.feed = nil
	c.mu.Unlock()

	if feed != nil {
		feed.Unsubscribe()
	}
	for _, o := range live {
		o.complete()
	}
	c.logger.Debug(context.Background(), "destroy")
}

// Select returns sel applied to the current value without subscribing.
func Select[T, R any](c *Container[T], sel func(T) R) R {
	return sel(c.Value())
}

// Observe streams sel applied to the container value. Each subscription
// first receives the current projection and then every projection its
// comparator reports as different from the last one it received.
func Observe[T, R any](c *Container[T], sel func(T) R, opts ...ObserveOption[R]) (stream.Stream[R], error) {
	if c.Disposed() {
		return stream.Stream[R]{}, ErrDisposed
	}
	cfg := observeConfig[R]{equal: stream.Equal[R]}
	for _, opt := range opts {
		opt(&cfg)
	}
	return stream.New(func(sink *stream.Sink[R]) func() {
		o := &observation[T, R]{container: c.name, sel: sel, equal: cfg.equal, sink: sink}
		id, ok := c.attach(o)
		if !ok {
			sink.Complete()
			return nil
		}
		return func() { c.detach(id) }
	}), nil
}

// observation is one subscription to Observe. Its fields are only touched
// by the container's drain loop.
type observation[T, R any] struct {
	container string
	sel       func(T) R
	equal     func(a, b R) bool
	sink      *stream.Sink[R]

	started bool
	version uint64
	last    R
}

func (o *observation[T, R]) start(v T, version uint64) {
	o.started = true
	o.version = version
	o.last = o.sel(v)
	o.emit(o.last)
}

func (o *observation[T, R]) deliver(v T, version uint64) {
	if !o.started || version <= o.version {
		return
	}
	o.version = version
	r := o.sel(v)
	if o.equal(o.last, r) {
		return
	}
	o.last = r
	o.emit(r)
}

func (o *observation[T, R]) emit(r R) {
	if o.sink.Closed() {
		return
	}
	metrics.RecordContainerEmission(o.container)
	o.sink.Next(r)
}

func (o *observation[T, R]) complete() {
	o.sink.Complete()
}
