// Package dedupe drops storage notifications that arrive more than once.
//
// Transports may redeliver: a Redis reconnect replays nothing but a context
// subscribed to both a memory and a network transport sees every event
// twice. Notification ids are remembered in a bounded window.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultWindow is the number of ids remembered when no size is configured.
const DefaultWindow = 10_000

// Deduper records seen notification ids.
type Deduper interface {
	// SeenAndRecord reports whether id was already seen and records it
	// otherwise. Empty ids are never considered seen.
	SeenAndRecord(ctx context.Context, id string) bool
	// Unrecord forgets id so a later redelivery is accepted. Used when an
	// event was recorded but could not be queued.
	Unrecord(ctx context.Context, id string)
	Size() int64
}

// window keeps ids in insertion order in a ring. The oldest id is evicted
// when the ring is full. A size of zero or less keeps every id.
type window struct {
	mu      sync.Mutex
	maxSize int
	seen    map[string]int // id -> ring slot, -1 when unbounded
	ring    []string
	next    int
	size    atomic.Int64
}

var _ Deduper = (*window)(nil)

// NewInMemoryDeduper creates an in-memory deduper.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &window{maxSize: DefaultWindow}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]string, d.maxSize)
	}
	return d
}

// SeenAndRecord implements Deduper.
func (d *window) SeenAndRecord(_ context.Context, id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.ring == nil {
		d.seen[id] = -1
		d.size.Add(1)
		return false
	}
	if old := d.ring[d.next]; old != "" {
		delete(d.seen, old)
		d.size.Add(-1)
	}
	d.ring[d.next] = id
	d.seen[id] = d.next
	d.next = (d.next + 1) % len(d.ring)
	d.size.Add(1)
	return false
}

// Unrecord implements Deduper. The freed slot stays empty until the ring
// wraps around to it.
func (d *window) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	if slot >= 0 {
		d.ring[slot] = ""
	}
	d.size.Add(-1)
}

// Size implements Deduper.
func (d *window) Size() int64 {
	return d.size.Load()
}
