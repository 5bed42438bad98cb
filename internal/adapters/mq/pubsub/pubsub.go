// Package pubsub carries storage change notifications between the contexts
// of one origin.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/okian/slipsync/internal/domain/model"
	"github.com/okian/slipsync/pkg/metrics"
)

// Handler receives decoded notifications. It runs on the transport's
// goroutine and must not block.
type Handler func(model.StorageEvent)

// Transport publishes and receives storage events.
type Transport interface {
	Publish(ctx context.Context, ev model.StorageEvent) error
	// Subscribe registers handler until stop is called or ctx ends.
	Subscribe(ctx context.Context, handler Handler) (stop func(), err error)
	Name() string
}

func encode(ev model.StorageEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return payload, nil
}

func decode(payload []byte) (model.StorageEvent, error) {
	var ev model.StorageEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return model.StorageEvent{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return ev, nil
}

// MemoryTransport delivers synchronously to every subscriber in the
// process. Contexts sharing one MemoryTransport behave like tabs of one
// origin.
type MemoryTransport struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]Handler
}

var _ Transport = (*MemoryTransport)(nil)

// NewMemoryTransport creates an in-process transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{handlers: make(map[uint64]Handler)}
}

// Name implements Transport.
func (t *MemoryTransport) Name() string { return "memory" }

// Publish implements Transport. Events round-trip through JSON so
// subscribers never share pointers with the publisher.
func (t *MemoryTransport) Publish(_ context.Context, ev model.StorageEvent) error {
	payload, err := encode(ev)
	if err != nil {
		return err
	}
	t.mu.RLock()
	hs := make([]Handler, 0, len(t.handlers))
	for _, h := range t.handlers {
		hs = append(hs, h)
	}
	t.mu.RUnlock()

	metrics.RecordNotificationPublished(ev.Area, t.Name())
	for _, h := range hs {
		out, err := decode(payload)
		if err != nil {
			return err
		}
		metrics.RecordNotificationReceived(t.Name())
		h(out)
	}
	return nil
}

// Subscribe implements Transport.
func (t *MemoryTransport) Subscribe(ctx context.Context, handler Handler) (func(), error) {
	t.mu.Lock()
	t.next++
	id := t.next
	t.handlers[id] = handler
	t.mu.Unlock()

	var once sync.Once
	stopped := make(chan struct{})
	stop := func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.handlers, id)
			t.mu.Unlock()
			close(stopped)
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				stop()
			case <-stopped:
			}
		}()
	}
	return stop, nil
}

// Subscribers returns the number of live subscriptions.
func (t *MemoryTransport) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}
