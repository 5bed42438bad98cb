// Package repository is the key/value store adapter: named areas over
// pluggable backends, with schema-validated reads and change notifications.
package repository

import (
	"context"
	"sync"
)

// Backend is a raw string key/value store scoped to one namespace.
type Backend interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value and returns the previous value, if any.
	Set(ctx context.Context, key, value string) (old string, hadOld bool, err error)
	// Remove deletes key and returns the removed value, if any.
	Remove(ctx context.Context, key string) (old string, hadOld bool, err error)
	// Clear deletes every key and returns how many were removed.
	Clear(ctx context.Context) (int, error)
	// Kind names the implementation ("memory", "redis", "postgres").
	Kind() string
}

// MemoryBackend is a volatile map. It is safe for concurrent use and may be
// shared by several contexts in one process to stand in for a shared store.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]string
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string)}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, key, value string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.items[key]
	m.items[key] = value
	return old, ok, nil
}

// Remove implements Backend.
func (m *MemoryBackend) Remove(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.items[key]
	delete(m.items, key)
	return old, ok, nil
}

// Clear implements Backend.
func (m *MemoryBackend) Clear(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.items)
	m.items = make(map[string]string)
	return n, nil
}

// Len returns the number of stored keys.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Kind implements Backend.
func (m *MemoryBackend) Kind() string { return "memory" }
