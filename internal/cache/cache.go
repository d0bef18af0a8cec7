// Package cache is a small injected cache boundary so business code never
// hardwires a particular backing store. The forecaster uses it for windowed
// prediction reads; tests plug in Nop.
package cache

import (
	"sync"
	"time"
)

// Cache is a get/set/expire key-value store.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string)
}

type item struct {
	value     any
	expiresAt time.Time
}

// Memory is an in-process Cache with per-key TTL.
type Memory struct {
	mu    sync.Mutex
	items map[string]item
	now   func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]item), now: time.Now}
}

func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !it.expiresAt.IsZero() && m.now().After(it.expiresAt) {
		delete(m.items, key)
		return nil, false
	}
	return it.value, true
}

// Set stores a value. A zero ttl means no expiry.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.items[key] = item{value: value, expiresAt: expiresAt}
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

// Nop is a Cache that stores nothing. Useful in tests and when caching is
// disabled.
type Nop struct{}

func (Nop) Get(string) (any, bool)         { return nil, false }
func (Nop) Set(string, any, time.Duration) {}
func (Nop) Delete(string)                  {}
