// Package cache provides the loading caches behind a unit of work's
// identity map.
//
// Loads are not serialized: two goroutines missing the same key may both
// run the loader. Publication is atomic and the first value stored wins;
// later callers receive the published value and their own result is
// discarded.
package cache

import (
	"sync"
)

// Loader computes the value for key on a cache miss. found is false when
// the key has no value; nothing is cached in that case.
type Loader[K comparable, V any] func(key K) (value V, found bool, err error)

// Cache is a loading cache.
type Cache[K comparable, V any] interface {
	// Get returns the cached value for key, running load on a miss.
	Get(key K, load Loader[K, V]) (V, bool, error)

	// Peek returns the cached value without loading.
	Peek(key K) (V, bool)

	// PutIfAbsent publishes v unless key already has a value. It returns
	// the value now cached and whether v was the one stored.
	PutIfAbsent(key K, v V) (actual V, stored bool)

	// Remove drops key.
	Remove(key K)

	// Range calls fn for each cached entry until fn returns false.
	// The order is unspecified.
	Range(fn func(K, V) bool)

	// Len returns the number of cached entries.
	Len() int

	// Clear drops every entry without running eviction callbacks.
	Clear()
}

// Map is an unbounded Cache.
type Map[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
}

var _ Cache[string, int] = (*Map[string, int])(nil)

// NewMap returns an empty unbounded cache.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{entries: make(map[K]V)}
}

func (m *Map[K, V]) Get(key K, load Loader[K, V]) (V, bool, error) {
	if v, ok := m.Peek(key); ok {
		return v, true, nil
	}
	v, found, err := load(key)
	if err != nil || !found {
		var zero V
		return zero, false, err
	}
	actual, _ := m.PutIfAbsent(key, v)
	return actual, true, nil
}

func (m *Map[K, V]) Peek(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

func (m *Map[K, V]) PutIfAbsent(key K, v V) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[key]; ok {
		return existing, false
	}
	m.entries[key] = v
	return v, true
}

func (m *Map[K, V]) Remove(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *Map[K, V]) Range(fn func(K, V) bool) {
	m.mu.RLock()
	snapshot := make(map[K]V, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
}
