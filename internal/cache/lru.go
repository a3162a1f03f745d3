package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a size-bounded Cache. When it is full, publishing a new entry
// evicts the least recently used one and reports it to the eviction
// callback.
type LRU[K comparable, V any] struct {
	cache *lru.Cache[K, V]

	// clearing suppresses the eviction callback during Clear and Remove.
	clearing atomic.Bool
}

var _ Cache[string, int] = (*LRU[string, int])(nil)

// NewLRU returns a cache holding at most size entries. onEvict, if not
// nil, is called for every entry pushed out by capacity.
func NewLRU[K comparable, V any](size int, onEvict func(K, V)) (*LRU[K, V], error) {
	c := &LRU[K, V]{}
	inner, err := lru.NewWithEvict[K, V](size, func(k K, v V) {
		if onEvict != nil && !c.clearing.Load() {
			onEvict(k, v)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("lru cache: %w", err)
	}
	c.cache = inner
	return c, nil
}

func (c *LRU[K, V]) Get(key K, load Loader[K, V]) (V, bool, error) {
	if v, ok := c.cache.Get(key); ok {
		return v, true, nil
	}
	v, found, err := load(key)
	if err != nil || !found {
		var zero V
		return zero, false, err
	}
	actual, _ := c.PutIfAbsent(key, v)
	return actual, true, nil
}

func (c *LRU[K, V]) Peek(key K) (V, bool) {
	return c.cache.Peek(key)
}

func (c *LRU[K, V]) PutIfAbsent(key K, v V) (V, bool) {
	previous, found, _ := c.cache.PeekOrAdd(key, v)
	if found {
		return previous, false
	}
	return v, true
}

func (c *LRU[K, V]) Remove(key K) {
	c.clearing.Store(true)
	defer c.clearing.Store(false)
	c.cache.Remove(key)
}

func (c *LRU[K, V]) Range(fn func(K, V) bool) {
	for _, k := range c.cache.Keys() {
		v, ok := c.cache.Peek(k)
		if !ok {
			continue
		}
		if !fn(k, v) {
			return
		}
	}
}

func (c *LRU[K, V]) Len() int {
	return c.cache.Len()
}

func (c *LRU[K, V]) Clear() {
	c.clearing.Store(true)
	defer c.clearing.Store(false)
	c.cache.Purge()
}
