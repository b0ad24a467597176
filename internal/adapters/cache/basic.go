package cache

import "sync"

type basicCache[T any] struct {
	cache     map[string]T
	cacheLock sync.RWMutex
}

func (c *basicCache[T]) Lookup(key string) (T, bool) {
	c.cacheLock.RLock()
	defer c.cacheLock.RUnlock()

	data, ok := c.cache[key]
	return data, ok
}

func (c *basicCache[T]) Store(key string, data T) {
	c.cacheLock.Lock()
	defer c.cacheLock.Unlock()

	c.cache[key] = data
}

func (c *basicCache[T]) Len() int {
	c.cacheLock.RLock()
	defer c.cacheLock.RUnlock()

	return len(c.cache)
}

func NewBasicCache[T any]() *basicCache[T] {
	return &basicCache[T]{
		cache: make(map[string]T),
	}
}
