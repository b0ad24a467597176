package cache

import (
	"github.com/jellydator/ttlcache/v3"
)

type ttlCache[T any] struct {
	cache *ttlcache.Cache[string, T]
}

func (c *ttlCache[T]) Lookup(key string) (T, bool) {
	item := c.cache.Get(key)
	if item == nil {
		var empty T
		return empty, false
	}
	return item.Value(), true
}

func (c *ttlCache[T]) Store(key string, data T) {
	c.cache.Set(key, data, ttlcache.NoTTL)
}

func (c *ttlCache[T]) Len() int {
	return c.cache.Len()
}

// NewTTLCache returns a ttlcache backed cache where entries never expire.
//
// The expiration janitor is not started since there is nothing to expire.
func NewTTLCache[T any]() *ttlCache[T] {
	resultCache := ttlcache.New[string, T](
		ttlcache.WithTTL[string, T](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, T](),
	)
	return &ttlCache[T]{cache: resultCache}
}
