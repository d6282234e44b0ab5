package kv

import (
	"context"

	"tally/internal/cache"
)

// ReferenceKeys are the keys safe to cache when other processes write the
// same backing store: data only seeded, never read-modify-written by a pass.
var ReferenceKeys = []string{KeyCategories}

// Cached is a read-through, write-through cache in front of a Store. Only
// the keys it is built with are cached; every other key goes straight to
// the inner store. Absent keys are not cached.
type Cached struct {
	inner Store
	cache cache.Cache[[]byte]
	keys  map[string]bool
}

var _ Store = (*Cached)(nil)

func NewCached(inner Store, c cache.Cache[[]byte], keys ...string) *Cached {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return &Cached{inner: inner, cache: c, keys: set}
}

func (c *Cached) Read(ctx context.Context, key string) ([]byte, bool, error) {
	if !c.keys[key] {
		return c.inner.Read(ctx, key)
	}
	if v, ok := c.cache.Get(key); ok {
		return append([]byte(nil), v...), true, nil
	}
	v, found, err := c.inner.Read(ctx, key)
	if err != nil || !found {
		return v, found, err
	}
	c.cache.Set(key, append([]byte(nil), v...))
	return v, true, nil
}

func (c *Cached) Write(ctx context.Context, key string, value []byte) error {
	if !c.keys[key] {
		return c.inner.Write(ctx, key, value)
	}
	if err := c.inner.Write(ctx, key, value); err != nil {
		c.cache.Delete(key)
		return err
	}
	c.cache.Set(key, append([]byte(nil), value...))
	return nil
}

func (c *Cached) Delete(ctx context.Context, key string) error {
	if c.keys[key] {
		c.cache.Delete(key)
	}
	return c.inner.Delete(ctx, key)
}

func (c *Cached) Keys(ctx context.Context, prefix string) ([]string, error) {
	return c.inner.Keys(ctx, prefix)
}
