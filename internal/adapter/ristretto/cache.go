// Package ristretto implements the fast in-process cache tier using
// dgraph-io/ristretto.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache wraps a ristretto cache as the first (fastest) tier. The tier is
// optional: callers that fail to construct it run the chain without it.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a ristretto-backed tier. maxCostBytes is the maximum total
// size of cached payloads in bytes.
func New(maxCostBytes int64) (*Cache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Name identifies this tier in hit statistics.
func (c *Cache) Name() string { return "memory" }

// Get retrieves a payload and its remaining lifetime from the cache.
func (c *Cache) Get(_ context.Context, key string) (data []byte, remaining time.Duration, ok bool, err error) {
	val, found := c.c.Get(key)
	if !found {
		return nil, 0, false, nil
	}
	ttl, _ := c.c.GetTTL(key)
	return val, ttl, true, nil
}

// Set stores a payload with the given TTL. Cost is the payload byte length.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.c.SetWithTTL(key, value, int64(len(value)), ttl)
	return nil
}

// Delete removes a payload from the cache.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.c.Del(key)
	return nil
}

// Flush clears the whole in-process cache. The process owns it exclusively,
// so clearing everything covers the namespace.
func (c *Cache) Flush(_ context.Context) error {
	c.c.Clear()
	return nil
}

// Close shuts down the cache and releases resources.
func (c *Cache) Close() {
	c.c.Close()
}
