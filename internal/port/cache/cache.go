// Package cache defines the port interface for cache tiers.
package cache

import (
	"context"
	"time"
)

// Tier is one storage backend in the read-through chain.
type Tier interface {
	// Name identifies the tier in hit statistics and logs.
	Name() string
	// Get returns the value together with its remaining lifetime, so
	// callers repopulating faster tiers never extend an entry past its
	// expiry. Tiers that cannot report a lifetime return zero remaining.
	Get(ctx context.Context, key string) (value []byte, remaining time.Duration, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Flush removes every entry under this service's key namespace.
	Flush(ctx context.Context) error
}
