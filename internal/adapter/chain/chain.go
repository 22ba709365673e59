// Package chain implements the ordered read-through cache chain.
package chain

import (
	"context"
	"log/slog"
	"time"

	"github.com/weathervane/weathervane/internal/port/cache"
)

// Chain queries tiers in priority order, short-circuiting on the first hit
// and repopulating faster tiers so subsequent reads are cheap
// (promote-on-read). Tier failures are logged and skipped: a broken tier
// degrades the chain, it never fails a read.
type Chain struct {
	tiers      []cache.Tier
	promoteTTL time.Duration
}

// New creates a chain over the given tiers, ordered fastest first.
// promoteTTL bounds how long promoted entries live in faster tiers.
func New(promoteTTL time.Duration, tiers ...cache.Tier) *Chain {
	return &Chain{tiers: tiers, promoteTTL: promoteTTL}
}

// Tiers returns the tier names in query order.
func (c *Chain) Tiers() []string {
	names := make([]string, len(c.tiers))
	for i, t := range c.tiers {
		names[i] = t.Name()
	}
	return names
}

// Get queries tiers in order and returns the first hit together with the
// name of the tier that served it. Earlier tiers are repopulated on a
// lower-tier hit, for the promote TTL or the entry's remaining lifetime,
// whichever ends first.
func (c *Chain) Get(ctx context.Context, key string) (data []byte, tier string, ok bool) {
	for i, t := range c.tiers {
		val, remaining, found, err := t.Get(ctx, key)
		if err != nil {
			slog.Warn("cache tier get failed", "tier", t.Name(), "error", err)
			continue
		}
		if !found {
			continue
		}

		ttl := c.promoteTTL
		if remaining > 0 && remaining < ttl {
			ttl = remaining
		}
		for _, upper := range c.tiers[:i] {
			if err := upper.Set(ctx, key, val, ttl); err != nil {
				slog.Warn("cache tier promote failed", "tier", upper.Name(), "error", err)
			}
		}
		return val, t.Name(), true
	}
	return nil, "", false
}

// Set writes through every tier. Failures are logged per tier; the write
// continues so the remaining tiers stay populated.
func (c *Chain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	for _, t := range c.tiers {
		if err := t.Set(ctx, key, value, ttl); err != nil {
			slog.Warn("cache tier set failed", "tier", t.Name(), "error", err)
		}
	}
}

// Delete removes the key from every tier.
func (c *Chain) Delete(ctx context.Context, key string) {
	for _, t := range c.tiers {
		if err := t.Delete(ctx, key); err != nil {
			slog.Warn("cache tier delete failed", "tier", t.Name(), "error", err)
		}
	}
}

// Flush clears every tier's namespace, fastest first so readers re-resolve
// downward during the wipe.
func (c *Chain) Flush(ctx context.Context) {
	for _, t := range c.tiers {
		if err := t.Flush(ctx); err != nil {
			slog.Warn("cache tier flush failed", "tier", t.Name(), "error", err)
		}
	}
}
