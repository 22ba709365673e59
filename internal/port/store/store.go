// Package store defines the port interface for the durable record tier.
package store

import (
	"context"
	"time"

	"github.com/weathervane/weathervane/internal/domain/cache"
)

// Durable is the persistent record store backing the cache: the long-horizon
// fallback source, the statistics ledger, and the janitor's subject.
type Durable interface {
	// Upsert inserts or replaces the entry for its key. Called
	// unconditionally on every successful write-through so the durable tier
	// has complete history.
	Upsert(ctx context.Context, e *cache.Entry) error

	// Get returns the entry for key, respecting its nominal expiry.
	// Returns domain.ErrNotFound when absent or expired.
	Get(ctx context.Context, key cache.Key) (*cache.Entry, error)

	// GetStale is the staleness-tolerant read path: it accepts entries up to
	// maxAge old regardless of their nominal expiry. Returns
	// domain.ErrNotFound when absent or older than maxAge.
	GetStale(ctx context.Context, key cache.Key, maxAge time.Duration) (*cache.Entry, error)

	// LatestForLocation returns the newest entry for a location fingerprint
	// within maxAge, regardless of hour bucket. Used when the exact key has
	// rotated but an older bucket still holds usable data.
	LatestForLocation(ctx context.Context, fp cache.LocationFingerprint, maxAge time.Duration) (*cache.Entry, error)

	// RecordHit atomically increments hit_count and bumps last_accessed_at.
	RecordHit(ctx context.Context, key cache.Key) error

	// Truncate deletes every cached entry in this service's namespace.
	Truncate(ctx context.Context) error

	// Sweep rules, each an unconditional delete-where returning the number
	// of rows removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteStaleCold(ctx context.Context, olderThan time.Time, maxHits int) (int64, error)
	CapEntries(ctx context.Context, keep int) (int64, error)

	// EntryCount returns the number of cached entries in the namespace.
	EntryCount(ctx context.Context) (int64, error)
}

// Ledger counter names. Per-tier hit counters use CounterTierPrefix followed
// by the tier name.
const (
	CounterHits       = "hits_total"
	CounterMisses     = "misses_total"
	CounterTierPrefix = "hits:"
)

// StatsLedger persists the monotonic hit/miss counters and the refresh
// checkpoint. Best-effort: callers log and continue on failure.
type StatsLedger interface {
	IncrCounter(ctx context.Context, name string, delta int64) error
	LoadStats(ctx context.Context) (cache.Stats, error)
	ResetStats(ctx context.Context) error

	// Refresh checkpoint for the proactive update task's cooperative
	// rate-limit check.
	LastRefresh(ctx context.Context) (time.Time, error)
	SetLastRefresh(ctx context.Context, t time.Time) error
}

// SweepLog records janitor run summaries in a bounded history.
type SweepLog interface {
	RecordSweep(ctx context.Context, s cache.SweepSummary) error
	ListSweeps(ctx context.Context, limit int) ([]cache.SweepSummary, error)
	PruneSweeps(ctx context.Context, olderThan time.Time) (int64, error)
}
