package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weathervane/weathervane/internal/domain/cache"
)

// Store implements the durable cache tier, the statistics ledger, and the
// sweep log on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const entryColumns = `key, value, location_fp, source_tag, size_bytes, hit_count, created_at, expires_at, last_accessed_at`

func scanEntry(row scannable) (*cache.Entry, error) {
	var e cache.Entry
	err := row.Scan(&e.Key, &e.Value, &e.Location, &e.SourceTag, &e.SizeBytes,
		&e.HitCount, &e.CreatedAt, &e.ExpiresAt, &e.LastAccessedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Upsert inserts or replaces the entry for its key. A replaced key gets a
// fresh created_at and zeroed hit count: it is a new observation.
func (s *Store) Upsert(ctx context.Context, e *cache.Entry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO weather_cache (key, value, location_fp, source_tag, size_bytes, created_at, expires_at, last_accessed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $6)
		 ON CONFLICT (key) DO UPDATE SET
		   value = EXCLUDED.value,
		   location_fp = EXCLUDED.location_fp,
		   source_tag = EXCLUDED.source_tag,
		   size_bytes = EXCLUDED.size_bytes,
		   hit_count = 0,
		   created_at = EXCLUDED.created_at,
		   expires_at = EXCLUDED.expires_at,
		   last_accessed_at = EXCLUDED.last_accessed_at`,
		e.Key, e.Value, e.Location, e.SourceTag, e.SizeBytes, e.CreatedAt, e.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert cache entry %s: %w", e.Key, err)
	}
	return nil
}

// Get returns the entry for key, respecting its nominal expiry.
func (s *Store) Get(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM weather_cache
		 WHERE key = $1 AND expires_at > NOW()`, key)
	e, err := scanEntry(row)
	if err != nil {
		return nil, notFoundWrap(err, "get cache entry %s", key)
	}
	return e, nil
}

// GetStale is the staleness-tolerant read path: entries up to maxAge old are
// served regardless of their nominal expiry.
func (s *Store) GetStale(ctx context.Context, key cache.Key, maxAge time.Duration) (*cache.Entry, error) {
	cutoff := time.Now().Add(-maxAge)
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM weather_cache
		 WHERE key = $1 AND created_at > $2`,
		key, cutoff)
	e, err := scanEntry(row)
	if err != nil {
		return nil, notFoundWrap(err, "get stale cache entry %s", key)
	}
	return e, nil
}

// LatestForLocation returns the freshest entry for a location fingerprint
// within maxAge, regardless of nominal expiry. Used by the fallback path
// when the current-hour key has no durable record.
func (s *Store) LatestForLocation(ctx context.Context, fp cache.LocationFingerprint, maxAge time.Duration) (*cache.Entry, error) {
	cutoff := time.Now().Add(-maxAge)
	row := s.pool.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM weather_cache
		 WHERE location_fp = $1 AND created_at > $2
		 ORDER BY created_at DESC LIMIT 1`,
		fp, cutoff)
	e, err := scanEntry(row)
	if err != nil {
		return nil, notFoundWrap(err, "latest entry for location %s", fp)
	}
	return e, nil
}

// RecordHit atomically increments hit_count and bumps last_accessed_at.
func (s *Store) RecordHit(ctx context.Context, key cache.Key) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE weather_cache SET hit_count = hit_count + 1, last_accessed_at = NOW()
		 WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("record hit %s: %w", key, err)
	}
	return nil
}

// Truncate deletes every cached entry in this service's namespace.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM weather_cache WHERE key LIKE $1`, cache.Namespace+"%")
	if err != nil {
		return fmt.Errorf("truncate cache: %w", err)
	}
	return nil
}

// DeleteExpired removes entries whose nominal expiry has passed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM weather_cache WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteStaleCold removes entries created before olderThan that never
// reached maxHits hits. Frequently reused entries survive the age cut.
func (s *Store) DeleteStaleCold(ctx context.Context, olderThan time.Time, maxHits int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM weather_cache WHERE created_at < $1 AND hit_count < $2`,
		olderThan, maxHits)
	if err != nil {
		return 0, fmt.Errorf("delete stale-cold: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CapEntries keeps only the `keep` most recently accessed entries.
func (s *Store) CapEntries(ctx context.Context, keep int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM weather_cache WHERE key NOT IN (
		   SELECT key FROM weather_cache ORDER BY last_accessed_at DESC LIMIT $1
		 )`, keep)
	if err != nil {
		return 0, fmt.Errorf("cap entries: %w", err)
	}
	return tag.RowsAffected(), nil
}

// EntryCount returns the number of cached entries in the namespace.
func (s *Store) EntryCount(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM weather_cache WHERE key LIKE $1`, cache.Namespace+"%").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}
