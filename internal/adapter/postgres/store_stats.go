package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/weathervane/weathervane/internal/domain/cache"
	"github.com/weathervane/weathervane/internal/port/store"
)

// The refresh checkpoint shares the cache_stats table with the hit/miss
// counters but is not part of the resettable ledger.
const counterLastRefresh = "last_refresh_unix"

// IncrCounter atomically adds delta to the named counter, creating it on
// first use.
func (s *Store) IncrCounter(ctx context.Context, name string, delta int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cache_stats (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = cache_stats.value + EXCLUDED.value`,
		name, delta)
	if err != nil {
		return fmt.Errorf("incr counter %s: %w", name, err)
	}
	return nil
}

// LoadStats reads the persisted counters into a stats snapshot.
func (s *Store) LoadStats(ctx context.Context) (cache.Stats, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, value FROM cache_stats`)
	if err != nil {
		return cache.Stats{}, fmt.Errorf("load stats: %w", err)
	}
	defer rows.Close()

	stats := cache.Stats{HitsByTier: make(map[string]int64)}
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return cache.Stats{}, fmt.Errorf("scan stats row: %w", err)
		}
		switch {
		case name == store.CounterHits:
			stats.TotalHits = value
		case name == store.CounterMisses:
			stats.TotalMisses = value
		case strings.HasPrefix(name, store.CounterTierPrefix):
			stats.HitsByTier[strings.TrimPrefix(name, store.CounterTierPrefix)] = value
		}
	}
	return stats, rows.Err()
}

// ResetStats zeroes the hit/miss ledger. The refresh checkpoint survives.
func (s *Store) ResetStats(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM cache_stats WHERE name <> $1`, counterLastRefresh)
	if err != nil {
		return fmt.Errorf("reset stats: %w", err)
	}
	return nil
}

// LastRefresh returns the persisted refresh checkpoint, or the zero time
// when none has been recorded yet.
func (s *Store) LastRefresh(ctx context.Context) (time.Time, error) {
	var unix int64
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM cache_stats WHERE name = $1`, counterLastRefresh).Scan(&unix)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("last refresh: %w", err)
	}
	return time.Unix(unix, 0).UTC(), nil
}

// SetLastRefresh persists the refresh checkpoint. Last writer wins; a
// concurrent redundant refresh is benign.
func (s *Store) SetLastRefresh(ctx context.Context, t time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cache_stats (name, value) VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`,
		counterLastRefresh, t.Unix())
	if err != nil {
		return fmt.Errorf("set last refresh: %w", err)
	}
	return nil
}
