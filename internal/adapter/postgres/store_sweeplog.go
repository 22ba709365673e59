package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/weathervane/weathervane/internal/domain/cache"
)

// RecordSweep appends one janitor run summary to the sweep log.
func (s *Store) RecordSweep(ctx context.Context, sw cache.SweepSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sweep_log (id, run_at, deleted_count) VALUES ($1, $2, $3)`,
		sw.ID, sw.RunAt, sw.DeletedCount)
	if err != nil {
		return fmt.Errorf("record sweep: %w", err)
	}
	return nil
}

// ListSweeps returns the most recent sweep summaries, newest first.
func (s *Store) ListSweeps(ctx context.Context, limit int) ([]cache.SweepSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_at, deleted_count FROM sweep_log
		 ORDER BY run_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sweeps: %w", err)
	}
	defer rows.Close()

	var sweeps []cache.SweepSummary
	for rows.Next() {
		var sw cache.SweepSummary
		if err := rows.Scan(&sw.ID, &sw.RunAt, &sw.DeletedCount); err != nil {
			return nil, fmt.Errorf("scan sweep row: %w", err)
		}
		sweeps = append(sweeps, sw)
	}
	return sweeps, rows.Err()
}

// PruneSweeps drops summaries older than the cutoff, keeping the log bounded.
func (s *Store) PruneSweeps(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sweep_log WHERE run_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune sweeps: %w", err)
	}
	return tag.RowsAffected(), nil
}
