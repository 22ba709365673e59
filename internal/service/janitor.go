package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/weathervane/weathervane/internal/adapter/otel"
	"github.com/weathervane/weathervane/internal/adapter/ws"
	"github.com/weathervane/weathervane/internal/config"
	"github.com/weathervane/weathervane/internal/domain/cache"
	"github.com/weathervane/weathervane/internal/port/broadcast"
	"github.com/weathervane/weathervane/internal/port/store"
)

// JanitorService runs scheduled maintenance sweeps over the durable tier:
// expired entries first, then stale-and-cold entries, then a hard count cap.
// Every run is recorded in the bounded sweep log.
type JanitorService struct {
	cfg      config.Janitor
	schedule cache.Schedule
	durable  store.Durable
	sweepLog store.SweepLog
	hub      broadcast.Broadcaster
	metrics  *otel.Metrics
	now      func() time.Time
}

// NewJanitorService creates the janitor. The schedule expression is parsed
// eagerly so a bad config fails at startup, not at 3 AM.
func NewJanitorService(
	cfg config.Janitor,
	durable store.Durable,
	sweepLog store.SweepLog,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
) (*JanitorService, error) {
	sched, err := cache.ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse janitor schedule: %w", err)
	}
	return &JanitorService{
		cfg:      cfg,
		schedule: sched,
		durable:  durable,
		sweepLog: sweepLog,
		hub:      hub,
		metrics:  metrics,
		now:      time.Now,
	}, nil
}

// Start launches the sweep loop. It sleeps until the next scheduled slot,
// sweeps, and repeats until ctx is cancelled. Sweep failures are logged and
// the loop continues; a missed run is recovered by the next slot.
func (j *JanitorService) Start(ctx context.Context) {
	go func() {
		for {
			next := j.schedule.NextAfter(j.now())
			timer := time.NewTimer(time.Until(next))
			slog.Info("janitor scheduled", "next_run", next.Format(time.RFC3339))

			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if _, err := j.Sweep(ctx); err != nil {
					slog.Error("janitor sweep failed", "error", err)
				}
			}
		}
	}()
}

// Sweep runs all three maintenance rules once and records the result.
// Safe to call concurrently with the schedule loop; every rule is an
// unconditional delete-where, so overlapping runs only find less to do.
func (j *JanitorService) Sweep(ctx context.Context) (cache.SweepSummary, error) {
	runID := uuid.New().String()
	now := j.now()

	ctx, span := otel.StartSweepSpan(ctx, runID)
	defer span.End()

	var total int64

	expired, err := j.durable.DeleteExpired(ctx, now)
	if err != nil {
		return cache.SweepSummary{}, fmt.Errorf("delete expired: %w", err)
	}
	total += expired
	j.metrics.RecordSweep(ctx, "expired", expired)

	coldCutoff := now.Add(-time.Duration(j.cfg.ColdAgeDays) * 24 * time.Hour)
	cold, err := j.durable.DeleteStaleCold(ctx, coldCutoff, j.cfg.ColdMaxHits)
	if err != nil {
		return cache.SweepSummary{}, fmt.Errorf("delete stale-and-cold: %w", err)
	}
	total += cold
	j.metrics.RecordSweep(ctx, "stale_cold", cold)

	capped, err := j.durable.CapEntries(ctx, j.cfg.MaxEntries)
	if err != nil {
		return cache.SweepSummary{}, fmt.Errorf("cap entries: %w", err)
	}
	total += capped
	j.metrics.RecordSweep(ctx, "cap", capped)

	summary := cache.SweepSummary{
		ID:           runID,
		RunAt:        now,
		DeletedCount: int(total),
	}
	if err := j.sweepLog.RecordSweep(ctx, summary); err != nil {
		slog.Warn("record sweep failed", "run_id", runID, "error", err)
	}

	logCutoff := now.Add(-time.Duration(j.cfg.LogRetentionDays) * 24 * time.Hour)
	if pruned, err := j.sweepLog.PruneSweeps(ctx, logCutoff); err != nil {
		slog.Warn("prune sweep log failed", "error", err)
	} else if pruned > 0 {
		slog.Debug("pruned sweep log", "removed", pruned)
	}

	slog.Info("janitor sweep complete",
		"run_id", runID,
		"expired", expired,
		"stale_cold", cold,
		"capped", capped,
		"total", total,
	)
	if j.hub != nil {
		j.hub.BroadcastEvent(ctx, ws.EventJanitorSweep, ws.JanitorSweepEvent{
			RunID:        runID,
			DeletedCount: int(total),
			RunAt:        now,
		})
	}
	return summary, nil
}

// History returns the most recent sweep summaries, newest first.
func (j *JanitorService) History(ctx context.Context, limit int) ([]cache.SweepSummary, error) {
	return j.sweepLog.ListSweeps(ctx, limit)
}
