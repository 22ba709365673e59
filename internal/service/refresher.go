package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/weathervane/weathervane/internal/port/store"
)

// Refresher proactively re-fetches the forecast so the cache stays warm and
// clients rarely pay upstream latency. It wakes every hour and refreshes only
// when the persisted checkpoint says the configured interval has elapsed, so
// multiple replicas sharing one ledger do not stampede upstream.
type Refresher struct {
	weather  *WeatherService
	ledger   store.StatsLedger
	interval time.Duration
	tick     time.Duration
	now      func() time.Time
}

// NewRefresher creates a refresher waking hourly with the given refresh
// interval.
func NewRefresher(weather *WeatherService, ledger store.StatsLedger, intervalHours int) *Refresher {
	return &Refresher{
		weather:  weather,
		ledger:   ledger,
		interval: time.Duration(intervalHours) * time.Hour,
		tick:     time.Hour,
		now:      time.Now,
	}
}

// Start launches the refresh loop until ctx is cancelled. An immediate first
// pass warms the cache at startup.
func (r *Refresher) Start(ctx context.Context) {
	go func() {
		if err := r.RunOnce(ctx); err != nil {
			slog.Warn("initial proactive refresh failed", "error", err)
		}

		ticker := time.NewTicker(r.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := r.RunOnce(ctx); err != nil {
					slog.Warn("proactive refresh failed", "error", err)
				}
			}
		}
	}()
}

// RunOnce refreshes if the interval has elapsed since the last recorded
// refresh. A skipped pass is not an error.
func (r *Refresher) RunOnce(ctx context.Context) error {
	last, err := r.ledger.LastRefresh(ctx)
	if err != nil {
		return err
	}

	now := r.now()
	if !last.IsZero() && now.Sub(last) < r.interval {
		slog.Debug("proactive refresh skipped", "last_refresh", last.Format(time.RFC3339))
		return nil
	}

	_, err = r.weather.Get(ctx, true)
	return err
}
