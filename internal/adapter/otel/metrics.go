// Package otel provides OpenTelemetry setup and instruments for Weathervane.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "weathervane"

// Metrics holds all Weathervane metric instruments.
type Metrics struct {
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	UpstreamFetches metric.Int64Counter
	FetchDuration   metric.Float64Histogram
	JanitorDeleted  metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.CacheHits, err = meter.Int64Counter("weathervane.cache.hits",
		metric.WithDescription("Cache hits by tier"))
	if err != nil {
		return nil, err
	}

	m.CacheMisses, err = meter.Int64Counter("weathervane.cache.misses",
		metric.WithDescription("Total cache misses"))
	if err != nil {
		return nil, err
	}

	m.UpstreamFetches, err = meter.Int64Counter("weathervane.upstream.fetches",
		metric.WithDescription("Upstream fetch attempts by result"))
	if err != nil {
		return nil, err
	}

	m.FetchDuration, err = meter.Float64Histogram("weathervane.upstream.fetch_duration_seconds",
		metric.WithDescription("Upstream fetch duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.JanitorDeleted, err = meter.Int64Counter("weathervane.janitor.deleted",
		metric.WithDescription("Entries deleted by janitor sweeps"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordHit counts a cache hit on the named tier.
func (m *Metrics) RecordHit(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordMiss counts a total cache miss.
func (m *Metrics) RecordMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

// RecordFetch counts an upstream fetch with its result and duration.
func (m *Metrics) RecordFetch(ctx context.Context, result string, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	m.FetchDuration.Record(ctx, seconds)
}

// RecordSweep counts janitor deletions by rule.
func (m *Metrics) RecordSweep(ctx context.Context, rule string, deleted int64) {
	if m == nil {
		return
	}
	m.JanitorDeleted.Add(ctx, deleted, metric.WithAttributes(attribute.String("rule", rule)))
}
