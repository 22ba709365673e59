package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "weathervane"

// StartFetchSpan starts a span for an upstream forecast fetch.
func StartFetchSpan(ctx context.Context, lat, lon float64, forced bool) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "upstream.fetch",
		trace.WithAttributes(
			attribute.Float64("weather.lat", lat),
			attribute.Float64("weather.lon", lon),
			attribute.Bool("weather.forced", forced),
		),
	)
}

// StartSweepSpan starts a span for a janitor sweep run.
func StartSweepSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "janitor.sweep",
		trace.WithAttributes(attribute.String("sweep.run_id", runID)),
	)
}
