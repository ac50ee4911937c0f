package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/gkouam/soulbondai-sub005/job"
)

const meterName = "github.com/gkouam/soulbondai-sub005/middleware"

// Metrics records per-type execution metrics with the global OTel
// MeterProvider. Without one it is a pass-through.
//
// Instruments:
//   - soulbond.job.duration (Float64Histogram, seconds) by job_type, outcome
//   - soulbond.job.executions (Int64Counter) by job_type, outcome
//   - soulbond.job.attempt (Int64Histogram) by job_type: which attempt ran
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// Instrument errors fall back to noop instruments.
	duration, _ := meter.Float64Histogram("soulbond.job.duration",
		metric.WithDescription("Job handler execution time"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter("soulbond.job.executions",
		metric.WithDescription("Job handler executions by outcome"),
		metric.WithUnit("{execution}"),
	)
	attempt, _ := meter.Int64Histogram("soulbond.job.attempt",
		metric.WithDescription("Attempt number of each execution"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 4, 5, 8, 13),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		typeAttr := attribute.String("job_type", j.Type)
		attempt.Record(ctx, int64(j.Attempts), metric.WithAttributes(typeAttr))

		start := time.Now()
		err := next(ctx)

		attrs := metric.WithAttributes(typeAttr, attribute.String("outcome", Outcome(j, err)))
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		executions.Add(ctx, 1, attrs)
		return err
	}
}
