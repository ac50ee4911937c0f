package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gkouam/soulbondai-sub005/job"
)

const tracerName = "github.com/gkouam/soulbondai-sub005/middleware"

// Tracing wraps each execution in a "soulbond.job <type>" span using the
// global TracerProvider.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer is Tracing with an explicit tracer.
//
// The span carries soulbond.job.id, soulbond.job.type, soulbond.user_id,
// soulbond.job.attempt and, for replays, soulbond.job.replay_of. It ends
// with soulbond.job.outcome set. Failures are recorded as errors; a
// retryable failure leaves the span status unset since the job is not done.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("soulbond.job.id", j.ID.String()),
			attribute.String("soulbond.job.type", j.Type),
			attribute.Int("soulbond.job.attempt", j.Attempts),
			attribute.Int("soulbond.job.max_attempts", j.MaxAttempts),
		}
		if j.UserID != "" {
			attrs = append(attrs, attribute.String("soulbond.user_id", j.UserID))
		}
		if !j.ReplayOf.IsNil() {
			attrs = append(attrs, attribute.String("soulbond.job.replay_of", j.ReplayOf.String()))
		}

		ctx, span := tracer.Start(ctx, "soulbond.job "+j.Type,
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		outcome := Outcome(j, err)
		span.SetAttributes(attribute.String("soulbond.job.outcome", outcome))

		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case terminal(outcome):
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			span.RecordError(err)
		}
		return err
	}
}
