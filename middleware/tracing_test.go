package middleware_test

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/gkouam/soulbondai-sub005/id"
	"github.com/gkouam/soulbondai-sub005/job"
	mw "github.com/gkouam/soulbondai-sub005/middleware"
)

func setupTestTracer() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:          id.NewJobID(),
		Type:        "chat.completion",
		UserID:      "user_123",
		Attempts:    2,
		MaxAttempts: 5,
	}
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func runSpan(t *testing.T, j *job.Job, handlerErr error) sdktrace.ReadOnlySpan {
	t.Helper()
	sr, tracer := setupTestTracer()
	err := mw.TracingWithTracer(tracer)(context.Background(), j, func(_ context.Context) error {
		return handlerErr
	})
	if !errors.Is(err, handlerErr) {
		t.Fatalf("error = %v, want %v", err, handlerErr)
	}
	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	return spans[0]
}

func TestTracing_Span(t *testing.T) {
	j := newTestJob()
	span := runSpan(t, j, nil)

	if span.Name() != "soulbond.job chat.completion" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.SpanKind() != trace.SpanKindConsumer {
		t.Errorf("span kind = %v", span.SpanKind())
	}
	if span.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", span.Status().Code)
	}

	attrs := spanAttrs(span)
	if attrs["soulbond.job.id"].AsString() != j.ID.String() {
		t.Errorf("job id attr = %q", attrs["soulbond.job.id"].AsString())
	}
	if attrs["soulbond.user_id"].AsString() != "user_123" {
		t.Errorf("user attr = %q", attrs["soulbond.user_id"].AsString())
	}
	if attrs["soulbond.job.attempt"].AsInt64() != 2 {
		t.Errorf("attempt attr = %d", attrs["soulbond.job.attempt"].AsInt64())
	}
	if attrs["soulbond.job.outcome"].AsString() != mw.OutcomeOK {
		t.Errorf("outcome attr = %q", attrs["soulbond.job.outcome"].AsString())
	}
	if _, ok := attrs["soulbond.job.replay_of"]; ok {
		t.Error("replay_of set on a fresh job")
	}
}

func TestTracing_Failures(t *testing.T) {
	tests := []struct {
		name       string
		attempts   int
		err        error
		wantStatus codes.Code
		outcome    string
	}{
		{"retryable", 2, errors.New("upstream 503"), codes.Unset, mw.OutcomeRetry},
		{"last attempt", 5, errors.New("upstream 503"), codes.Error, mw.OutcomeExhausted},
		{"permanent", 1, job.Permanent(errors.New("bad payload")), codes.Error, mw.OutcomePermanent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJob()
			j.Attempts = tt.attempts
			span := runSpan(t, j, tt.err)

			if span.Status().Code != tt.wantStatus {
				t.Errorf("status = %v, want %v", span.Status().Code, tt.wantStatus)
			}
			if got := spanAttrs(span)["soulbond.job.outcome"].AsString(); got != tt.outcome {
				t.Errorf("outcome = %q, want %q", got, tt.outcome)
			}
			var recorded bool
			for _, ev := range span.Events() {
				if ev.Name == "exception" {
					recorded = true
				}
			}
			if !recorded {
				t.Error("error not recorded on span")
			}
		})
	}
}

func TestTracing_ReplayLineage(t *testing.T) {
	j := newTestJob()
	j.ReplayOf = id.NewJobID()
	span := runSpan(t, j, nil)
	if got := spanAttrs(span)["soulbond.job.replay_of"].AsString(); got != j.ReplayOf.String() {
		t.Errorf("replay_of = %q, want %q", got, j.ReplayOf.String())
	}
}

func TestTracing_PropagatesContext(t *testing.T) {
	_, tracer := setupTestTracer()
	var inner trace.SpanContext
	_ = mw.TracingWithTracer(tracer)(context.Background(), newTestJob(), func(ctx context.Context) error {
		inner = trace.SpanContextFromContext(ctx)
		return nil
	})
	if !inner.IsValid() {
		t.Fatal("handler context carries no span")
	}
}

func TestTracing_DefaultNoopSafe(t *testing.T) {
	called := false
	err := mw.Tracing()(context.Background(), newTestJob(), func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}
