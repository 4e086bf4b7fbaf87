package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xraph/herald"

// Tracer provides OpenTelemetry tracing for the broker.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a tracer from the global OpenTelemetry provider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartPublishSpan starts a span covering one publication.
func (t *Tracer) StartPublishSpan(ctx context.Context, eventName string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "herald.publish",
		trace.WithAttributes(attribute.String("herald.event", eventName)),
	)
}

// EndPublishSpan ends a publish span with the number of scheduled jobs.
func (t *Tracer) EndPublishSpan(span trace.Span, scheduled int, err error) {
	span.SetAttributes(attribute.Int("herald.jobs_scheduled", scheduled))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartJobSpan starts a span for one job attempt.
func (t *Tracer) StartJobSpan(ctx context.Context, jobID, kind, subscriptionID string, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "herald.job",
		trace.WithAttributes(
			attribute.String("herald.job_id", jobID),
			attribute.String("herald.job_kind", kind),
			attribute.String("herald.subscription_id", subscriptionID),
			attribute.Int("herald.attempt", attempt),
		),
	)
}

// EndJobSpan ends a job span with the attempt result.
func (t *Tracer) EndJobSpan(span trace.Span, statusCode, latencyMs int, errMsg string) {
	span.SetAttributes(
		attribute.Int("http.status_code", statusCode),
		attribute.Int("herald.latency_ms", latencyMs),
	)
	if errMsg != "" {
		span.SetAttributes(attribute.String("herald.error", errMsg))
		span.SetStatus(codes.Error, errMsg)
	}
	span.End()
}
