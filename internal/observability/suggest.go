package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"outfitter/internal/models"
	"outfitter/internal/ratelimit"
	"outfitter/internal/suggest"
)

// InstrumentedCollaborator wraps a suggest.Collaborator with tracing and
// metrics around every AI call.
type InstrumentedCollaborator struct {
	inner    suggest.Collaborator
	tracer   trace.Tracer
	duration metric.Float64Histogram
	outcomes metric.Int64Counter
}

// NewInstrumentedCollaborator creates a collaborator wrapper that records a
// span, a latency histogram, and an outcome counter per call.
func NewInstrumentedCollaborator(inner suggest.Collaborator) (*InstrumentedCollaborator, error) {
	tracer := otel.Tracer("outfitter/suggest")
	meter := otel.Meter("outfitter/suggest")

	duration, err := meter.Float64Histogram(
		"ai.call.duration",
		metric.WithDescription("Duration of AI collaborator calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	outcomes, err := meter.Int64Counter(
		"ai.call.outcomes",
		metric.WithDescription("Number of AI collaborator calls by outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedCollaborator{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		outcomes: outcomes,
	}, nil
}

func (c *InstrumentedCollaborator) SuggestOutfit(ctx context.Context, weather map[string]any, opts models.SuggestOptions) (*models.SuggestionResult, error) {
	ctx, span := c.tracer.Start(ctx, "ai.SuggestOutfit",
		trace.WithAttributes(
			attribute.String("suggest.mode", opts.Mode),
		),
	)
	start := time.Now()

	result, err := c.inner.SuggestOutfit(ctx, weather, opts)

	elapsed := time.Since(start).Seconds()
	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case result != nil && result.IsError():
		outcome = "fallback"
		span.SetStatus(codes.Ok, "")
	default:
		span.SetStatus(codes.Ok, "")
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	c.duration.Record(ctx, elapsed, attrs)
	c.outcomes.Add(ctx, 1, attrs)
	span.End()

	return result, err
}

// RegisterGateMetrics registers observable gauges that report the admission
// gate's active and queued counts on every metrics scrape.
func RegisterGateMetrics(gate *ratelimit.Gate) error {
	meter := otel.Meter("outfitter/suggest")

	active, err := meter.Int64ObservableGauge(
		"admission.active",
		metric.WithDescription("Requests currently holding an AI slot"),
	)
	if err != nil {
		return err
	}

	queued, err := meter.Int64ObservableGauge(
		"admission.queued",
		metric.WithDescription("Requests waiting for an AI slot"),
	)
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		status := gate.Status()
		o.ObserveInt64(active, int64(status.Active))
		o.ObserveInt64(queued, int64(status.Queue))
		return nil
	}, active, queued)
	return err
}
