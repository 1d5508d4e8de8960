package apply

import (
	"context"
	"time"

	"voicelog/action"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedEngine wraps Engine with spans and metrics per batch and per
// mutation.
type InstrumentedEngine struct {
	engine *Engine
	tracer trace.Tracer
	meter  metric.Meter
}

func NewInstrumentedEngine(engine *Engine, tracer trace.Tracer, meter metric.Meter) *InstrumentedEngine {
	return &InstrumentedEngine{engine: engine, tracer: tracer, meter: meter}
}

func (e *InstrumentedEngine) Apply(ctx context.Context, actions []action.Action) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "ApplyEngine.Apply")
	defer span.End()

	batchCounter, _ := e.meter.Int64Counter("apply_batches_total",
		metric.WithDescription("Total number of apply batches started"))
	appliedCounter, _ := e.meter.Int64Counter("actions_applied_total",
		metric.WithDescription("Total number of actions applied successfully"))
	failedCounter, _ := e.meter.Int64Counter("apply_failures_total",
		metric.WithDescription("Total number of apply batches that failed"))
	durationHist, _ := e.meter.Float64Histogram("apply_batch_duration_seconds",
		metric.WithDescription("Wall time of one apply batch"))

	batchCounter.Add(ctx, 1)
	span.SetAttributes(attribute.Int("actions.total", len(actions)))

	start := time.Now()
	res, err := e.engine.Apply(ctx, actions)
	durationHist.Record(ctx, time.Since(start).Seconds())

	appliedCounter.Add(ctx, int64(res.Applied))
	span.SetAttributes(attribute.Int("actions.applied", res.Applied))

	if err != nil {
		failedCounter.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	span.SetStatus(codes.Ok, "")
	return res, nil
}
