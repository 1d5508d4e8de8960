package turn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"voicelog"
	"voicelog/action"
	"voicelog/mention"
	"voicelog/resolve"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedCoordinator is an instrumented version of the Coordinator with
// comprehensive observability metrics.
type InstrumentedCoordinator struct {
	planner voicelog.Planner
	pool    *resolve.Pool
	logger  voicelog.TurnLogger
	tracer  trace.Tracer
	meter   metric.Meter
}

func NewInstrumentedCoordinator(planner voicelog.Planner, pool *resolve.Pool, logger voicelog.TurnLogger, tracer trace.Tracer, meter metric.Meter) *InstrumentedCoordinator {
	return &InstrumentedCoordinator{
		planner: planner,
		pool:    pool,
		logger:  logger,
		tracer:  tracer,
		meter:   meter,
	}
}

// Run executes one turn with full instrumentation.
func (c *InstrumentedCoordinator) Run(ctx context.Context, in Input) (Output, error) {
	ctx, span := c.tracer.Start(ctx, "InstrumentedCoordinator.Run")
	defer span.End()

	slog.Info("COORDINATOR: Starting instrumented turn", "turn", in.Turn, "transcript_len", len(in.Transcript))

	turnsCounter, _ := c.meter.Int64Counter("turns_total",
		metric.WithDescription("Total number of turns started"))
	turnsFailedCounter, _ := c.meter.Int64Counter("turns_failed_total",
		metric.WithDescription("Total number of turns where planning failed"))
	actionsProposedCounter, _ := c.meter.Int64Counter("actions_proposed_total",
		metric.WithDescription("Total number of actions proposed by the planner"))
	lookupsDispatchedCounter, _ := c.meter.Int64Counter("food_lookups_dispatched_total",
		metric.WithDescription("Total number of meal items handed to the resolver pool"))

	pendingActionsGauge, _ := c.meter.Int64Gauge("pending_actions",
		metric.WithDescription("Number of actions pending after the latest turn"))
	plannerInputSizeGauge, _ := c.meter.Int64Gauge("planner_input_size_bytes",
		metric.WithDescription("Size of the planner request in bytes"))

	turnDurationHist, _ := c.meter.Float64Histogram("turn_duration_seconds",
		metric.WithDescription("Total duration of one turn in seconds"))
	plannerResponseTimeHist, _ := c.meter.Float64Histogram("planner_response_time_seconds",
		metric.WithDescription("Time taken for the planner to respond in seconds"))

	turnsCounter.Add(ctx, 1)
	turnStartTime := time.Now()

	turnLog := voicelog.TurnLog{Turn: in.Turn, Timestamp: time.Now(), Transcript: in.Transcript}

	req := voicelog.PlanRequest{
		Text:            in.Transcript,
		History:         in.History,
		ExistingActions: action.ToWire(in.Actions),
		RecentEntries:   in.RecentEntries,
	}
	if b, merr := json.Marshal(req); merr == nil {
		turnLog.PlannerInput = string(b)
		plannerInputSizeGauge.Record(ctx, int64(len(b)))
	}

	plannerStartTime := time.Now()
	res, err := c.planner.Plan(ctx, req)
	plannerDuration := time.Since(plannerStartTime)
	plannerResponseTimeHist.Record(ctx, plannerDuration.Seconds())

	if err != nil {
		turnLog.Error = err.Error()
		c.logTurn(turnLog)
		turnsFailedCounter.Add(ctx, 1)
		span.SetStatus(codes.Error, "Planner failed")
		span.RecordError(err)
		return Output{Actions: in.Actions}, fmt.Errorf("failed to plan turn: %w", err)
	}
	turnLog.PlannerOutput = res

	span.AddEvent("Plan received", trace.WithAttributes(
		attribute.String("apply", string(res.Decision.Apply)),
		attribute.String("handling", string(res.Decision.ActionHandling)),
		attribute.Int("proposed_actions", len(res.Actions)),
		attribute.Float64("planner_response_time_seconds", plannerDuration.Seconds()),
	))
	actionsProposedCounter.Add(ctx, int64(len(res.Actions)))

	slog.Info("COORDINATOR: Plan received",
		"turn", in.Turn,
		"apply", res.Decision.Apply,
		"handling", res.Decision.ActionHandling,
		"proposed", len(res.Actions),
		"planner_response_time_ms", plannerDuration.Milliseconds(),
	)

	proposed := action.FromWire(res.Actions)
	next := action.Reconcile(in.Actions, proposed, res.Decision.ActionHandling)
	next = mention.Enrich(next, in.Transcript)

	out := Output{
		Message:  res.Message,
		Decision: res.Decision,
		Actions:  next,
	}

	if pending := action.UnresolvedMealItems(next); len(pending) > 0 && c.pool != nil {
		out.Actions = c.pool.MarkResolving(next, pending)
		out.Generation = c.pool.Dispatch(pending)
		out.Pending = pending
		lookupsDispatchedCounter.Add(ctx, int64(len(pending)))
		span.AddEvent("Food lookups dispatched", trace.WithAttributes(
			attribute.Int("items", len(pending)),
			attribute.Int64("generation", int64(out.Generation)),
		))
		slog.Info("COORDINATOR: Dispatched food lookups", "turn", in.Turn, "items", len(pending), "generation", out.Generation)
	}

	pendingActionsGauge.Record(ctx, int64(len(out.Actions)))
	turnDurationHist.Record(ctx, time.Since(turnStartTime).Seconds())

	c.logTurn(turnLog)
	return out, nil
}

func (c *InstrumentedCoordinator) logTurn(turn voicelog.TurnLog) {
	if c.logger != nil {
		if err := c.logger.LogTurn(turn); err != nil {
			slog.Error("Failed to log turn", "error", err, "turn", turn.Turn)
		}
	}
}
