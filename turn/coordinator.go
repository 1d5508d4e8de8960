// Package turn runs one utterance through the planning pipeline: plan,
// reconcile against pending actions, enrich with spoken quantities, and kick
// off background food resolution.
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

	"go.opentelemetry.io/otel"
)

// Input is the session state one turn starts from.
type Input struct {
	Turn          int
	Transcript    string
	History       []voicelog.TurnMessage
	Actions       []action.Action
	RecentEntries []voicelog.RecentEntry
}

// Output is what the session carries forward. Actions is the full reconciled
// list; Pending names the meal items handed to the resolver pool, tagged with
// the pool generation so stale completions can be told apart.
type Output struct {
	Message    string
	Decision   voicelog.Decision
	Actions    []action.Action
	Pending    []action.PendingItem
	Generation uint64
}

type Coordinator struct {
	planner voicelog.Planner
	pool    *resolve.Pool
	logger  voicelog.TurnLogger
}

func NewCoordinator(planner voicelog.Planner, pool *resolve.Pool, logger voicelog.TurnLogger) *Coordinator {
	return &Coordinator{
		planner: planner,
		pool:    pool,
		logger:  logger,
	}
}

// Run executes one turn. A planner failure leaves the pending action list
// untouched so the user can simply try again.
func (c *Coordinator) Run(ctx context.Context, in Input) (Output, error) {
	ctx, span := otel.Tracer(voicelog.TracerNameTurn).Start(ctx, "Coordinator.Run")
	defer span.End()

	slog.Info("COORDINATOR: Starting turn", "turn", in.Turn, "transcript_len", len(in.Transcript), "pending_actions", len(in.Actions))

	turnLog := voicelog.TurnLog{Turn: in.Turn, Timestamp: time.Now(), Transcript: in.Transcript}

	req := voicelog.PlanRequest{
		Text:            in.Transcript,
		History:         in.History,
		ExistingActions: action.ToWire(in.Actions),
		RecentEntries:   in.RecentEntries,
	}
	if b, merr := json.Marshal(req); merr == nil {
		turnLog.PlannerInput = string(b)
	}

	res, err := c.planner.Plan(ctx, req)
	if err != nil {
		turnLog.Error = err.Error()
		c.logTurn(turnLog)
		return Output{Actions: in.Actions}, fmt.Errorf("failed to plan turn: %w", err)
	}
	turnLog.PlannerOutput = res

	slog.Info("COORDINATOR: Plan received",
		"turn", in.Turn,
		"apply", res.Decision.Apply,
		"handling", res.Decision.ActionHandling,
		"proposed", len(res.Actions),
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
		slog.Info("COORDINATOR: Dispatched food lookups", "turn", in.Turn, "items", len(pending), "generation", out.Generation)
	}

	c.logTurn(turnLog)
	return out, nil
}

// logTurn logs a turn using the configured logger, handling errors gracefully.
func (c *Coordinator) logTurn(turn voicelog.TurnLog) {
	if c.logger != nil {
		if err := c.logger.LogTurn(turn); err != nil {
			slog.Error("Failed to log turn", "error", err, "turn", turn.Turn)
		}
	}
}
