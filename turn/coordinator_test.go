package turn

import (
	"context"
	"errors"
	"testing"

	"voicelog"
	"voicelog/action"
	"voicelog/resolve"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedPlanner struct {
	response voicelog.PlanResponse
	err      error
	lastReq  voicelog.PlanRequest
}

func (p *scriptedPlanner) Plan(ctx context.Context, req voicelog.PlanRequest) (voicelog.PlanResponse, error) {
	p.lastReq = req
	return p.response, p.err
}

type countingSource struct{}

func (countingSource) Search(ctx context.Context, query string, limit int) ([]action.Candidate, error) {
	return []action.Candidate{{ExternalID: "1", Description: query, DataType: "Foundation"}}, nil
}

func (countingSource) Detail(ctx context.Context, id string) (*action.Food, error) {
	return &action.Food{ExternalID: id, Description: "food", Calories: 100}, nil
}

func TestCoordinator_Run_ReplacesAndDispatches(t *testing.T) {
	planner := &scriptedPlanner{response: voicelog.PlanResponse{
		Message: "Lunch with chicken and rice. Log it?",
		Decision: voicelog.Decision{
			Intent:         "track",
			Apply:          voicelog.ApplyConfirm,
			ActionHandling: action.HandlingReplace,
		},
		Actions: []action.WireAction{{
			Kind:     string(action.KindMeal),
			Title:    "Log lunch",
			MealType: "lunch",
			Items: []action.WireMealItem{
				{Label: "grilled chicken"},
				{Label: "rice"},
			},
		}},
	}}
	pool := resolve.NewPool(resolve.NewResolver(countingSource{}, voicelog.ResolverConfig{}), 1)
	c := NewCoordinator(planner, pool, voicelog.NewNoOpTurnLogger())

	out, err := c.Run(context.Background(), Input{
		Turn:       1,
		Transcript: "I had grilled chicken and rice for lunch",
	})
	require.NoError(t, err)
	assert.Equal(t, voicelog.ApplyConfirm, out.Decision.Apply)

	require.Len(t, out.Actions, 1)
	a := out.Actions[0]
	assert.NotEmpty(t, a.ID, "reconcile assigns fresh ids")
	assert.Equal(t, action.StatusReady, a.Status)
	require.NotNil(t, a.Meal)
	require.Len(t, a.Meal.Items, 2)

	// both items queued and flagged
	require.Len(t, out.Pending, 2)
	assert.Equal(t, uint64(1), out.Generation)
	for _, it := range a.Meal.Items {
		assert.True(t, it.IsResolving)
	}
}

func TestCoordinator_Run_MentionsEnrichProposals(t *testing.T) {
	planner := &scriptedPlanner{response: voicelog.PlanResponse{
		Message: "Sixteen ounces of chicken, got it.",
		Decision: voicelog.Decision{
			Apply:          voicelog.ApplyConfirm,
			ActionHandling: action.HandlingReplace,
		},
		Actions: []action.WireAction{{
			Kind:  string(action.KindMeal),
			Title: "Log dinner",
			Items: []action.WireMealItem{{Label: "grilled chicken"}},
		}},
	}}
	c := NewCoordinator(planner, nil, voicelog.NewNoOpTurnLogger())

	out, err := c.Run(context.Background(), Input{
		Turn:       1,
		Transcript: "I had 16oz of grilled chicken",
	})
	require.NoError(t, err)
	require.Len(t, out.Actions, 1)
	require.Len(t, out.Actions[0].Meal.Items, 1)
	assert.InDelta(t, 453.6, out.Actions[0].Meal.Items[0].GramsConsumed, 1.0)
}

func TestCoordinator_Run_KeepLeavesActionsAlone(t *testing.T) {
	existing := []action.Action{{
		ID: "a1", Kind: action.KindSymptom, Operation: action.OpCreate, Selected: true, Status: action.StatusReady,
		Title:   "Log headache",
		Symptom: &action.SymptomDetails{SymptomName: "headache", Severity: 4},
	}}

	planner := &scriptedPlanner{response: voicelog.PlanResponse{
		Message: "You logged a headache earlier today.",
		Decision: voicelog.Decision{
			Intent:         "question",
			Apply:          voicelog.ApplyNone,
			ActionHandling: action.HandlingKeep,
		},
	}}
	c := NewCoordinator(planner, nil, voicelog.NewNoOpTurnLogger())

	out, err := c.Run(context.Background(), Input{Turn: 2, Transcript: "did I log anything today?", Actions: existing})
	require.NoError(t, err)
	assert.Equal(t, existing, out.Actions)
	assert.Empty(t, out.Pending)

	// pending proposals rode along in the request for context
	require.Len(t, planner.lastReq.ExistingActions, 1)
	assert.Equal(t, "Log headache", planner.lastReq.ExistingActions[0].Title)
}

func TestCoordinator_Run_PlannerFailureKeepsState(t *testing.T) {
	existing := []action.Action{{
		ID: "a1", Kind: action.KindSymptom, Selected: true, Status: action.StatusReady,
		Symptom: &action.SymptomDetails{SymptomName: "nausea", Severity: 2},
	}}

	planner := &scriptedPlanner{err: errors.New("model unavailable")}
	c := NewCoordinator(planner, nil, voicelog.NewNoOpTurnLogger())

	out, err := c.Run(context.Background(), Input{Turn: 3, Transcript: "log a banana", Actions: existing})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to plan turn")
	assert.Equal(t, existing, out.Actions, "failed turns must not disturb pending actions")
}

func TestCoordinator_Run_ClearDropsUnapplied(t *testing.T) {
	existing := []action.Action{
		{ID: "a1", Kind: action.KindSymptom, Selected: true, Status: action.StatusReady,
			Symptom: &action.SymptomDetails{SymptomName: "headache", Severity: 4}},
		{ID: "a2", Kind: action.KindSymptom, Selected: true, Status: action.StatusApplied, EntryID: "e-1",
			Symptom: &action.SymptomDetails{SymptomName: "fatigue", Severity: 3}},
	}

	planner := &scriptedPlanner{response: voicelog.PlanResponse{
		Message: "Okay, dropped those.",
		Decision: voicelog.Decision{
			Apply:          voicelog.ApplyNone,
			ActionHandling: action.HandlingClear,
		},
	}}
	c := NewCoordinator(planner, nil, voicelog.NewNoOpTurnLogger())

	out, err := c.Run(context.Background(), Input{Turn: 4, Transcript: "never mind", Actions: existing})
	require.NoError(t, err)
	require.Len(t, out.Actions, 1)
	assert.Equal(t, "a2", out.Actions[0].ID, "applied actions survive a clear")
}
