package apply

import (
	"context"
	"errors"
	"testing"

	"voicelog/action"
	"voicelog/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolvedItem(label string) action.MealItem {
	return action.MealItem{
		Label: label, FoodQuery: label, Servings: 1,
		MatchedFood: &action.Food{ExternalID: "f-" + label, Description: label, Calories: 100},
	}
}

func TestApply_CreatesEntriesAndCapturesIDs(t *testing.T) {
	stores := store.NewMemStores()
	engine := NewEngine(stores)

	actions := []action.Action{
		{ID: "a1", Kind: action.KindMeal, Operation: action.OpCreate, Selected: true, Status: action.StatusReady,
			Meal: &action.MealDetails{Date: "2026-08-30", MealType: "lunch",
				Items: []action.MealItem{resolvedItem("chicken breast"), resolvedItem("broccoli")}}},
		{ID: "a2", Kind: action.KindSymptom, Operation: action.OpCreate, Selected: true, Status: action.StatusReady,
			Symptom: &action.SymptomDetails{SymptomName: "headache", Severity: 4}},
	}

	res, err := engine.Apply(context.Background(), actions)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)

	for _, a := range res.Actions {
		assert.Equal(t, action.StatusApplied, a.Status)
		assert.NotEmpty(t, a.EntryID)
	}

	assert.Equal(t, "Log lunch: chicken breast, broccoli. Log symptom: headache (severity 4).", res.Receipt.Text())
	assert.Equal(t, []string{"a1", "a2"}, res.Receipt.ActionIDs)
	require.Len(t, res.Mutations, 2)
}

func TestApply_UnresolvedItemBlocksWholeBatch(t *testing.T) {
	stores := store.NewMemStores()
	engine := NewEngine(stores)

	actions := []action.Action{{
		ID: "a1", Kind: action.KindMeal, Operation: action.OpCreate, Selected: true, Status: action.StatusReady,
		Title: "Log lunch",
		Meal: &action.MealDetails{Date: "2026-08-30", Items: []action.MealItem{
			resolvedItem("rice"),
			{Label: "mystery stew", FoodQuery: "mystery stew"}, // unresolved
		}},
	}}

	res, err := engine.Apply(context.Background(), actions)

	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Equal(t, "a1", pre.ActionID)
	assert.Contains(t, pre.Reason, "mystery stew")

	// no mutation ran: no partial meal log exists
	meals := stores.Meals.(*store.MemCollection[store.MealEntry])
	assert.Zero(t, meals.Len())
	assert.Empty(t, res.Mutations)
	assert.Equal(t, action.StatusReady, res.Actions[0].Status, "status untouched on precondition failure")
	assert.NotEmpty(t, res.Actions[0].Error)
}

func TestApply_EditWithoutEntryIDBlocks(t *testing.T) {
	engine := NewEngine(store.NewMemStores())
	actions := []action.Action{{
		ID: "a1", Kind: action.KindSymptom, Operation: action.OpEdit, Selected: true, Status: action.StatusReady,
		Title: "Update symptom", Symptom: &action.SymptomDetails{SymptomName: "nausea", Severity: 2},
	}}
	_, err := engine.Apply(context.Background(), actions)
	var pre *PreconditionError
	require.ErrorAs(t, err, &pre)
	assert.Contains(t, pre.Reason, "entry id")
}

func TestApply_FirstFailureStopsBatchWithoutRollback(t *testing.T) {
	stores := store.NewMemStores()
	failing := store.NewMemSupplementStore()
	failing.FailWith(errors.New("backend down"))
	stores.Supplements = failing
	engine := NewEngine(stores)

	actions := []action.Action{
		{ID: "ok", Kind: action.KindSymptom, Operation: action.OpCreate, Selected: true, Status: action.StatusReady,
			Symptom: &action.SymptomDetails{SymptomName: "fatigue", Severity: 3}},
		{ID: "bad", Kind: action.KindSupplement, Operation: action.OpCreate, Selected: true, Status: action.StatusReady,
			Title: "Log magnesium", Supplement: &action.SupplementDetails{Name: "magnesium", Dosage: 200, Unit: "mg"}},
		{ID: "never", Kind: action.KindSleep, Operation: action.OpCreate, Selected: true, Status: action.StatusReady,
			Sleep: &action.SleepDetails{Date: "2026-08-30", Quality: 4}},
	}

	res, err := engine.Apply(context.Background(), actions)
	require.Error(t, err)

	byID := map[string]action.Action{}
	for _, a := range res.Actions {
		byID[a.ID] = a
	}
	assert.Equal(t, action.StatusApplied, byID["ok"].Status, "committed action stays applied")
	assert.Equal(t, action.StatusError, byID["bad"].Status)
	assert.Contains(t, byID["bad"].Error, "backend down")
	assert.Equal(t, action.StatusReady, byID["never"].Status, "later action never executed")
	assert.True(t, res.Receipt.Empty(), "no receipt on partial application")
}

func TestApply_SkipsUnselectedAndApplied(t *testing.T) {
	stores := store.NewMemStores()
	engine := NewEngine(stores)

	actions := []action.Action{
		{ID: "skip", Kind: action.KindSymptom, Operation: action.OpCreate, Selected: false, Status: action.StatusReady,
			Symptom: &action.SymptomDetails{SymptomName: "ignored", Severity: 1}},
		{ID: "done", Kind: action.KindSymptom, Operation: action.OpCreate, Selected: true, Status: action.StatusApplied, EntryID: "e-1",
			Symptom: &action.SymptomDetails{SymptomName: "already", Severity: 2}},
	}

	res, err := engine.Apply(context.Background(), actions)
	require.NoError(t, err)
	assert.Zero(t, res.Applied)
	assert.True(t, res.Receipt.Empty())
}

func TestApply_DeleteByTargetType(t *testing.T) {
	stores := store.NewMemStores()
	created, err := stores.Sleep.Create(context.Background(), store.SleepEntry{Date: "2026-08-29", Quality: 2})
	require.NoError(t, err)

	engine := NewEngine(stores)
	actions := []action.Action{{
		ID: "d1", Kind: action.KindDelete, Operation: action.OpDelete, Selected: true, Status: action.StatusReady,
		Delete: &action.DeleteDetails{TargetType: action.KindSleep, EntryID: created.ID},
	}}

	res, err := engine.Apply(context.Background(), actions)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, "Delete sleep entry.", res.Receipt.Text())

	sleep := stores.Sleep.(*store.MemCollection[store.SleepEntry])
	assert.Zero(t, sleep.Len())
}

func TestApply_EditUsesEarlierCreatedID(t *testing.T) {
	// sequential order guarantees a created id is visible to a later edit
	stores := store.NewMemStores()
	engine := NewEngine(stores)

	createRes, err := engine.Apply(context.Background(), []action.Action{{
		ID: "c1", Kind: action.KindShoppingItem, Operation: action.OpCreate, Selected: true, Status: action.StatusReady,
		Shopping: &action.ShoppingDetails{Name: "oat milk", Quantity: 1, Unit: "carton"},
	}})
	require.NoError(t, err)
	entryID := createRes.Actions[0].EntryID
	require.NotEmpty(t, entryID)

	editRes, err := engine.Apply(context.Background(), []action.Action{{
		ID: "e1", Kind: action.KindShoppingItem, Operation: action.OpEdit, Selected: true, Status: action.StatusReady,
		EntryID:  entryID,
		Shopping: &action.ShoppingDetails{Name: "oat milk", Quantity: 2, Unit: "carton"},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, editRes.Applied)

	shopping := stores.Shopping.(*store.MemCollection[store.ShoppingEntry])
	got, ok := shopping.Get(entryID)
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Quantity)
}
