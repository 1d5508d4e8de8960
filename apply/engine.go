// Package apply commits selected actions to their per-entity stores, strictly
// in list order, and produces the human-readable receipt for the transcript.
package apply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voicelog"
	"voicelog/action"
	"voicelog/store"
)

// PreconditionError reports the action that blocked a batch before any
// mutation ran.
type PreconditionError struct {
	ActionID string
	Title    string
	Reason   string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot apply %q: %s", e.Title, e.Reason)
}

// Result carries the updated action list plus the audit trail for the turn
// log. Receipt is empty unless every selected action applied.
type Result struct {
	Actions   []action.Action
	Receipt   Receipt
	Applied   int
	Mutations []voicelog.MutationLog
}

type Engine struct {
	stores store.Stores
}

func NewEngine(stores store.Stores) *Engine {
	return &Engine{stores: stores}
}

// Apply commits every selected, not-yet-applied action in list order.
// Preconditions are checked for the whole batch up front so a half-built
// batch never reaches a store. Execution is sequential: an entry id created
// early in the batch is available to a later edit. The first mutation failure
// stops the batch; already-committed actions stay applied, nothing rolls
// back, and the failure is surfaced on the action and in the returned error.
func (e *Engine) Apply(ctx context.Context, actions []action.Action) (Result, error) {
	res := Result{Actions: actions}

	var runnable []string
	for _, a := range actions {
		if !a.Selected || a.Status == action.StatusApplied {
			continue
		}
		if err := a.Validate(); err != nil {
			slog.Warn("APPLY: Precondition failed", "action_id", a.ID, "error", err)
			res.Actions, _ = action.UpdateByID(res.Actions, a.ID, func(a action.Action) action.Action {
				a.Error = err.Error()
				return a
			})
			return res, &PreconditionError{ActionID: a.ID, Title: a.Title, Reason: err.Error()}
		}
		runnable = append(runnable, a.ID)
	}
	if len(runnable) == 0 {
		slog.Info("APPLY: Nothing to apply")
		return res, nil
	}

	slog.Info("APPLY: Starting batch", "actions", len(runnable))

	for _, id := range runnable {
		idx := action.FindByID(res.Actions, id)
		current := res.Actions[idx]

		res.Actions, _ = action.UpdateByID(res.Actions, id, func(a action.Action) action.Action {
			a.Status = action.StatusApplying
			a.Error = ""
			return a
		})

		entryID, err := e.mutate(ctx, current)

		mlog := voicelog.MutationLog{
			Kind:      string(current.Kind),
			Operation: string(current.Operation),
			ActionID:  current.ID,
			EntryID:   entryID,
		}
		if err != nil {
			mlog.Error = err.Error()
			res.Mutations = append(res.Mutations, mlog)
			res.Actions, _ = action.UpdateByID(res.Actions, id, func(a action.Action) action.Action {
				a.Status = action.StatusError
				a.Error = err.Error()
				return a
			})
			slog.Error("APPLY: Mutation failed, aborting batch", "action_id", id, "error", err)
			return res, fmt.Errorf("failed to apply %q: %w", current.Title, err)
		}
		res.Mutations = append(res.Mutations, mlog)

		res.Actions, _ = action.UpdateByID(res.Actions, id, func(a action.Action) action.Action {
			a.Status = action.StatusApplied
			if entryID != "" {
				a.EntryID = entryID
			}
			return a
		})
		res.Applied++
		slog.Info("APPLY: Action applied", "action_id", id, "kind", current.Kind, "entry_id", entryID)
	}

	for _, id := range runnable {
		res.Receipt.add(res.Actions[action.FindByID(res.Actions, id)])
	}
	return res, nil
}

// mutate dispatches one action to its store and returns the backend entry id
// it ends up with.
func (e *Engine) mutate(ctx context.Context, a action.Action) (string, error) {
	switch a.Kind {
	case action.KindMeal:
		return e.mutateMeal(ctx, a)
	case action.KindSymptom:
		return e.mutateSymptom(ctx, a)
	case action.KindSupplement:
		return e.mutateSupplement(ctx, a)
	case action.KindSleep:
		return e.mutateSleep(ctx, a)
	case action.KindShoppingItem:
		return e.mutateShopping(ctx, a)
	case action.KindDelete:
		return "", e.mutateDelete(ctx, a)
	}
	return "", fmt.Errorf("unknown action kind %q", a.Kind)
}

func (e *Engine) mutateMeal(ctx context.Context, a action.Action) (string, error) {
	if a.Operation == action.OpDelete {
		return a.EntryID, e.stores.Meals.Delete(ctx, a.EntryID)
	}
	entry := store.MealEntry{
		ID:        a.EntryID,
		Date:      a.Meal.Date,
		MealType:  a.Meal.MealType,
		Notes:     a.Meal.Notes,
		CreatedAt: time.Now(),
	}
	for _, it := range a.Meal.Items {
		item := store.MealEntryItem{
			Label:    it.Label,
			Servings: it.Servings,
			Grams:    it.GramsConsumed,
		}
		if f := it.MatchedFood; f != nil {
			item.FoodID = f.ExternalID
			item.FoodDescription = f.Description
			item.Calories = f.Calories * it.Servings
			item.ProteinG = f.ProteinG * it.Servings
			item.CarbsG = f.CarbsG * it.Servings
			item.FatG = f.FatG * it.Servings
		}
		entry.Items = append(entry.Items, item)
	}
	if a.Operation == action.OpEdit {
		updated, err := e.stores.Meals.Update(ctx, entry)
		return updated.ID, err
	}
	created, err := e.stores.Meals.Create(ctx, entry)
	return created.ID, err
}

func (e *Engine) mutateSymptom(ctx context.Context, a action.Action) (string, error) {
	if a.Operation == action.OpDelete {
		return a.EntryID, e.stores.Symptoms.Delete(ctx, a.EntryID)
	}
	entry := store.SymptomEntry{
		ID:          a.EntryID,
		SymptomName: a.Symptom.SymptomName,
		Severity:    a.Symptom.Severity,
		Date:        a.Symptom.Date,
		Time:        a.Symptom.Time,
		Notes:       a.Symptom.Notes,
		CreatedAt:   time.Now(),
	}
	if a.Operation == action.OpEdit {
		updated, err := e.stores.Symptoms.Update(ctx, entry)
		return updated.ID, err
	}
	created, err := e.stores.Symptoms.Create(ctx, entry)
	return created.ID, err
}

func (e *Engine) mutateSupplement(ctx context.Context, a action.Action) (string, error) {
	if a.Operation == action.OpDelete {
		return a.EntryID, e.stores.Supplements.Delete(ctx, a.EntryID)
	}
	s := a.Supplement
	entry := store.SupplementEntry{
		ID:             a.EntryID,
		Name:           s.Name,
		Dosage:         s.Dosage,
		Unit:           s.Unit,
		DoseCount:      s.DoseCount,
		DoseUnit:       s.DoseUnit,
		StrengthAmount: s.StrengthAmount,
		StrengthUnit:   s.StrengthUnit,
		Date:           s.Date,
		Time:           s.Time,
		Notes:          s.Notes,
		CreatedAt:      time.Now(),
	}
	if a.Operation == action.OpEdit {
		updated, err := e.stores.Supplements.Update(ctx, entry)
		return updated.ID, err
	}
	created, err := e.stores.Supplements.Create(ctx, entry)
	return created.ID, err
}

func (e *Engine) mutateSleep(ctx context.Context, a action.Action) (string, error) {
	if a.Operation == action.OpDelete {
		return a.EntryID, e.stores.Sleep.Delete(ctx, a.EntryID)
	}
	entry := store.SleepEntry{
		ID:        a.EntryID,
		Date:      a.Sleep.Date,
		Bedtime:   a.Sleep.Bedtime,
		WakeTime:  a.Sleep.WakeTime,
		Quality:   a.Sleep.Quality,
		Factors:   a.Sleep.Factors,
		CreatedAt: time.Now(),
	}
	if a.Operation == action.OpEdit {
		updated, err := e.stores.Sleep.Update(ctx, entry)
		return updated.ID, err
	}
	created, err := e.stores.Sleep.Create(ctx, entry)
	return created.ID, err
}

func (e *Engine) mutateShopping(ctx context.Context, a action.Action) (string, error) {
	if a.Operation == action.OpDelete {
		return a.EntryID, e.stores.Shopping.Delete(ctx, a.EntryID)
	}
	entry := store.ShoppingEntry{
		ID:        a.EntryID,
		Name:      a.Shopping.Name,
		Quantity:  a.Shopping.Quantity,
		Unit:      a.Shopping.Unit,
		Category:  a.Shopping.Category,
		CreatedAt: time.Now(),
	}
	if a.Operation == action.OpEdit {
		updated, err := e.stores.Shopping.Update(ctx, entry)
		return updated.ID, err
	}
	created, err := e.stores.Shopping.Create(ctx, entry)
	return created.ID, err
}

func (e *Engine) mutateDelete(ctx context.Context, a action.Action) error {
	id := a.Delete.EntryID
	switch a.Delete.TargetType {
	case action.KindMeal:
		return e.stores.Meals.Delete(ctx, id)
	case action.KindSymptom:
		return e.stores.Symptoms.Delete(ctx, id)
	case action.KindSupplement:
		return e.stores.Supplements.Delete(ctx, id)
	case action.KindSleep:
		return e.stores.Sleep.Delete(ctx, id)
	case action.KindShoppingItem:
		return e.stores.Shopping.Delete(ctx, id)
	}
	return fmt.Errorf("unknown delete target %q", a.Delete.TargetType)
}
