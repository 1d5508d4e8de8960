package action

import "log/slog"

// Handling is the planner's directive for how a turn's proposals relate to the
// working action list.
type Handling string

const (
	HandlingKeep    Handling = "keep"    // turn produced nothing actionable; keep list as-is
	HandlingClear   Handling = "clear"   // explicit cancellation; drop everything not yet applied
	HandlingReplace Handling = "replace" // proposals supersede all still-pending actions
)

// Reconcile merges a proposal batch into the current action list. It is a
// pure reducer: the current slice is never mutated, and callers can rely on
// keep returning the input unchanged.
func Reconcile(current []Action, proposed []Action, handling Handling) []Action {
	switch handling {
	case HandlingKeep:
		return current

	case HandlingClear:
		return appliedOnly(current)

	case HandlingReplace:
		// A replace that proposes nothing is a clear in disguise; the planner
		// message still carries whatever it wanted to say.
		if len(proposed) == 0 {
			return appliedOnly(current)
		}
		kept := appliedOnly(current)
		out := make([]Action, 0, len(kept)+len(proposed))
		out = append(out, kept...)
		for _, p := range proposed {
			a := p.Clone()
			if a.ID == "" {
				a.ID = NewID()
			}
			if a.Status == "" {
				a.Status = StatusReady
			}
			if a.Kind == KindMeal && a.Meal != nil {
				a.Meal.Items = DedupeMealItems(a.Meal.Items)
			}
			out = append(out, a)
		}
		return out

	default:
		slog.Warn("RECONCILER: Unknown handling, keeping current list", "handling", handling)
		return current
	}
}

func appliedOnly(actions []Action) []Action {
	out := make([]Action, 0, len(actions))
	for _, a := range actions {
		if a.Status == StatusApplied {
			out = append(out, a.Clone())
		}
	}
	return out
}

// PendingMealQueries lists the (action id, item index) addresses of meal items
// that still need resolution, in list order.
type PendingItem struct {
	ActionID  string
	ItemIndex int
	Query     string
}

// UnresolvedMealItems returns the addresses of every meal item without a
// matched food across the given actions, skipping already-applied ones.
func UnresolvedMealItems(actions []Action) []PendingItem {
	var out []PendingItem
	for _, a := range actions {
		if a.Kind != KindMeal || a.Meal == nil || a.Status == StatusApplied {
			continue
		}
		for i, it := range a.Meal.Items {
			if it.MatchedFood == nil && it.ResolveError == "" {
				q := it.FoodQuery
				if q == "" {
					q = it.Label
				}
				out = append(out, PendingItem{ActionID: a.ID, ItemIndex: i, Query: q})
			}
		}
	}
	return out
}
