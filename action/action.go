package action

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates what a logging action operates on.
type Kind string

const (
	KindMeal         Kind = "meal"
	KindSymptom      Kind = "symptom"
	KindSupplement   Kind = "supplement"
	KindSleep        Kind = "sleep"
	KindShoppingItem Kind = "shoppingItem"
	KindDelete       Kind = "delete"
)

// Operation is what the action does to its entry.
type Operation string

const (
	OpCreate Operation = "create"
	OpEdit   Operation = "edit"
	OpDelete Operation = "delete"
)

// Status tracks an action through the apply lifecycle. Transitions only move
// forward (ready→applying→applied|error); error may be retried back to applying.
type Status string

const (
	StatusReady    Status = "ready"
	StatusApplying Status = "applying"
	StatusApplied  Status = "applied"
	StatusError    Status = "error"
)

// Action is one confirmed-or-pending logging action. Exactly one of the
// per-kind detail pointers matching Kind is non-nil.
type Action struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Operation  Operation `json:"operation"`
	Selected   bool      `json:"selected"`
	Title      string    `json:"title"`
	Confidence float64   `json:"confidence"`
	Status     Status    `json:"status"`
	Error      string    `json:"error,omitempty"`
	EntryID    string    `json:"entryId,omitempty"`

	Meal       *MealDetails       `json:"meal,omitempty"`
	Symptom    *SymptomDetails    `json:"symptom,omitempty"`
	Supplement *SupplementDetails `json:"supplement,omitempty"`
	Sleep      *SleepDetails      `json:"sleep,omitempty"`
	Shopping   *ShoppingDetails   `json:"shoppingItem,omitempty"`
	Delete     *DeleteDetails     `json:"delete,omitempty"`
}

type MealDetails struct {
	Date     string     `json:"date"`
	MealType string     `json:"mealType,omitempty"`
	Notes    string     `json:"notes,omitempty"`
	Items    []MealItem `json:"items"`
}

type SymptomDetails struct {
	SymptomName string `json:"symptomName"`
	Severity    int    `json:"severity"` // 1..10
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type SupplementDetails struct {
	Name           string  `json:"name"`
	Dosage         float64 `json:"dosage"`
	Unit           string  `json:"unit"`
	DoseCount      float64 `json:"doseCount,omitempty"`
	DoseUnit       string  `json:"doseUnit,omitempty"`
	StrengthAmount float64 `json:"strengthAmount,omitempty"`
	StrengthUnit   string  `json:"strengthUnit,omitempty"`
	Date           string  `json:"date,omitempty"`
	Time           string  `json:"time,omitempty"`
	Notes          string  `json:"notes,omitempty"`
}

type SleepDetails struct {
	Date     string   `json:"date"`
	Bedtime  string   `json:"bedtime,omitempty"`
	WakeTime string   `json:"wakeTime,omitempty"`
	Quality  int      `json:"quality"` // 1..5
	Factors  []string `json:"factors,omitempty"`
}

type ShoppingDetails struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
	Category string  `json:"category,omitempty"`
}

type DeleteDetails struct {
	TargetType Kind   `json:"targetType"`
	EntryID    string `json:"entryId"`
}

// NewID returns a fresh client-generated opaque action id.
func NewID() string { return uuid.NewString() }

// Validate checks the cross-field invariants that must hold before an action
// can be committed.
func (a *Action) Validate() error {
	if a.Operation == OpEdit || a.Operation == OpDelete {
		if a.EntryID == "" && (a.Delete == nil || a.Delete.EntryID == "") {
			return fmt.Errorf("action %q (%s %s): no entry id to target", a.Title, a.Operation, a.Kind)
		}
	}
	if a.Kind == KindMeal && a.Operation != OpDelete {
		if a.Meal == nil {
			return fmt.Errorf("action %q: meal action without meal details", a.Title)
		}
		for _, it := range a.Meal.Items {
			if it.MatchedFood == nil {
				return fmt.Errorf("action %q: item %q is not resolved yet", a.Title, it.Label)
			}
		}
	}
	return nil
}

// TargetEntryID returns the backend id this action operates on, looking at
// both the common field and the delete payload.
func (a *Action) TargetEntryID() string {
	if a.EntryID != "" {
		return a.EntryID
	}
	if a.Delete != nil {
		return a.Delete.EntryID
	}
	return ""
}

// Clone returns a deep copy. All reconciliation and async-callback paths
// update the action list through copies keyed by id, never by mutating nested
// entries in place, so late-landing callbacks cannot clobber each other.
func (a Action) Clone() Action {
	out := a
	if a.Meal != nil {
		m := *a.Meal
		m.Items = make([]MealItem, len(a.Meal.Items))
		for i, it := range a.Meal.Items {
			m.Items[i] = it.Clone()
		}
		out.Meal = &m
	}
	if a.Symptom != nil {
		s := *a.Symptom
		out.Symptom = &s
	}
	if a.Supplement != nil {
		s := *a.Supplement
		out.Supplement = &s
	}
	if a.Sleep != nil {
		s := *a.Sleep
		s.Factors = append([]string(nil), a.Sleep.Factors...)
		out.Sleep = &s
	}
	if a.Shopping != nil {
		s := *a.Shopping
		out.Shopping = &s
	}
	if a.Delete != nil {
		d := *a.Delete
		out.Delete = &d
	}
	return out
}

// FindByID returns the index of the action with the given id, or -1.
func FindByID(actions []Action, id string) int {
	for i := range actions {
		if actions[i].ID == id {
			return i
		}
	}
	return -1
}

// UpdateByID replaces the action with the given id by a structurally copied,
// updated version. Returns the new slice and whether the id was found; the
// input slice is never mutated.
func UpdateByID(actions []Action, id string, update func(Action) Action) ([]Action, bool) {
	idx := FindByID(actions, id)
	if idx < 0 {
		return actions, false
	}
	out := make([]Action, len(actions))
	copy(out, actions)
	out[idx] = update(actions[idx].Clone())
	return out, true
}

// UpdateMealItem applies a structural-copy update to one meal item, addressed
// by action id and item index. Unknown ids and out-of-range indexes are
// ignored: stale resolver callbacks for superseded actions land here and must
// be dropped, not treated as errors.
func UpdateMealItem(actions []Action, id string, itemIdx int, update func(MealItem) MealItem) ([]Action, bool) {
	idx := FindByID(actions, id)
	if idx < 0 || actions[idx].Meal == nil || itemIdx < 0 || itemIdx >= len(actions[idx].Meal.Items) {
		return actions, false
	}
	return UpdateByID(actions, id, func(a Action) Action {
		a.Meal.Items[itemIdx] = update(a.Meal.Items[itemIdx])
		return a
	})
}
