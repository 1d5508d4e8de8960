package apply

import (
	"fmt"
	"strings"

	"voicelog/action"
)

// Receipt is the post-commit summary appended to the conversation transcript.
// It keeps the applied action ids so a later turn can edit the same entries
// in place.
type Receipt struct {
	Lines     []string
	ActionIDs []string
}

func (r *Receipt) add(a action.Action) {
	r.Lines = append(r.Lines, describe(a))
	r.ActionIDs = append(r.ActionIDs, a.ID)
}

// Text joins the receipt into one speakable paragraph.
func (r Receipt) Text() string {
	return strings.Join(r.Lines, " ")
}

func (r Receipt) Empty() bool { return len(r.Lines) == 0 }

func verb(op action.Operation) string {
	switch op {
	case action.OpEdit:
		return "Update"
	case action.OpDelete:
		return "Delete"
	}
	return "Log"
}

func describe(a action.Action) string {
	switch a.Kind {
	case action.KindMeal:
		name := a.Meal.MealType
		if name == "" {
			name = "meal"
		}
		labels := make([]string, 0, len(a.Meal.Items))
		for _, it := range a.Meal.Items {
			labels = append(labels, it.Label)
		}
		return fmt.Sprintf("%s %s: %s.", verb(a.Operation), name, strings.Join(labels, ", "))

	case action.KindSymptom:
		return fmt.Sprintf("%s symptom: %s (severity %d).", verb(a.Operation), a.Symptom.SymptomName, a.Symptom.Severity)

	case action.KindSupplement:
		s := a.Supplement
		dose := ""
		if s.Dosage > 0 {
			dose = fmt.Sprintf(" %s %s", trimFloat(s.Dosage), s.Unit)
		}
		return fmt.Sprintf("%s supplement: %s%s.", verb(a.Operation), s.Name, dose)

	case action.KindSleep:
		window := ""
		if a.Sleep.Bedtime != "" && a.Sleep.WakeTime != "" {
			window = fmt.Sprintf(" %s to %s,", a.Sleep.Bedtime, a.Sleep.WakeTime)
		}
		return fmt.Sprintf("%s sleep:%s quality %d.", verb(a.Operation), window, a.Sleep.Quality)

	case action.KindShoppingItem:
		qty := ""
		if a.Shopping.Quantity > 0 {
			qty = " (" + trimFloat(a.Shopping.Quantity)
			if a.Shopping.Unit != "" {
				qty += " " + a.Shopping.Unit
			}
			qty += ")"
		}
		if a.Operation == action.OpCreate {
			return fmt.Sprintf("Add to shopping list: %s%s.", a.Shopping.Name, qty)
		}
		return fmt.Sprintf("%s shopping item: %s%s.", verb(a.Operation), a.Shopping.Name, qty)

	case action.KindDelete:
		return fmt.Sprintf("Delete %s entry.", a.Delete.TargetType)
	}
	return fmt.Sprintf("%s %s.", verb(a.Operation), a.Title)
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
