package mention

import (
	"strings"

	"voicelog/action"
)

// Enrich applies every extracted mention in the raw turn text to the best
// matching action. Matching is best-effort token overlap: a mention with no
// overlapping item is dropped silently, never an error.
func Enrich(actions []action.Action, text string) []action.Action {
	if len(actions) == 0 || strings.TrimSpace(text) == "" {
		return actions
	}
	out := make([]action.Action, len(actions))
	for i, a := range actions {
		out[i] = a.Clone()
	}

	for _, m := range ExtractQuantities(text) {
		applyQuantity(out, m)
	}
	for _, d := range ExtractDoses(text) {
		applyDose(out, d)
	}
	return out
}

// applyQuantity assigns a quantity mention to the meal item with the highest
// token overlap against the mention's hint and unit noun. Ties go to the
// first occurrence in list order.
func applyQuantity(actions []action.Action, m Mention) {
	mentionTokens := tokenSet(m.Hint + " " + m.Unit)

	bestScore := 0
	bestAction, bestItem := -1, -1
	for ai := range actions {
		a := &actions[ai]
		if a.Kind != action.KindMeal || a.Meal == nil || a.Status == action.StatusApplied {
			continue
		}
		for ii := range a.Meal.Items {
			it := &a.Meal.Items[ii]
			score := overlap(mentionTokens, tokenSet(it.Label+" "+it.FoodQuery))
			if score > bestScore {
				bestScore = score
				bestAction, bestItem = ai, ii
			}
		}
	}
	if bestScore == 0 {
		return
	}

	it := &actions[bestAction].Meal.Items[bestItem]
	if m.Kind == KindMass {
		it.GramsConsumed = m.Grams()
	} else {
		it.QuantityCount = m.Count
		it.QuantityUnit = m.Unit
	}
	it.Servings = action.DeriveServings(*it)
}

// applyDose assigns a dose mention to the supplement action whose name best
// overlaps the hint.
func applyDose(actions []action.Action, d Dose) {
	hintTokens := tokenSet(d.Hint)

	bestScore := 0
	best := -1
	for ai := range actions {
		a := &actions[ai]
		if a.Kind != action.KindSupplement || a.Supplement == nil || a.Status == action.StatusApplied {
			continue
		}
		score := overlap(hintTokens, tokenSet(a.Supplement.Name))
		if score > bestScore {
			bestScore = score
			best = ai
		}
	}
	if best < 0 {
		// a lone supplement action can claim a hint-less dose mention
		if len(hintTokens) == 0 {
			for ai := range actions {
				if actions[ai].Kind == action.KindSupplement && actions[ai].Supplement != nil && actions[ai].Status != action.StatusApplied {
					if best >= 0 {
						return // ambiguous, drop
					}
					best = ai
				}
			}
		}
		if best < 0 {
			return
		}
	}

	s := actions[best].Supplement
	if d.DoseCount > 0 {
		s.DoseCount = d.DoseCount
	}
	if d.DoseUnit != "" {
		s.DoseUnit = d.DoseUnit
	}
	if d.StrengthAmount > 0 {
		s.StrengthAmount = d.StrengthAmount
		s.StrengthUnit = d.StrengthUnit
		if s.Dosage == 0 {
			s.Dosage = d.StrengthAmount
			s.Unit = d.StrengthUnit
		}
	}
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, f := range strings.Fields(action.NormalizeLabel(s)) {
		out[singular(f)] = true
	}
	return out
}

func overlap(a, b map[string]bool) int {
	n := 0
	for t := range a {
		if b[t] {
			n++
		}
	}
	return n
}
