package action

// Planner wire format. The planner speaks a flat JSON shape: one object per
// proposed action with per-kind fields at the top level, no client ids and no
// lifecycle state. Conversion both ways lives here so the planner clients stay
// dumb about the action model.

type WireMealItem struct {
	Label         string  `json:"label"`
	FoodQuery     string  `json:"foodQuery,omitempty"`
	GramsConsumed float64 `json:"gramsConsumed,omitempty"`
	QuantityCount float64 `json:"quantityCount,omitempty"`
	QuantityUnit  string  `json:"quantityUnit,omitempty"`
	Servings      float64 `json:"servings,omitempty"`
}

type WireAction struct {
	Kind       string  `json:"kind"`
	Operation  string  `json:"operation,omitempty"`
	Title      string  `json:"title,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	EntryID    string  `json:"entryId,omitempty"`

	Date     string         `json:"date,omitempty"`
	MealType string         `json:"mealType,omitempty"`
	Notes    string         `json:"notes,omitempty"`
	Items    []WireMealItem `json:"items,omitempty"`

	SymptomName string `json:"symptomName,omitempty"`
	Severity    int    `json:"severity,omitempty"`
	Time        string `json:"time,omitempty"`

	Name           string  `json:"name,omitempty"`
	Dosage         float64 `json:"dosage,omitempty"`
	Unit           string  `json:"unit,omitempty"`
	DoseCount      float64 `json:"doseCount,omitempty"`
	DoseUnit       string  `json:"doseUnit,omitempty"`
	StrengthAmount float64 `json:"strengthAmount,omitempty"`
	StrengthUnit   string  `json:"strengthUnit,omitempty"`

	Bedtime  string   `json:"bedtime,omitempty"`
	WakeTime string   `json:"wakeTime,omitempty"`
	Quality  int      `json:"quality,omitempty"`
	Factors  []string `json:"factors,omitempty"`

	Quantity float64 `json:"quantity,omitempty"`
	Category string  `json:"category,omitempty"`

	TargetType string `json:"targetType,omitempty"`
}

// FromWire turns planner proposals into fresh actions: new ids, selected,
// status ready. Unknown kinds are dropped rather than guessed.
func FromWire(proposals []WireAction) []Action {
	out := make([]Action, 0, len(proposals))
	for _, w := range proposals {
		a := Action{
			ID:         NewID(),
			Kind:       Kind(w.Kind),
			Operation:  Operation(w.Operation),
			Selected:   true,
			Title:      w.Title,
			Confidence: clamp01(w.Confidence),
			Status:     StatusReady,
			EntryID:    w.EntryID,
		}
		if a.Operation == "" {
			a.Operation = OpCreate
		}
		switch a.Kind {
		case KindMeal:
			items := make([]MealItem, 0, len(w.Items))
			for _, wi := range w.Items {
				it := MealItem{
					Label:         wi.Label,
					FoodQuery:     wi.FoodQuery,
					GramsConsumed: wi.GramsConsumed,
					QuantityCount: wi.QuantityCount,
					QuantityUnit:  wi.QuantityUnit,
					Servings:      wi.Servings,
				}
				if it.FoodQuery == "" {
					it.FoodQuery = it.Label
				}
				it.Servings = DeriveServings(it)
				items = append(items, it)
			}
			a.Meal = &MealDetails{Date: w.Date, MealType: w.MealType, Notes: w.Notes, Items: items}
		case KindSymptom:
			a.Symptom = &SymptomDetails{SymptomName: w.SymptomName, Severity: clampRange(w.Severity, 1, 10), Date: w.Date, Time: w.Time, Notes: w.Notes}
		case KindSupplement:
			a.Supplement = &SupplementDetails{
				Name: w.Name, Dosage: w.Dosage, Unit: w.Unit,
				DoseCount: w.DoseCount, DoseUnit: w.DoseUnit,
				StrengthAmount: w.StrengthAmount, StrengthUnit: w.StrengthUnit,
				Date: w.Date, Time: w.Time, Notes: w.Notes,
			}
		case KindSleep:
			a.Sleep = &SleepDetails{Date: w.Date, Bedtime: w.Bedtime, WakeTime: w.WakeTime, Quality: clampRange(w.Quality, 1, 5), Factors: w.Factors}
		case KindShoppingItem:
			a.Shopping = &ShoppingDetails{Name: w.Name, Quantity: w.Quantity, Unit: w.Unit, Category: w.Category}
		case KindDelete:
			a.Delete = &DeleteDetails{TargetType: Kind(w.TargetType), EntryID: w.EntryID}
		default:
			continue
		}
		out = append(out, a)
	}
	return out
}

// ToWire projects the still-unapplied actions back into planner format so a
// follow-up turn can see what is on the table. Applied actions are summarized
// by entry id only through the recent-entries channel, not re-proposed.
func ToWire(actions []Action) []WireAction {
	out := make([]WireAction, 0, len(actions))
	for _, a := range actions {
		if a.Status == StatusApplied {
			continue
		}
		w := WireAction{
			Kind:       string(a.Kind),
			Operation:  string(a.Operation),
			Title:      a.Title,
			Confidence: a.Confidence,
			EntryID:    a.EntryID,
		}
		switch {
		case a.Meal != nil:
			w.Date, w.MealType, w.Notes = a.Meal.Date, a.Meal.MealType, a.Meal.Notes
			for _, it := range a.Meal.Items {
				w.Items = append(w.Items, WireMealItem{
					Label:         it.Label,
					FoodQuery:     it.FoodQuery,
					GramsConsumed: it.GramsConsumed,
					QuantityCount: it.QuantityCount,
					QuantityUnit:  it.QuantityUnit,
					Servings:      it.Servings,
				})
			}
		case a.Symptom != nil:
			w.SymptomName, w.Severity = a.Symptom.SymptomName, a.Symptom.Severity
			w.Date, w.Time, w.Notes = a.Symptom.Date, a.Symptom.Time, a.Symptom.Notes
		case a.Supplement != nil:
			s := a.Supplement
			w.Name, w.Dosage, w.Unit = s.Name, s.Dosage, s.Unit
			w.DoseCount, w.DoseUnit = s.DoseCount, s.DoseUnit
			w.StrengthAmount, w.StrengthUnit = s.StrengthAmount, s.StrengthUnit
			w.Date, w.Time, w.Notes = s.Date, s.Time, s.Notes
		case a.Sleep != nil:
			w.Date, w.Bedtime, w.WakeTime = a.Sleep.Date, a.Sleep.Bedtime, a.Sleep.WakeTime
			w.Quality, w.Factors = a.Sleep.Quality, a.Sleep.Factors
		case a.Shopping != nil:
			w.Name, w.Quantity, w.Unit, w.Category = a.Shopping.Name, a.Shopping.Quantity, a.Shopping.Unit, a.Shopping.Category
		case a.Delete != nil:
			w.TargetType, w.EntryID = string(a.Delete.TargetType), a.Delete.EntryID
		}
		out = append(out, w)
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func clampRange(v, lo, hi int) int {
	if v == 0 {
		return v
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
