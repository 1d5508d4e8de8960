// Package mention extracts quantity/unit and dose/strength mentions from raw
// utterance text. The grammar is a fixed cascade over a bounded vocabulary of
// household units, mass units, dose units, and number words; anything outside
// it is left alone rather than guessed.
package mention

import "strings"

// Kind distinguishes count-style mentions ("3 pancakes", "2 cups of rice")
// from mass mentions ("16oz of chicken").
type Kind string

const (
	KindCount Kind = "count"
	KindMass  Kind = "mass"
)

// Mention is one recognized span. Start/End mark the claimed byte range in
// the input so looser pattern families cannot re-claim it.
type Mention struct {
	Kind  Kind
	Count float64
	Unit  string // canonical singular form
	Hint  string // bounded trailing clause, used for matching to an item
	Raw   string
	Start int
	End   int
}

// Grams converts a mass mention to grams. Count mentions return 0.
func (m Mention) Grams() float64 {
	if m.Kind != KindMass {
		return 0
	}
	switch m.Unit {
	case "g":
		return m.Count
	case "kg":
		return m.Count * 1000
	case "oz":
		return m.Count * 28.35
	case "lb":
		return m.Count * 453.6
	}
	return 0
}

// massUnits maps every accepted spelling to its canonical short form.
var massUnits = map[string]string{
	"g": "g", "gram": "g", "grams": "g",
	"kg": "kg", "kilogram": "kg", "kilograms": "kg", "kilo": "kg", "kilos": "kg",
	"oz": "oz", "ounce": "oz", "ounces": "oz",
	"lb": "lb", "lbs": "lb", "pound": "lb", "pounds": "lb",
}

// householdUnits folds plurals and abbreviations to a canonical singular.
var householdUnits = map[string]string{
	"cup": "cup", "cups": "cup",
	"tablespoon": "tablespoon", "tablespoons": "tablespoon", "tbsp": "tablespoon", "tbs": "tablespoon",
	"teaspoon": "teaspoon", "teaspoons": "teaspoon", "tsp": "teaspoon",
	"slice": "slice", "slices": "slice",
	"piece": "piece", "pieces": "piece",
	"serving": "serving", "servings": "serving",
	"scoop": "scoop", "scoops": "scoop",
	"handful": "handful", "handfuls": "handful",
	"glass": "glass", "glasses": "glass",
	"bowl": "bowl", "bowls": "bowl",
	"plate": "plate", "plates": "plate",
	"bottle": "bottle", "bottles": "bottle",
	"can": "can", "cans": "can",
	"bar": "bar", "bars": "bar",
	"packet": "packet", "packets": "packet",
	"stick": "stick", "sticks": "stick",
	"clove": "clove", "cloves": "clove",
	"bite": "bite", "bites": "bite",
}

// strengthUnits are the dose strength units accepted by the supplement grammar.
var strengthUnits = map[string]string{
	"mg": "mg", "milligram": "mg", "milligrams": "mg",
	"mcg": "mcg", "microgram": "mcg", "micrograms": "mcg", "ug": "mcg",
	"iu": "IU",
	"ml": "ml", "milliliter": "ml", "milliliters": "ml",
	"g": "g",
}

// doseUnits are the countable supplement forms.
var doseUnits = map[string]string{
	"tablet": "tablet", "tablets": "tablet", "tab": "tablet", "tabs": "tablet",
	"capsule": "capsule", "capsules": "capsule", "cap": "capsule", "caps": "capsule",
	"pill": "pill", "pills": "pill",
	"softgel": "softgel", "softgels": "softgel",
	"gummy": "gummy", "gummies": "gummy",
	"drop": "drop", "drops": "drop",
	"spray": "spray", "sprays": "spray",
	"scoop": "scoop", "scoops": "scoop",
	"dose": "dose", "doses": "dose",
	"lozenge": "lozenge", "lozenges": "lozenge",
}

// numberWords accepts spoken counts. "a"/"an" read as one.
var numberWords = map[string]float64{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
	"twelve": 12, "half": 0.5, "couple": 2, "few": 3,
}

// hintStoppers end the trailing hint clause.
var hintStoppers = map[string]bool{
	"and": true, "with": true, "plus": true, "then": true, "also": true,
	"for": true, "at": true, "but": true, "or": true,
}

// trimHint bounds a trailing clause: it stops at the first conjunction and at
// punctuation, so "with syrup" collapses to "" and "grilled chicken, then ran"
// collapses to "grilled chicken".
func trimHint(s string) string {
	s = strings.TrimSpace(s)
	var kept []string
	for _, f := range strings.Fields(s) {
		trimmed := strings.TrimRight(f, ".,;!?")
		if hintStoppers[strings.ToLower(trimmed)] {
			break
		}
		kept = append(kept, trimmed)
		if trimmed != f {
			break // hit punctuation
		}
		if len(kept) >= 6 {
			break
		}
	}
	return strings.Join(kept, " ")
}

// singular folds a simple English plural; good enough for food nouns in the
// bounded grammar ("pancakes" → "pancake", "berries" → "berry").
func singular(w string) string {
	switch {
	case strings.HasSuffix(w, "ies") && len(w) > 3:
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(w, "ses") || strings.HasSuffix(w, "xes") || strings.HasSuffix(w, "ches") || strings.HasSuffix(w, "shes"):
		return w[:len(w)-2]
	case strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") && len(w) > 2:
		return w[:len(w)-1]
	}
	return w
}
