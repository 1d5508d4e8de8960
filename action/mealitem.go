package action

import (
	"strings"
	"unicode"
)

const (
	minServings = 0.01
	maxServings = 500
)

// Candidate is one possible external food-database match for a free-text query.
type Candidate struct {
	ExternalID  string  `json:"externalId"`
	Description string  `json:"description"`
	DataType    string  `json:"dataType,omitempty"`
	BrandOwner  string  `json:"brandOwner,omitempty"`
	RankScore   float64 `json:"rankScore"`
}

// Food is the resolved detail for a matched candidate. ServingGrams is zero
// when the source does not report a serving size.
type Food struct {
	ExternalID   string  `json:"externalId"`
	Description  string  `json:"description"`
	DataType     string  `json:"dataType,omitempty"`
	ServingGrams float64 `json:"servingGrams,omitempty"`
	Calories     float64 `json:"calories,omitempty"`
	ProteinG     float64 `json:"proteinG,omitempty"`
	CarbsG       float64 `json:"carbsG,omitempty"`
	FatG         float64 `json:"fatG,omitempty"`
}

// MealItem is one food line inside a meal action.
type MealItem struct {
	Label             string      `json:"label"`
	FoodQuery         string      `json:"foodQuery"`
	GramsConsumed     float64     `json:"gramsConsumed,omitempty"`
	QuantityCount     float64     `json:"quantityCount,omitempty"`
	QuantityUnit      string      `json:"quantityUnit,omitempty"`
	Servings          float64     `json:"servings"`
	Candidates        []Candidate `json:"candidates,omitempty"`
	SelectedCandidate *Candidate  `json:"selectedCandidate,omitempty"`
	MatchedFood       *Food       `json:"matchedFood,omitempty"`
	MatchedByUser     bool        `json:"matchedByUser,omitempty"`
	IsResolving       bool        `json:"isResolving,omitempty"`
	ResolveError      string      `json:"resolveError,omitempty"`
}

func (it MealItem) Clone() MealItem {
	out := it
	out.Candidates = append([]Candidate(nil), it.Candidates...)
	if it.SelectedCandidate != nil {
		c := *it.SelectedCandidate
		out.SelectedCandidate = &c
	}
	if it.MatchedFood != nil {
		f := *it.MatchedFood
		out.MatchedFood = &f
	}
	return out
}

// ClampServings bounds a servings estimate to a sane range.
func ClampServings(s float64) float64 {
	if s < minServings {
		return minServings
	}
	if s > maxServings {
		return maxServings
	}
	return s
}

// DeriveServings recomputes the servings estimate for an item. When a gram
// amount and a matched food with a known serving size are both present, the
// ratio wins over any direct count; otherwise the best direct estimate stands.
func DeriveServings(it MealItem) float64 {
	if it.GramsConsumed > 0 && it.MatchedFood != nil && it.MatchedFood.ServingGrams > 0 {
		return ClampServings(it.GramsConsumed / it.MatchedFood.ServingGrams)
	}
	if it.QuantityCount > 0 {
		return ClampServings(it.QuantityCount)
	}
	if it.Servings > 0 {
		return ClampServings(it.Servings)
	}
	return 1
}

// NormalizeLabel lowercases and strips punctuation so "Chicken-Breast," and
// "chicken breast" compare equal.
func NormalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// DedupeMealItems merges items whose normalized label or query collide.
// Gram and count totals are summed; the first non-empty resolution wins.
func DedupeMealItems(items []MealItem) []MealItem {
	out := make([]MealItem, 0, len(items))
	index := map[string]int{}

	keyOf := func(it MealItem) string {
		k := NormalizeLabel(it.Label)
		if k == "" {
			k = NormalizeLabel(it.FoodQuery)
		}
		return k
	}

	for _, it := range items {
		k := keyOf(it)
		if k == "" {
			out = append(out, it.Clone())
			continue
		}
		if i, ok := index[k]; ok {
			out[i] = mergeItems(out[i], it)
			continue
		}
		index[k] = len(out)
		out = append(out, it.Clone())
	}

	for i := range out {
		out[i].Servings = DeriveServings(out[i])
	}
	return out
}

func mergeItems(a, b MealItem) MealItem {
	merged := a.Clone()
	merged.GramsConsumed += b.GramsConsumed
	merged.QuantityCount += b.QuantityCount
	if merged.QuantityUnit == "" {
		merged.QuantityUnit = b.QuantityUnit
	}
	if merged.MatchedFood == nil && b.MatchedFood != nil {
		f := *b.MatchedFood
		merged.MatchedFood = &f
		merged.MatchedByUser = b.MatchedByUser
		merged.SelectedCandidate = b.SelectedCandidate
		merged.Candidates = append([]Candidate(nil), b.Candidates...)
	}
	if merged.FoodQuery == "" {
		merged.FoodQuery = b.FoodQuery
	}
	return merged
}
