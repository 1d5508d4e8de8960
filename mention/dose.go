package mention

import (
	"regexp"
	"sort"
	"strings"
)

// Dose is a supplement dose/strength mention. A combo like "2x200mg" fills
// both the count and the strength; "400 mg" fills strength only; "two
// capsules" fills count and dose unit only.
type Dose struct {
	DoseCount      float64
	DoseUnit       string
	StrengthAmount float64
	StrengthUnit   string
	Hint           string
	Raw            string
	Start          int
	End            int
}

var (
	comboRe = regexp.MustCompile(`(?i)\b` + numPat + `\s*[x×]\s*(\d+(?:\.\d+)?)\s*(` + altOf(strengthUnits) + `)\b(?:\s+(?:of\s+)?([^.,;!?]+))?`)

	strengthRe = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(` + altOf(strengthUnits) + `)\b(?:\s+(?:of\s+)?([^.,;!?]+))?`)

	doseCountRe = regexp.MustCompile(`(?i)\b` + numPat + `\s+(` + altOf(doseUnits) + `)\b(?:\s+(?:of\s+)?([^.,;!?]+))?`)
)

// ExtractDoses scans text for supplement dose mentions, most-specific pattern
// first with span claiming, same discipline as the quantity cascade.
func ExtractDoses(text string) []Dose {
	var claimed []span
	var out []Dose

	// 1) combo: "2x200mg ibuprofen"
	for _, m := range comboRe.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(claimed, m[0], m[7]) {
			continue
		}
		count, ok := parseCount(text[m[2]:m[3]])
		if !ok {
			continue
		}
		amount, ok := parseCount(text[m[4]:m[5]])
		if !ok {
			continue
		}
		hint := ""
		if m[8] >= 0 {
			hint = trimHint(text[m[8]:m[9]])
		}
		claimed = append(claimed, span{m[0], m[7]})
		out = append(out, Dose{
			DoseCount:      count,
			StrengthAmount: amount,
			StrengthUnit:   strengthUnits[strings.ToLower(text[m[6]:m[7]])],
			Hint:           hint,
			Raw:            text[m[0]:m[7]],
			Start:          m[0],
			End:            m[7],
		})
	}

	// 2) bare strength: "400 mg ibuprofen"
	for _, m := range strengthRe.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(claimed, m[0], m[5]) {
			continue
		}
		amount, ok := parseCount(text[m[2]:m[3]])
		if !ok {
			continue
		}
		hint := ""
		if m[6] >= 0 {
			hint = trimHint(text[m[6]:m[7]])
		}
		claimed = append(claimed, span{m[0], m[5]})
		out = append(out, Dose{
			StrengthAmount: amount,
			StrengthUnit:   strengthUnits[strings.ToLower(text[m[4]:m[5]])],
			Hint:           hint,
			Raw:            text[m[0]:m[5]],
			Start:          m[0],
			End:            m[5],
		})
	}

	// 3) countable form: "two capsules of fish oil"
	for _, m := range doseCountRe.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(claimed, m[0], m[5]) {
			continue
		}
		count, ok := parseCount(text[m[2]:m[3]])
		if !ok {
			continue
		}
		hint := ""
		if m[6] >= 0 {
			hint = trimHint(text[m[6]:m[7]])
		}
		claimed = append(claimed, span{m[0], m[5]})
		out = append(out, Dose{
			DoseCount: count,
			DoseUnit:  doseUnits[strings.ToLower(text[m[4]:m[5]])],
			Hint:      hint,
			Raw:       text[m[0]:m[5]],
			Start:     m[0],
			End:       m[5],
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
