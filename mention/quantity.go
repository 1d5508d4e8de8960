package mention

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const numPat = `(\d+(?:\.\d+)?(?:\s*/\s*\d+)?|an?|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve|half|couple|few)`

func altOf(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// longest first so "tablespoons" wins over "tablespoon" prefixes
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	return strings.Join(keys, "|")
}

var (
	// claimed by the dose grammar; the quantity cascade must not re-read it
	comboClaimRe = regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s*[x×]\s*\d+(?:\.\d+)?\s*(?:` + altOf(strengthUnits) + `)\b`)

	massRe      = regexp.MustCompile(`(?i)\b` + numPat + `\s*(` + altOf(massUnits) + `)\b(?:\s+(?:of\s+)?([^.,;!?]+))?`)
	householdRe = regexp.MustCompile(`(?i)\b` + numPat + `\s+(` + altOf(householdUnits) + `)\b(?:\s+(?:of\s+)?([^.,;!?]+))?`)
	genericRe   = regexp.MustCompile(`(?i)\b` + numPat + `\s+([a-z]+)\b(?:\s+([^.,;!?]+))?`)
)

// words a generic count can never attach to
var notFoodNouns = map[string]bool{
	"of": true, "the": true, "more": true, "less": true, "times": true,
	"minutes": true, "minute": true, "hours": true, "hour": true,
	"days": true, "day": true, "percent": true, "am": true, "pm": true,
	"o'clock": true, "people": true, "stars": true,
}

type span struct{ start, end int }

func overlaps(claimed []span, s, e int) bool {
	for _, c := range claimed {
		if s < c.end && e > c.start {
			return true
		}
	}
	return false
}

// ExtractQuantities scans text for count+unit and mass mentions. The pattern
// cascade runs most-specific first; each accepted match claims its span so
// looser families cannot re-claim it. Mentions come back in text order.
func ExtractQuantities(text string) []Mention {
	var claimed []span
	var out []Mention

	// Dose combos like "2x200mg" belong to the supplement grammar; claim them
	// here so their digits never read as food counts.
	for _, loc := range comboClaimRe.FindAllStringIndex(text, -1) {
		claimed = append(claimed, span{loc[0], loc[1]})
	}

	// 1) mass mentions
	for _, m := range massRe.FindAllStringSubmatchIndex(text, -1) {
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
		out = append(out, Mention{
			Kind:  KindMass,
			Count: count,
			Unit:  massUnits[strings.ToLower(text[m[4]:m[5]])],
			Hint:  hint,
			Raw:   text[m[0]:m[5]],
			Start: m[0],
			End:   m[5],
		})
	}

	// 2) counts with a known household unit
	for _, m := range householdRe.FindAllStringSubmatchIndex(text, -1) {
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
		out = append(out, Mention{
			Kind:  KindCount,
			Count: count,
			Unit:  householdUnits[strings.ToLower(text[m[4]:m[5]])],
			Hint:  hint,
			Raw:   text[m[0]:m[5]],
			Start: m[0],
			End:   m[5],
		})
	}

	// 3) bare count + food noun ("3 pancakes")
	for _, m := range genericRe.FindAllStringSubmatchIndex(text, -1) {
		if overlaps(claimed, m[0], m[5]) {
			continue
		}
		noun := strings.ToLower(text[m[4]:m[5]])
		if notFoodNouns[noun] || doseUnits[noun] != "" || strengthUnits[noun] != "" {
			continue
		}
		if _, isNum := numberWords[noun]; isNum {
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
		out = append(out, Mention{
			Kind:  KindCount,
			Count: count,
			Unit:  singular(noun),
			Hint:  hint,
			Raw:   text[m[0]:m[5]],
			Start: m[0],
			End:   m[5],
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// parseCount accepts digits, simple fractions, and the number-word vocabulary.
func parseCount(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if v, ok := numberWords[s]; ok {
		return v, true
	}
	if num, den, found := strings.Cut(s, "/"); found {
		n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}
