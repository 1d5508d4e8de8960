package voice

import (
	"strings"
)

// Verdict is the outcome of the fast, deterministic consent check.
type Verdict string

const (
	VerdictConfirm Verdict = "confirm"
	VerdictCancel  Verdict = "cancel"
	VerdictRepeat  Verdict = "repeat"
	VerdictUnknown Verdict = "unknown" // escalate or reroute
)

// Exact phrases recognized without a model round-trip. Matching is on the
// whole normalized utterance, not substrings: "no worries, log it" must not
// hit the "no" entry.
var (
	confirmPhrases = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "yup": true,
		"confirm": true, "confirmed": true, "do it": true, "go ahead": true,
		"sure": true, "correct": true, "ok": true, "okay": true,
		"sounds good": true, "yes please": true, "log it": true, "save it": true,
	}
	cancelPhrases = map[string]bool{
		"no": true, "nope": true, "nah": true,
		"cancel": true, "stop": true, "never mind": true, "nevermind": true,
		"don't": true, "do not": true, "forget it": true, "no thanks": true,
	}
	repeatPhrases = map[string]bool{
		"repeat": true, "say again": true, "say that again": true,
		"what": true, "what was that": true, "pardon": true,
	}
)

// ClassifyPhrase is tier one of consent handling: an exact match against the
// known phrase lists. Anything else is VerdictUnknown and the caller decides
// whether the utterance is short enough to escalate to the model tier.
func ClassifyPhrase(text string) Verdict {
	norm := normalizeUtterance(text)
	switch {
	case confirmPhrases[norm]:
		return VerdictConfirm
	case cancelPhrases[norm]:
		return VerdictCancel
	case repeatPhrases[norm]:
		return VerdictRepeat
	}
	return VerdictUnknown
}

// WordCount counts whitespace-separated words after normalization; the
// escalation threshold is expressed in words, not bytes.
func WordCount(text string) int {
	return len(strings.Fields(normalizeUtterance(text)))
}

func normalizeUtterance(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.Trim(t, ".,!?")
	return strings.Join(strings.Fields(t), " ")
}
