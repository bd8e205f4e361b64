package review

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Match classifies a recall attempt against the card's back text. The
// classification is advisory feedback only; the learner still grades
// themselves afterwards.
type Match int

const (
	MatchExact Match = iota
	MatchNearMiss
	MatchPartial
	MatchNone
)

// nearMissDistance is the edit distance up to which an attempt counts
// as a typo rather than a wrong answer.
const nearMissDistance = 2

// partialOverlap is the token-overlap ratio above which an attempt
// counts as a partial recall.
const partialOverlap = 0.5

// stripDiacritics removes combining marks after NFD decomposition, so
// "café" and "cafe" compare equal.
var stripDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// normalizeAnswer case-folds, strips diacritics and collapses
// whitespace. Both the attempt and the stored back text go through it
// before comparison.
func normalizeAnswer(s string) string {
	out, _, err := transform.String(stripDiacritics, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	return strings.Join(strings.Fields(out), " ")
}

// Classify compares a recall attempt with the card's back text.
func Classify(attempt, back string) Match {
	a := normalizeAnswer(attempt)
	b := normalizeAnswer(back)

	if a == b {
		return MatchExact
	}
	if a != "" && levenshtein.ComputeDistance(a, b) <= nearMissDistance {
		return MatchNearMiss
	}
	if tokenOverlap(a, b) >= partialOverlap {
		return MatchPartial
	}
	return MatchNone
}

// tokenOverlap is the share of the back text's tokens that appear in
// the attempt.
func tokenOverlap(attempt, back string) float64 {
	backTokens := strings.Fields(back)
	if len(backTokens) == 0 {
		return 0
	}

	attemptSet := make(map[string]bool)
	for _, tok := range strings.Fields(attempt) {
		attemptSet[tok] = true
	}

	hits := 0
	for _, tok := range backTokens {
		if attemptSet[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(backTokens))
}
