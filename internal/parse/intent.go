package parse

import "strings"

// Intent is the outcome of classifying a confirmation answer.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentAffirmative
	IntentNegative
)

func (i Intent) String() string {
	switch i {
	case IntentAffirmative:
		return "affirmative"
	case IntentNegative:
		return "negative"
	default:
		return "unknown"
	}
}

var (
	affirmativeWords = []string{"yes", "yeah", "confirm", "sure", "do it", "please", "absolutely"}
	negativeWords    = []string{"no", "not yet", "hold", "wait", "stop", "cancel"}
)

// Affirmative reports whether text contains any affirmative keyword.
// Matching is by case-insensitive substring.
func Affirmative(text string) bool {
	return containsAny(strings.ToLower(text), affirmativeWords)
}

// Negative reports whether text contains any negative keyword.
// Matching is by case-insensitive substring, so "know" and "now" count.
func Negative(text string) bool {
	return containsAny(strings.ToLower(text), negativeWords)
}

// Classify combines Affirmative and Negative. When both match, as in
// "yes, but wait", the answer is negative: nothing is saved on a mixed reply.
func Classify(text string) Intent {
	switch {
	case Negative(text):
		return IntentNegative
	case Affirmative(text):
		return IntentAffirmative
	default:
		return IntentUnknown
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
