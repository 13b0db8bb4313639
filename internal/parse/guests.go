// Package parse extracts reservation fields from finalized utterance text.
//
// Every function reports failure through its boolean result; malformed input
// is an expected case and never produces an error.
package parse

import (
	"regexp"
	"strconv"
)

var digitRun = regexp.MustCompile(`\d+`)

// Guests returns the first run of digits in text as a positive party size.
// Spelled-out numbers ("four") are not recognised.
func Guests(text string) (int, bool) {
	m := digitRun.FindString(text)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
