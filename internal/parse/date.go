package parse

import (
	"regexp"
	"strings"
	"time"
)

var ordinalSuffix = regexp.MustCompile(`(?i)(\d+)(st|nd|rd|th)`)

// StripOrdinals rewrites "1st", "22nd", "3rd", "20th" to bare numbers.
func StripOrdinals(text string) string {
	return ordinalSuffix.ReplaceAllString(text, "$1")
}

var (
	yearLayouts = []string{
		"2006-01-02",
		"2006-1-2",
		"1/2/2006",
		"1-2-2006",
		"January 2 2006",
		"Jan 2 2006",
		"2 January 2006",
		"2 Jan 2006",
	}
	noYearLayouts = []string{
		"1/2",
		"January 2",
		"Jan 2",
		"2 January",
		"2 Jan",
	}

	// Dropped before layout matching.
	fillerWords = map[string]bool{
		"on": true, "the": true, "of": true, "for": true, "this": true, "coming": true,
		"monday": true, "tuesday": true, "wednesday": true, "thursday": true,
		"friday": true, "saturday": true, "sunday": true,
		"mon": true, "tue": true, "tues": true, "wed": true, "thu": true, "thur": true, "thurs": true,
		"fri": true, "sat": true, "sun": true,
	}

	// Longer phrases first so "day after tomorrow" is not read as "tomorrow".
	relativeDays = []struct {
		phrase string
		offset int
	}{
		{"day after tomorrow", 2},
		{"tomorrow", 1},
		{"today", 0},
		{"tonight", 0},
		{"yesterday", -1},
	}
)

// maxWindow is the longest token run tried as a date, e.g. "december 20 2026".
const maxWindow = 3

// Date resolves text to a calendar date strictly after the calendar day of
// now, in now's location. A date without a year is placed in now's year;
// if that day has passed the text is rejected rather than moved to next year.
func Date(text string, now time.Time) (time.Time, bool) {
	today := civil(now)
	d, ok := resolveDate(text, now)
	if !ok || !d.After(today) {
		return time.Time{}, false
	}
	return d, true
}

func resolveDate(text string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(strings.TrimSpace(StripOrdinals(text)))
	s = strings.NewReplacer(",", " ", ".", " ", "!", " ", "?", " ").Replace(s)

	for _, rd := range relativeDays {
		if containsPhrase(s, rd.phrase) {
			return civil(now).AddDate(0, 0, rd.offset), true
		}
	}

	var tokens []string
	for _, f := range strings.Fields(s) {
		if !fillerWords[f] {
			tokens = append(tokens, f)
		}
	}

	for size := min(maxWindow, len(tokens)); size > 0; size-- {
		for start := 0; start+size <= len(tokens); start++ {
			if d, ok := parseCandidate(strings.Join(tokens[start:start+size], " "), now); ok {
				return d, true
			}
		}
	}
	return time.Time{}, false
}

func parseCandidate(s string, now time.Time) (time.Time, bool) {
	for _, layout := range yearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return inLocation(t.Year(), t.Month(), t.Day(), now.Location())
		}
	}
	for _, layout := range noYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return inLocation(now.Year(), t.Month(), t.Day(), now.Location())
		}
	}
	return time.Time{}, false
}

// inLocation builds local midnight and rejects days that time.Date would
// normalise into the next month (February 29 outside a leap year).
func inLocation(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	if d.Month() != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func containsPhrase(s, phrase string) bool {
	return strings.Contains(" "+strings.Join(strings.Fields(s), " ")+" ", " "+phrase+" ")
}
