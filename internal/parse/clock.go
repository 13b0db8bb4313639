package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var clockPattern = regexp.MustCompile(`(?i)(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`)

// Time converts expressions like "7 pm", "7:30PM" or "19:00" into a
// zero-padded 24-hour "HH:MM". An am/pm marker on an hour above 12 is
// rejected, so "13 pm" is unparsed while "13:00" is not.
func Time(text string) (string, bool) {
	m := clockPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute := 0
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}

	marker := strings.ToLower(m[3])
	if marker != "" && hour > 12 {
		return "", false
	}
	switch marker {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}

	if hour > 23 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}
