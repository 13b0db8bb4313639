package booking

import (
	"strings"
	"time"
)

// FieldError is a single rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every field a booking failed on, in field order.
type ValidationError struct {
	Fields []FieldError
}

func (v *ValidationError) Error() string {
	if v == nil || len(v.Fields) == 0 {
		return "validation failed"
	}
	return "validation failed: " + strings.Join(v.Messages(), " ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Fields) > 0
}

// Messages returns the user-facing message of each field error.
func (v *ValidationError) Messages() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.Fields))
	for i, f := range v.Fields {
		out[i] = f.Message
	}
	return out
}

func (v *ValidationError) add(field, message string) {
	v.Fields = append(v.Fields, FieldError{Field: field, Message: message})
}

// validated is an Input after trimming, with its date resolved.
type validated struct {
	Input
	day time.Time
}

// validate trims in and checks it against today's calendar day in now's
// location. city falls back to defaultCity.
func validate(in Input, now time.Time, defaultCity string) (validated, *ValidationError) {
	verr := &ValidationError{}
	out := validated{Input: in}

	out.CustomerName = strings.TrimSpace(in.CustomerName)
	if out.CustomerName == "" {
		verr.add("customerName", "Customer name is required.")
	}

	if in.NumberOfGuests <= 0 {
		verr.add("numberOfGuests", "numberOfGuests must be a number greater than zero.")
	}

	day, ok := parseDay(strings.TrimSpace(in.Date), now.Location())
	switch {
	case !ok:
		verr.add("bookingDate", "bookingDate must be a valid date.")
	case !day.After(startOfDay(now)):
		verr.add("bookingDate", "bookingDate must be in the future.")
	default:
		out.day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	}

	out.Time = strings.TrimSpace(in.Time)
	if out.Time == "" {
		verr.add("bookingTime", "bookingTime is required.")
	}

	out.CuisinePreference = strings.TrimSpace(in.CuisinePreference)
	if out.CuisinePreference == "" {
		verr.add("cuisinePreference", "cuisinePreference is required.")
	}

	out.SpecialRequests = strings.TrimSpace(in.SpecialRequests)
	out.City = strings.TrimSpace(in.City)
	if out.City == "" {
		out.City = defaultCity
	}

	if verr.HasErrors() {
		return validated{}, verr
	}
	return out, nil
}

// Validate reports the field errors of in, or nil when it is acceptable.
func Validate(in Input, now time.Time) *ValidationError {
	_, verr := validate(in, now, "")
	return verr
}

// parseDay reads a calendar day. RFC 3339 timestamps keep their own date.
func parseDay(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
	}
	return time.Time{}, false
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
