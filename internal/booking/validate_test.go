package booking

import (
	"slices"
	"testing"
	"time"
)

var now = time.Date(2026, time.October, 14, 18, 0, 0, 0, time.UTC)

func validInput() Input {
	return Input{
		CustomerName:      "  Alice ",
		NumberOfGuests:    4,
		Date:              "2026-12-20",
		Time:              " 19:00 ",
		CuisinePreference: "Italian",
		SpecialRequests:   " window seat ",
	}
}

func TestValidateAccepts(t *testing.T) {
	v, verr := validate(validInput(), now, "New York")
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if v.CustomerName != "Alice" || v.Time != "19:00" || v.SpecialRequests != "window seat" {
		t.Errorf("fields not trimmed: %+v", v.Input)
	}
	if v.City != "New York" {
		t.Errorf("City = %q, want default", v.City)
	}
	if want := time.Date(2026, time.December, 20, 0, 0, 0, 0, time.UTC); !v.day.Equal(want) {
		t.Errorf("day = %s, want %s", v.day, want)
	}
}

func TestValidateRFC3339Date(t *testing.T) {
	in := validInput()
	in.Date = "2026-12-20T00:00:00.000Z"
	if _, verr := validate(in, now, ""); verr != nil {
		t.Fatalf("RFC 3339 date rejected: %v", verr)
	}
}

func TestValidateReportsEveryField(t *testing.T) {
	verr := Validate(Input{}, now)
	if !verr.HasErrors() {
		t.Fatal("expected validation errors")
	}

	want := []string{
		"Customer name is required.",
		"numberOfGuests must be a number greater than zero.",
		"bookingDate must be a valid date.",
		"bookingTime is required.",
		"cuisinePreference is required.",
	}
	if got := verr.Messages(); !slices.Equal(got, want) {
		t.Errorf("Messages() = %q, want %q", got, want)
	}
}

func TestValidatePastAndTodayDates(t *testing.T) {
	for _, date := range []string{"2026-10-14", "2026-10-13", "2020-01-01"} {
		in := validInput()
		in.Date = date
		verr := Validate(in, now)
		if !verr.HasErrors() {
			t.Errorf("date %s accepted, want rejection", date)
			continue
		}
		if got := verr.Messages(); len(got) != 1 || got[0] != "bookingDate must be in the future." {
			t.Errorf("date %s: Messages() = %q", date, got)
		}
	}
}

func TestValidateGarbageDate(t *testing.T) {
	in := validInput()
	in.Date = "next-ish week"
	verr := Validate(in, now)
	if got := verr.Messages(); len(got) != 1 || got[0] != "bookingDate must be a valid date." {
		t.Errorf("Messages() = %q", got)
	}
}

func TestValidationErrorNil(t *testing.T) {
	var verr *ValidationError
	if verr.HasErrors() {
		t.Error("nil ValidationError should have no errors")
	}
	if verr.Messages() != nil {
		t.Error("nil ValidationError should have no messages")
	}
}
