// Package booking validates and persists restaurant reservations.
package booking

import (
	"errors"
	"time"

	"github.com/kalambet/tablevoice/internal/weather"
)

// ErrNotFound is returned when a requested booking does not exist.
var ErrNotFound = errors.New("booking not found")

const StatusConfirmed = "confirmed"

// Booking is a saved reservation. Date carries only the calendar day, at
// UTC midnight.
type Booking struct {
	ID                string          `json:"bookingId"`
	CustomerName      string          `json:"customerName"`
	NumberOfGuests    int             `json:"numberOfGuests"`
	Date              time.Time       `json:"bookingDate"`
	Time              string          `json:"bookingTime"`
	CuisinePreference string          `json:"cuisinePreference"`
	SpecialRequests   string          `json:"specialRequests"`
	City              string          `json:"city"`
	Weather           weather.Insight `json:"weatherInfo"`
	Seating           weather.Seating `json:"seatingPreference"`
	Status            string          `json:"status"`
	SessionID         string          `json:"sessionId,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// Input is an unsaved booking as received from the API or a conversation.
// Date accepts "2006-01-02" or RFC 3339. Weather is looked up when nil.
type Input struct {
	CustomerName      string           `json:"customerName"`
	NumberOfGuests    int              `json:"numberOfGuests"`
	Date              string           `json:"bookingDate"`
	Time              string           `json:"bookingTime"`
	CuisinePreference string           `json:"cuisinePreference"`
	SpecialRequests   string           `json:"specialRequests"`
	City              string           `json:"city"`
	Weather           *weather.Insight `json:"weatherInfo,omitempty"`
	Status            string           `json:"status,omitempty"`
	SessionID         string           `json:"sessionId,omitempty"`
}

// SpokenDate renders the booking day the way the assistant reads it out.
func SpokenDate(d time.Time) string {
	return d.Format("January 2, 2006")
}
