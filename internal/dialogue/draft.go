package dialogue

import (
	"encoding/json"
	"time"

	"github.com/kalambet/tablevoice/internal/weather"
)

// Draft is the reservation being filled in. Zero values mean unset.
type Draft struct {
	CustomerName    string
	Guests          int
	Date            time.Time
	Time            string
	Cuisine         string
	SpecialRequests string
	Seating         weather.Seating
	Weather         *weather.Insight
	City            string
}

func newDraft(city string) Draft {
	return Draft{SpecialRequests: "None", City: city}
}

func (d Draft) MarshalJSON() ([]byte, error) {
	date := ""
	if !d.Date.IsZero() {
		date = d.Date.Format(time.DateOnly)
	}
	return json.Marshal(struct {
		CustomerName    string           `json:"customerName"`
		Guests          int              `json:"numberOfGuests,omitempty"`
		Date            string           `json:"bookingDate,omitempty"`
		Time            string           `json:"bookingTime,omitempty"`
		Cuisine         string           `json:"cuisinePreference,omitempty"`
		SpecialRequests string           `json:"specialRequests"`
		Seating         weather.Seating  `json:"seatingPreference,omitempty"`
		Weather         *weather.Insight `json:"weatherInfo"`
		City            string           `json:"city"`
	}{d.CustomerName, d.Guests, date, d.Time, d.Cuisine, d.SpecialRequests, d.Seating, d.Weather, d.City})
}

// lookupTarget is the reservation moment, used to pick a forecast entry.
func (d Draft) lookupTarget() time.Time {
	t := d.Date
	if clock, err := time.Parse("15:04", d.Time); err == nil {
		t = time.Date(t.Year(), t.Month(), t.Day(), clock.Hour(), clock.Minute(), 0, 0, t.Location())
	}
	return t
}
