// Package weather turns OpenWeatherMap responses into seating advice.
package weather

import (
	"math"
	"strings"
	"time"
)

// Category is the coarse condition a reservation cares about.
type Category string

const (
	Sunny        Category = "sunny"
	Cloudy       Category = "cloudy"
	Rainy        Category = "rainy"
	Thunderstorm Category = "thunderstorm"
)

// Seating is the recommended seating area.
type Seating string

const (
	Indoor  Seating = "indoor"
	Outdoor Seating = "outdoor"
	Either  Seating = "either"
)

// Valid reports whether s is one of the known seating areas.
func (s Seating) Valid() bool {
	return s == Indoor || s == Outdoor || s == Either
}

// Source identifies the provider in stored insights.
const Source = "openweathermap"

// Insight is the normalized weather attached to a reservation.
type Insight struct {
	Category     Category  `json:"category"`
	Summary      string    `json:"summary"`
	RawCondition string    `json:"rawCondition"`
	TemperatureC *float64  `json:"temperatureC"`
	Humidity     *float64  `json:"humidity"`
	WindKph      *float64  `json:"windKph"`
	City         string    `json:"city"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
}

// Seating returns the recommendation for the insight's category.
func (i Insight) Seating() Seating {
	return SeatingFor(i.Category)
}

// CategoryOf maps a provider condition to a Category. Thunder beats rain,
// rain beats cloud, and anything unrecognised is sunny.
func CategoryOf(condition string) Category {
	v := strings.ToLower(condition)
	switch {
	case strings.Contains(v, "thunder"):
		return Thunderstorm
	case strings.Contains(v, "rain"), strings.Contains(v, "drizzle"):
		return Rainy
	case strings.Contains(v, "cloud"):
		return Cloudy
	default:
		return Sunny
	}
}

func SeatingFor(c Category) Seating {
	switch c {
	case Sunny:
		return Outdoor
	case Cloudy:
		return Either
	default:
		return Indoor
	}
}

// Condition is one element of the provider's "weather" array.
type Condition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

// Entry is a single observation, as returned by /weather and inside the
// /forecast list.
type Entry struct {
	Dt      int64       `json:"dt"`
	Weather []Condition `json:"weather"`
	Main    *Readings   `json:"main"`
	Wind    *WindSample `json:"wind"`
}

type Readings struct {
	Temp     *float64 `json:"temp"`
	Humidity *float64 `json:"humidity"`
}

type WindSample struct {
	Speed *float64 `json:"speed"`
}

// ClosestEntry picks the entry nearest to target. Ties keep the earlier entry.
func ClosestEntry(entries []Entry, target time.Time) (Entry, bool) {
	if len(entries) == 0 {
		return Entry{}, false
	}
	best := 0
	smallest := math.Inf(1)
	for i, e := range entries {
		diff := math.Abs(time.Unix(e.Dt, 0).Sub(target).Hours())
		if diff < smallest {
			smallest = diff
			best = i
		}
	}
	return entries[best], true
}

// Normalize converts a provider entry into an Insight for city. Wind speed
// arrives in m/s and is stored in km/h.
func Normalize(e Entry, city string, now time.Time) Insight {
	main, summary := "Clear", ""
	if len(e.Weather) > 0 {
		if e.Weather[0].Main != "" {
			main = e.Weather[0].Main
		}
		summary = e.Weather[0].Description
	}

	in := Insight{
		Category:     CategoryOf(main),
		Summary:      summary,
		RawCondition: main,
		City:         city,
		Timestamp:    now,
		Source:       Source,
	}
	if e.Main != nil {
		in.TemperatureC = e.Main.Temp
		in.Humidity = e.Main.Humidity
	}
	if e.Wind != nil && e.Wind.Speed != nil {
		kph := *e.Wind.Speed * 3.6
		in.WindKph = &kph
	}
	if e.Dt != 0 {
		in.Timestamp = time.Unix(e.Dt, 0).UTC()
	}
	return in
}
