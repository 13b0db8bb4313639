package weather

import (
	"encoding/json"
	"testing"
	"time"
)

func ptr(f float64) *float64 { return &f }

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		input string
		want  Category
	}{
		{"Thunderstorm", Thunderstorm},
		{"Thunderstorms with heavy rain", Thunderstorm},
		{"Rain", Rainy},
		{"light DRIZZLE", Rainy},
		{"Clouds", Cloudy},
		{"overcast clouds", Cloudy},
		{"Clear", Sunny},
		{"Mist", Sunny},
		{"", Sunny},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.input); got != tt.want {
			t.Errorf("CategoryOf(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestSeatingFor(t *testing.T) {
	want := map[Category]Seating{
		Sunny:        Outdoor,
		Cloudy:       Either,
		Rainy:        Indoor,
		Thunderstorm: Indoor,
	}
	for c, s := range want {
		if got := SeatingFor(c); got != s {
			t.Errorf("SeatingFor(%s) = %s, want %s", c, got, s)
		}
		if !SeatingFor(c).Valid() {
			t.Errorf("SeatingFor(%s) is not a valid seating", c)
		}
	}
}

func TestClosestEntry(t *testing.T) {
	target := time.Date(2026, time.October, 20, 19, 0, 0, 0, time.UTC)
	entries := []Entry{
		{Dt: target.Add(-9 * time.Hour).Unix()},
		{Dt: target.Add(-2 * time.Hour).Unix()},
		{Dt: target.Add(1 * time.Hour).Unix()},
		{Dt: target.Add(4 * time.Hour).Unix()},
	}

	got, ok := ClosestEntry(entries, target)
	if !ok {
		t.Fatal("expected an entry")
	}
	if got.Dt != entries[2].Dt {
		t.Errorf("ClosestEntry picked dt=%d, want %d", got.Dt, entries[2].Dt)
	}
}

func TestClosestEntryTieKeepsFirst(t *testing.T) {
	target := time.Date(2026, time.October, 20, 12, 0, 0, 0, time.UTC)
	before := Entry{Dt: target.Add(-90 * time.Minute).Unix(), Weather: []Condition{{Main: "Rain"}}}
	after := Entry{Dt: target.Add(90 * time.Minute).Unix(), Weather: []Condition{{Main: "Clear"}}}

	got, _ := ClosestEntry([]Entry{before, after}, target)
	if got.Dt != before.Dt {
		t.Errorf("tie picked dt=%d, want first entry %d", got.Dt, before.Dt)
	}
	got, _ = ClosestEntry([]Entry{after, before}, target)
	if got.Dt != after.Dt {
		t.Errorf("tie picked dt=%d, want first entry %d", got.Dt, after.Dt)
	}
}

func TestClosestEntryEmpty(t *testing.T) {
	if _, ok := ClosestEntry(nil, time.Now()); ok {
		t.Error("nil list should yield no entry")
	}
	if _, ok := ClosestEntry([]Entry{}, time.Now()); ok {
		t.Error("empty list should yield no entry")
	}
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)
	e := Entry{
		Dt:      1792000000,
		Weather: []Condition{{Main: "Clouds", Description: "scattered clouds"}},
		Main:    &Readings{Temp: ptr(18.5), Humidity: ptr(60)},
		Wind:    &WindSample{Speed: ptr(5)},
	}

	in := Normalize(e, "Boston", now)

	if in.Category != Cloudy {
		t.Errorf("Category = %s, want cloudy", in.Category)
	}
	if in.Summary != "scattered clouds" {
		t.Errorf("Summary = %q", in.Summary)
	}
	if in.RawCondition != "Clouds" {
		t.Errorf("RawCondition = %q", in.RawCondition)
	}
	if in.TemperatureC == nil || *in.TemperatureC != 18.5 {
		t.Errorf("TemperatureC = %v, want 18.5", in.TemperatureC)
	}
	if in.Humidity == nil || *in.Humidity != 60 {
		t.Errorf("Humidity = %v, want 60", in.Humidity)
	}
	if in.WindKph == nil || *in.WindKph != 18 {
		t.Errorf("WindKph = %v, want 18", in.WindKph)
	}
	if in.City != "Boston" {
		t.Errorf("City = %q", in.City)
	}
	if !in.Timestamp.Equal(time.Unix(1792000000, 0)) {
		t.Errorf("Timestamp = %s", in.Timestamp)
	}
	if in.Source != "openweathermap" {
		t.Errorf("Source = %q", in.Source)
	}
	if in.Seating() != Either {
		t.Errorf("Seating = %s, want either", in.Seating())
	}
}

func TestNormalizeDefaults(t *testing.T) {
	now := time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)

	in := Normalize(Entry{}, "Boston", now)

	if in.Category != Sunny || in.RawCondition != "Clear" {
		t.Errorf("Category/RawCondition = %s/%q, want sunny/Clear", in.Category, in.RawCondition)
	}
	if in.Summary != "" {
		t.Errorf("Summary = %q, want empty", in.Summary)
	}
	if in.TemperatureC != nil || in.Humidity != nil || in.WindKph != nil {
		t.Errorf("expected nil readings, got %v %v %v", in.TemperatureC, in.Humidity, in.WindKph)
	}
	if !in.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %s, want now", in.Timestamp)
	}
}

func TestInsightJSONShape(t *testing.T) {
	in := Normalize(Entry{Weather: []Condition{{Main: "Rain"}}}, "Boston", time.Unix(0, 0).UTC())

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"category", "summary", "rawCondition", "temperatureC", "humidity", "windKph", "city", "timestamp", "source"} {
		if _, ok := m[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	if m["temperatureC"] != nil {
		t.Errorf("temperatureC = %v, want null", m["temperatureC"])
	}
}
