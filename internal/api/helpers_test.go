package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/dialogue"
	"github.com/kalambet/tablevoice/internal/speech"
	"github.com/kalambet/tablevoice/internal/storage"
	"github.com/kalambet/tablevoice/internal/weather"
)

type mockWeather struct {
	insight weather.Insight
	err     error
	target  time.Time
	city    string
}

func (m *mockWeather) Lookup(_ context.Context, target time.Time, city string) (weather.Insight, error) {
	m.target, m.city = target, city
	if m.err != nil {
		return weather.Insight{}, m.err
	}
	out := m.insight
	out.City = city
	return out, nil
}

func (m *mockWeather) DefaultCity() string { return "New York" }

func sunny() weather.Insight {
	temp := 24.0
	return weather.Insight{
		Category:     weather.Sunny,
		Summary:      "clear sky",
		RawCondition: "Clear",
		TemperatureC: &temp,
		Source:       weather.Source,
	}
}

type memTranscripts struct {
	items []dialogue.Transcript
}

func (m *memTranscripts) SaveTranscript(_ context.Context, t dialogue.Transcript) error {
	m.items = append([]dialogue.Transcript{t}, m.items...)
	return nil
}

func (m *memTranscripts) List(_ context.Context, limit int) ([]dialogue.Transcript, error) {
	if limit > 0 && len(m.items) > limit {
		return m.items[:limit], nil
	}
	return m.items, nil
}

func (m *memTranscripts) ForSession(_ context.Context, sessionID string) ([]dialogue.Transcript, error) {
	var out []dialogue.Transcript
	for _, t := range m.items {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memTranscripts) Count() (int, error) { return len(m.items), nil }

type testEnv struct {
	deps        Deps
	weather     *mockWeather
	bookings    *booking.Service
	transcripts *memTranscripts
	handler     http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	wl := &mockWeather{insight: sunny()}
	svc := booking.NewService(store, wl, "New York", nil)
	tr := &memTranscripts{}
	registry := dialogue.NewRegistry(func(id string) *dialogue.Session {
		return dialogue.NewSession(id, wl, svc, dialogue.WithArchive(tr))
	})
	cookies, err := NewCookieBinder([]byte(strings.Repeat("h", 32)), []byte(strings.Repeat("b", 32)))
	if err != nil {
		t.Fatalf("cookie binder: %v", err)
	}

	deps := Deps{
		Bookings:    svc,
		Weather:     wl,
		Sessions:    registry,
		Cookies:     cookies,
		Speech:      speech.NewServer("", nil),
		Transcripts: tr,
	}
	return &testEnv{deps: deps, weather: wl, bookings: svc, transcripts: tr, handler: NewHandler(deps)}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decoding %q: %v", rr.Body.String(), err)
	}
	return v
}

func futureDate(days int) string {
	return time.Now().AddDate(0, 0, days).Format(time.DateOnly)
}
