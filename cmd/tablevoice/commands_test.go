package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/dialogue"
	"github.com/kalambet/tablevoice/internal/weather"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.mu.Lock()
		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})
		ts.mu.Unlock()

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"message":"Booking not found"}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestMain(m *testing.M) {
	noColor = true
	os.Exit(m.Run())
}

func TestChatHTTP(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/conversations":                    `{"id":"c1","step":"GREETING","agentMessage":"Hello! What is your name?"}`,
		"POST /api/conversations/current/utterances": `{"reply":"Great to meet you, Ana!","step":"ASK_GUESTS"}`,
	})

	var out bytes.Buffer
	in := strings.NewReader("Ana\nquit\nnever sent\n")
	if err := chatHTTP(ctx, ts.client(), in, &out); err != nil {
		t.Fatalf("chatHTTP: %v", err)
	}

	if len(ts.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(ts.requests))
	}
	if !strings.Contains(ts.requests[1].Body, `"text":"Ana"`) {
		t.Errorf("utterance body = %s", ts.requests[1].Body)
	}
	want := "[GREETING] Hello! What is your name?\n[ASK_GUESTS] Great to meet you, Ana!\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestChatHTTP_ServerDown(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()
	ts.server.Close()

	err := chatHTTP(ctx, client, strings.NewReader("hi\n"), &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "is tablevoice running") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

type fixedWeather struct{}

func (fixedWeather) Lookup(context.Context, time.Time, string) (weather.Insight, error) {
	return weather.Insight{Category: weather.Sunny, Summary: "clear sky"}, nil
}

type noBookings struct{}

func (noBookings) Create(context.Context, booking.Input) (booking.Booking, error) {
	return booking.Booking{ID: "bk-1"}, nil
}

func TestChatLocal(t *testing.T) {
	now := time.Date(2026, time.October, 14, 18, 0, 0, 0, time.UTC)
	sess := dialogue.NewSession("local", fixedWeather{}, noBookings{},
		dialogue.WithClock(func() time.Time { return now }))

	var out bytes.Buffer
	in := strings.NewReader("Ana\n4 people\nexit\n")
	if err := chatLocal(ctx, sess, in, &out); err != nil {
		t.Fatalf("chatLocal: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "[GREETING] ") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "Ana") {
		t.Errorf("second line = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "[ASK_DATE] ") {
		t.Errorf("third line = %q", lines[2])
	}
}

func TestListBookings(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/bookings": `[{"bookingId":"0123456789abcdef","customerName":"Ana","numberOfGuests":4,"bookingDate":"2026-12-20T00:00:00Z","bookingTime":"19:30","seatingPreference":"outdoor"}]`,
	})

	var out bytes.Buffer
	if err := listBookings(ctx, ts.client(), 5, &out); err != nil {
		t.Fatalf("listBookings: %v", err)
	}
	if ts.requests[0].Path != "/api/bookings?limit=5" {
		t.Errorf("path = %s", ts.requests[0].Path)
	}
	got := out.String()
	for _, want := range []string{"01234567", "2026-12-20", "19:30", "Ana", "4 guests", "outdoor"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %s", want, got)
		}
	}
}

func TestListBookings_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /api/bookings": `[]`})

	var out bytes.Buffer
	if err := listBookings(ctx, ts.client(), 20, &out); err != nil {
		t.Fatalf("listBookings: %v", err)
	}
	if out.String() != "No bookings found.\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestPreviewWeather(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /api/weather": `{"category":"rainy","summary":"light rain","temperatureC":12.5,"city":"Boston"}`,
	})

	var out bytes.Buffer
	if err := previewWeather(ctx, ts.client(), "2026-12-20", "7pm", "Boston", &out); err != nil {
		t.Fatalf("previewWeather: %v", err)
	}

	u, err := url.Parse(ts.requests[0].Path)
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("date") != "2026-12-20" || q.Get("time") != "7pm" || q.Get("city") != "Boston" {
		t.Errorf("query = %v", q)
	}
	got := out.String()
	if !strings.Contains(got, "rainy (light rain), 12.5°C") {
		t.Errorf("output = %q", got)
	}
	if !strings.Contains(got, "Recommended seating: indoor") {
		t.Errorf("output = %q", got)
	}
}

func TestPreviewWeather_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"date must be a valid date"}`, http.StatusBadRequest)
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, httpClient: ts.Client()}
	err := previewWeather(ctx, client, "nope", "", "", &bytes.Buffer{})
	apiErr, ok := err.(*apiError)
	if !ok {
		t.Fatalf("expected *apiError, got %T (%v)", err, err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "date must be a valid date" {
		t.Errorf("apiError = %+v", apiErr)
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"message":"Booking not found"}`, "Booking not found"},
		{`{"errors":["Customer name is required."]}`, "[Customer name is required.]"},
		{`{"error":{"message":"bad gateway"}}`, "bad gateway"},
		{"plain text\n", "plain text"},
		{`{}`, "{}"},
	}
	for _, tt := range tests {
		if got := errorMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("errorMessage(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"http://127.0.0.1:4000", "ws://127.0.0.1:4000/api/conversations/current/ws"},
		{"https://example.com", "wss://example.com/api/conversations/current/ws"},
	}
	for _, tt := range tests {
		if got := wsURL(tt.base); got != tt.want {
			t.Errorf("wsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}

func TestIsQuit(t *testing.T) {
	for _, s := range []string{"quit", " Exit ", "BYE"} {
		if !isQuit(s) {
			t.Errorf("isQuit(%q) = false", s)
		}
	}
	for _, s := range []string{"", "restart", "quite nice"} {
		if isQuit(s) {
			t.Errorf("isQuit(%q) = true", s)
		}
	}
}

func TestPrintTranscripts(t *testing.T) {
	ended := time.Date(2026, time.October, 14, 18, 30, 0, 0, time.UTC)
	ts := []dialogue.Transcript{{
		SessionID: "abcdef0123456789",
		Outcome:   dialogue.OutcomeCompleted,
		Step:      dialogue.StepComplete,
		EndedAt:   ended,
		Turns: []dialogue.Turn{
			{Sender: dialogue.SenderAgent, Text: "Hello!"},
			{Sender: dialogue.SenderUser, Text: "Ana"},
		},
	}}

	var out bytes.Buffer
	printTranscripts(&out, ts, true)
	got := out.String()
	for _, want := range []string{"abcdef01", "completed", "COMPLETE", "2 turns", "Hello!", "Ana"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q: %s", want, got)
		}
	}

	out.Reset()
	printTranscripts(&out, nil, false)
	if out.String() != "No transcripts found.\n" {
		t.Errorf("empty output = %q", out.String())
	}
}

func TestColorize(t *testing.T) {
	noColor = false
	defer func() { noColor = true }()

	if got := colorize(colorCyan, "x"); got != colorCyan+"x"+colorReset {
		t.Errorf("colorize = %q", got)
	}
	noColor = true
	if got := colorize(colorCyan, "x"); got != "x" {
		t.Errorf("colorize without color = %q", got)
	}
}

func TestGatherStatus_ServerStopped(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	rep := gatherStatus(ctx, addr, addr, http.DefaultClient)
	if rep.server != "stopped" {
		t.Errorf("server = %q, want stopped", rep.server)
	}
}

func TestGatherStatus_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok","bookings":3,"transcripts":7,"conversations":1}`,
	})

	rep := gatherStatus(ctx, ts.server.URL, ts.server.URL, ts.server.Client())
	if rep.server != "running" || rep.bookings != "3" || rep.transcripts != "7" || rep.conversations != "1" {
		t.Errorf("report = %+v", rep)
	}
	if rep.weather != "reachable" {
		t.Errorf("weather = %q", rep.weather)
	}
}

func TestGatherStatus_Degraded(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","error":"database is locked"}`))
	}))
	defer ts.Close()

	rep := gatherStatus(ctx, ts.URL, ts.URL, ts.Client())
	if rep.server != "degraded (database is locked)" || rep.bookings != "" {
		t.Errorf("report = %+v", rep)
	}
}
