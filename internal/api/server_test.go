package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalambet/tablevoice/internal/dialogue"
)

func TestRoot(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decode[map[string]string](t, rr)
	if body["message"] != "Restaurant Booking Voice Agent API is running" {
		t.Errorf("body = %v", body)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/conversations", "")
	env.transcripts.SaveTranscript(context.Background(), dialogue.Transcript{SessionID: "old"})

	rr := env.do(t, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decode[healthResponse](t, rr)
	if body.Status != "ok" || body.Bookings != 0 || body.Transcripts != 1 || body.Conversations != 1 {
		t.Errorf("body = %+v", body)
	}
}

type brokenBookings struct {
	Bookings
}

func (brokenBookings) Count(context.Context) (int, error) {
	return 0, errors.New("database is locked")
}

func TestHealth_Degraded(t *testing.T) {
	env := newTestEnv(t)
	env.deps.Bookings = brokenBookings{env.bookings}
	rr := httptest.NewRecorder()
	NewHandler(env.deps).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	body := decode[healthResponse](t, rr)
	if body.Status != "degraded" || body.Error != "database is locked" {
		t.Errorf("body = %+v", body)
	}
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t)
	env.deps.AllowedOrigin = "http://app.example"
	env.handler = NewHandler(env.deps)

	req := func(origin string) *http.Request {
		r, _ := http.NewRequest(http.MethodOptions, "/api/bookings", nil)
		r.Header.Set("Origin", origin)
		return r
	}

	rr := env.serve(req("http://app.example"))
	if rr.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Errorf("allow origin = %q", got)
	}

	rr = env.serve(req("http://evil.example"))
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	if rr := env.do(t, http.MethodGet, "/api/nope", ""); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d", rr.Code)
	}
}
