// Package api exposes bookings, weather previews and conversations over
// HTTP, and the same operations as MCP tools.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/dialogue"
	"github.com/kalambet/tablevoice/internal/logging"
	"github.com/kalambet/tablevoice/internal/speech"
	"github.com/kalambet/tablevoice/internal/weather"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Bookings is the persistence gateway as the API uses it.
type Bookings interface {
	Create(ctx context.Context, in booking.Input) (booking.Booking, error)
	List(ctx context.Context, limit int) ([]booking.Booking, error)
	Get(ctx context.Context, id string) (booking.Booking, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Weather previews conditions for a reservation moment.
type Weather interface {
	Lookup(ctx context.Context, target time.Time, city string) (weather.Insight, error)
	DefaultCity() string
}

// Transcripts lists archived conversations, newest first.
type Transcripts interface {
	List(ctx context.Context, limit int) ([]dialogue.Transcript, error)
	ForSession(ctx context.Context, sessionID string) ([]dialogue.Transcript, error)
	Count() (int, error)
}

type Deps struct {
	Bookings    Bookings
	Weather     Weather
	Sessions    *dialogue.Registry
	Cookies     *CookieBinder
	Speech      *speech.Server
	Transcripts Transcripts // optional
	// AllowedOrigin is echoed in CORS headers. Empty allows any origin.
	AllowedOrigin string
	Logger        *slog.Logger
	Now           func() time.Time
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d *Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.logger()))
	r.Use(cors(deps.AllowedOrigin))

	r.Get("/", handleRoot)
	r.Get("/health", handleHealth(deps))

	r.Route("/api", func(r chi.Router) {
		r.Post("/bookings", handleCreateBooking(deps))
		r.Get("/bookings", handleListBookings(deps))
		r.Get("/bookings/{id}", handleGetBooking(deps))
		r.Delete("/bookings/{id}", handleDeleteBooking(deps))

		r.Get("/weather", handleWeatherPreview(deps))

		r.Post("/conversations", handleStartConversation(deps))
		r.Get("/conversations/current", handleCurrentConversation(deps))
		r.Post("/conversations/current/utterances", handleUtterance(deps))
		r.Delete("/conversations/current", handleResetConversation(deps))
		r.Get("/conversations/current/ws", handleConversationSocket(deps))

		r.Get("/transcripts", handleListTranscripts(deps))
	})

	return r
}

func handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Restaurant Booking Voice Agent API is running"})
}

type healthResponse struct {
	Status        string `json:"status"`
	Bookings      int    `json:"bookings"`
	Transcripts   int    `json:"transcripts"`
	Conversations int    `json:"conversations"`
	Error         string `json:"error,omitempty"`
}

// handleHealth reports store counts. A store that cannot be read turns
// the status to "degraded" with 503.
func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Conversations: deps.Sessions.Len()}
		n, err := deps.Bookings.Count(r.Context())
		if err == nil {
			resp.Bookings = n
			if deps.Transcripts != nil {
				resp.Transcripts, err = deps.Transcripts.Count()
			}
		}
		if err != nil {
			logging.FromContext(r.Context(), deps.logger()).Error("health check", "error", err)
			resp.Status = "degraded"
			resp.Error = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// requestLogger attaches a request-scoped logger to the context and logs
// each request once it completes.
func requestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := base.With("request_id", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logging.WithLogger(r.Context(), l)))
			l.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func cors(allowed string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed == "" || origin == allowed) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeMessage writes the {"message": ...} body the browser client expects.
func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
