package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/logging"
	"github.com/kalambet/tablevoice/internal/weather"
)

func handleCreateBooking(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var in booking.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		// A conversation id is only set by the dialogue.
		in.SessionID = ""

		b, err := deps.Bookings.Create(r.Context(), in)
		var verr *booking.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string][]string{"errors": verr.Messages()})
			return
		case errors.Is(err, weather.ErrConfiguration):
			httpError(w, http.StatusInternalServerError, "configuration_error", "%v", err)
			return
		case errors.Is(err, weather.ErrUnavailable):
			httpError(w, http.StatusBadGateway, "api_error", "weather lookup failed: %v", err)
			return
		case err != nil:
			logging.FromContext(r.Context(), deps.logger()).Error("creating booking", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save booking: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, b)
	}
}

func handleListBookings(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 0, 500)
		bookings, err := deps.Bookings.List(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list bookings: %v", err)
			return
		}
		if bookings == nil {
			bookings = []booking.Booking{}
		}
		writeJSON(w, http.StatusOK, bookings)
	}
}

func handleGetBooking(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := deps.Bookings.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, booking.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Booking not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get booking: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	}
}

func handleDeleteBooking(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Bookings.Delete(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, booking.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Booking not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete booking: %v", err)
			return
		}
		writeMessage(w, http.StatusOK, "Booking deleted")
	}
}
