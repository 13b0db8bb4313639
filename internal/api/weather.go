package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/kalambet/tablevoice/internal/parse"
	"github.com/kalambet/tablevoice/internal/weather"
)

// handleWeatherPreview serves GET /api/weather?date=&time=&city=. date is
// "2006-01-02" or RFC 3339; time is optional and accepts anything the
// dialogue would.
func handleWeatherPreview(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		raw := q.Get("date")
		if raw == "" {
			writeMessage(w, http.StatusBadRequest, "date query parameter is required")
			return
		}
		target, ok := previewTarget(raw, q.Get("time"), deps.now().Location())
		if !ok {
			writeMessage(w, http.StatusBadRequest, "date must be a valid date")
			return
		}
		city := q.Get("city")
		if city == "" {
			city = deps.Weather.DefaultCity()
		}

		insight, err := deps.Weather.Lookup(r.Context(), target, city)
		switch {
		case errors.Is(err, weather.ErrConfiguration):
			httpError(w, http.StatusInternalServerError, "configuration_error", "%v", err)
			return
		case errors.Is(err, weather.ErrInvalidInput):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusBadGateway, "api_error", "weather lookup failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, insight)
	}
}

func previewTarget(date, clock string, loc *time.Location) (time.Time, bool) {
	var day time.Time
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		day = t
	} else if t, err := time.ParseInLocation(time.DateOnly, date, loc); err == nil {
		day = t
	} else {
		return time.Time{}, false
	}
	if clock == "" {
		return day, true
	}
	hhmm, ok := parse.Time(clock)
	if !ok {
		return time.Time{}, false
	}
	t, _ := time.Parse("15:04", hhmm)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), true
}
