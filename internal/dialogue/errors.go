package dialogue

import (
	"context"
	"errors"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/weather"
)

var (
	// ErrBusy is returned when an utterance arrives while the previous one
	// is still being handled. The caller should queue or drop it.
	ErrBusy = errors.New("dialogue: previous utterance still in progress")
	// ErrStale is returned when the session was reset while a lookup or
	// save was in flight; the result was discarded and there is no reply.
	ErrStale = errors.New("dialogue: session was reset during the request")
	// ErrUnknownSession is returned by Registry for an id it does not hold.
	ErrUnknownSession = errors.New("dialogue: unknown session")
)

// ErrorKind labels err for logs and API responses.
func ErrorKind(err error) string {
	var verr *booking.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, weather.ErrConfiguration):
		return "configuration"
	case errors.Is(err, weather.ErrInvalidInput):
		return "input"
	case errors.As(err, &verr):
		return "validation"
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, ErrUnknownSession):
		return "not_found"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "external"
	}
}
