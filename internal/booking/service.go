package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/tablevoice/internal/parse"
	"github.com/kalambet/tablevoice/internal/weather"
)

// Repository persists bookings. List returns newest first.
type Repository interface {
	CreateBooking(ctx context.Context, b Booking) error
	ListBookings(ctx context.Context, limit int) ([]Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	DeleteBooking(ctx context.Context, id string) error
	CountBookings(ctx context.Context) (int, error)
}

// WeatherLookup resolves a date and city to a weather insight.
type WeatherLookup interface {
	Lookup(ctx context.Context, target time.Time, city string) (weather.Insight, error)
}

// Service is the persistence gateway used by the API and by conversations.
type Service struct {
	repo        Repository
	weather     WeatherLookup
	defaultCity string
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a Service. weather may be nil, in which case every
// Create must carry its own weather insight.
func NewService(repo Repository, wl WeatherLookup, defaultCity string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		weather:     wl,
		defaultCity: defaultCity,
		logger:      logger,
		now:         time.Now,
	}
}

// Create validates in, attaches weather and seating, and saves it.
// Validation failures are returned as *ValidationError.
func (s *Service) Create(ctx context.Context, in Input) (Booking, error) {
	v, verr := validate(in, s.now(), s.defaultCity)
	if verr != nil {
		return Booking{}, verr
	}

	var insight weather.Insight
	switch {
	case v.Weather != nil && v.Weather.Category != "":
		insight = *v.Weather
	case s.weather == nil:
		return Booking{}, &ValidationError{Fields: []FieldError{{Field: "weatherInfo", Message: "weatherInfo is required."}}}
	default:
		w, err := s.weather.Lookup(ctx, lookupTarget(v.day, v.Time, s.now().Location()), v.City)
		if err != nil {
			return Booking{}, fmt.Errorf("looking up weather: %w", err)
		}
		insight = w
	}

	status := v.Status
	if status == "" {
		status = StatusConfirmed
	}

	b := Booking{
		ID:                uuid.NewString(),
		CustomerName:      v.CustomerName,
		NumberOfGuests:    v.NumberOfGuests,
		Date:              v.day,
		Time:              v.Time,
		CuisinePreference: v.CuisinePreference,
		SpecialRequests:   v.SpecialRequests,
		City:              v.City,
		Weather:           insight,
		Seating:           insight.Seating(),
		Status:            status,
		SessionID:         v.SessionID,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return Booking{}, fmt.Errorf("saving booking: %w", err)
	}

	s.logger.Info("booking created", "booking_id", b.ID, "date", b.Date.Format(time.DateOnly), "guests", b.NumberOfGuests, "seating", b.Seating)
	return b, nil
}

// List returns up to limit bookings, newest first. limit <= 0 means all.
func (s *Service) List(ctx context.Context, limit int) ([]Booking, error) {
	bookings, err := s.repo.ListBookings(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing bookings: %w", err)
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	return bookings, nil
}

func (s *Service) Get(ctx context.Context, id string) (Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteBooking(ctx, id); err != nil {
		return err
	}
	s.logger.Info("booking deleted", "booking_id", id)
	return nil
}

// Count returns the number of stored bookings.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.repo.CountBookings(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting bookings: %w", err)
	}
	return n, nil
}

// lookupTarget is the reservation instant in loc, or local midnight when
// the time is not in HH:MM form.
func lookupTarget(day time.Time, hhmm string, loc *time.Location) time.Time {
	hour, minute := 0, 0
	if t, ok := parse.Time(hhmm); ok && t == hhmm {
		clock, _ := time.Parse("15:04", t)
		hour, minute = clock.Hour(), clock.Minute()
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
}
