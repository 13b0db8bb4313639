package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrConfiguration means the provider credential is missing.
	ErrConfiguration = errors.New("weather: api key is not configured")
	// ErrInvalidInput means the lookup date is unusable.
	ErrInvalidInput = errors.New("weather: invalid date for lookup")
	// ErrUnavailable wraps provider failures after the fallback.
	ErrUnavailable = errors.New("weather: provider unavailable")

	errNoForecast = errors.New("no forecast available")
)

// Provider is the upstream weather API.
type Provider interface {
	Forecast(ctx context.Context, city string) ([]Entry, error)
	Current(ctx context.Context, city string) (Entry, error)
	// Configured reports whether the provider has its credential.
	Configured() bool
}

// Service resolves a date and city to an Insight, preferring the forecast
// and falling back to current conditions.
type Service struct {
	provider    Provider
	defaultCity string
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a Service. Empty cities resolve to defaultCity.
func NewService(p Provider, defaultCity string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultCity == "" {
		defaultCity = "New York"
	}
	return &Service{
		provider:    p,
		defaultCity: defaultCity,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) DefaultCity() string {
	return s.defaultCity
}

// Lookup returns the insight for target in city. A missing credential is
// reported before any input check. A forecast failure of any kind is
// logged and retried against current conditions; only a failed fallback
// is returned, wrapped in ErrUnavailable.
func (s *Service) Lookup(ctx context.Context, target time.Time, city string) (Insight, error) {
	if !s.provider.Configured() {
		return Insight{}, ErrConfiguration
	}
	if target.IsZero() {
		return Insight{}, ErrInvalidInput
	}
	if city == "" {
		city = s.defaultCity
	}

	entry, err := s.forecast(ctx, target, city)
	if err == nil {
		return Normalize(entry, city, s.now()), nil
	}
	if errors.Is(err, ErrConfiguration) || ctx.Err() != nil {
		return Insight{}, err
	}

	s.logger.Warn("forecast lookup failed, falling back to current conditions",
		"city", city, "date", target.Format(time.DateOnly), "error", err)

	entry, err = s.provider.Current(ctx, city)
	if err != nil {
		if errors.Is(err, ErrConfiguration) {
			return Insight{}, err
		}
		s.logger.Error("current conditions lookup failed", "city", city, "error", err)
		return Insight{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return Normalize(entry, city, s.now()), nil
}

func (s *Service) forecast(ctx context.Context, target time.Time, city string) (Entry, error) {
	entries, err := s.provider.Forecast(ctx, city)
	if err != nil {
		return Entry{}, err
	}
	entry, ok := ClosestEntry(entries, target)
	if !ok {
		return Entry{}, errNoForecast
	}
	return entry, nil
}
