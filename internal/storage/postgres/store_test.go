package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/weather"
)

// openTestStore connects to TABLEVOICE_TEST_POSTGRES_URL or skips.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TABLEVOICE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("TABLEVOICE_TEST_POSTGRES_URL not set; skipping postgres integration test")
	}
	s, err := Open(context.Background(), url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestOpenInvalidURL(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://localhost:notaport/tablevoice"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestBookingLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	b := booking.Booking{
		ID:                id,
		CustomerName:      "Alice",
		NumberOfGuests:    3,
		Date:              time.Date(2027, time.January, 5, 0, 0, 0, 0, time.UTC),
		Time:              "18:30",
		CuisinePreference: "Sushi",
		SpecialRequests:   "None",
		Weather:           weather.Insight{Category: weather.Rainy, Source: weather.Source},
		Seating:           weather.Indoor,
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.CreateBooking(ctx, b); err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	t.Cleanup(func() { s.DeleteBooking(context.Background(), id) })

	got, err := s.GetBooking(ctx, id)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if got.Status != booking.StatusConfirmed || got.Seating != weather.Indoor || !got.Date.Equal(b.Date) {
		t.Errorf("unexpected booking %+v", got)
	}

	list, err := s.ListBookings(ctx, 1)
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("ListBookings(1) returned %d rows", len(list))
	}

	if err := s.DeleteBooking(ctx, id); err != nil {
		t.Fatalf("DeleteBooking: %v", err)
	}
	if _, err := s.GetBooking(ctx, id); !errors.Is(err, booking.ErrNotFound) {
		t.Errorf("GetBooking after delete err = %v, want ErrNotFound", err)
	}
}
