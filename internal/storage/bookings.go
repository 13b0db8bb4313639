package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/weather"
)

var _ booking.Repository = (*Store)(nil)

// createdLayout is fixed-width so created_at sorts lexically.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

const bookingColumns = `id, customer_name, number_of_guests, booking_date, booking_time, cuisine_preference,
	special_requests, city, weather_info, seating_preference, status, session_id, created_at`

func (s *Store) CreateBooking(ctx context.Context, b booking.Booking) error {
	weatherJSON, err := json.Marshal(b.Weather)
	if err != nil {
		return fmt.Errorf("encoding weather: %w", err)
	}
	status := b.Status
	if status == "" {
		status = booking.StatusConfirmed
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CustomerName, b.NumberOfGuests, b.Date.Format(time.DateOnly), b.Time, b.CuisinePreference,
		b.SpecialRequests, b.City, string(weatherJSON), string(b.Seating), status, b.SessionID,
		b.CreatedAt.UTC().Format(createdLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}
	return nil
}

// ListBookings returns bookings newest first. limit <= 0 returns all.
func (s *Store) ListBookings(ctx context.Context, limit int) ([]booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	var out []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) GetBooking(ctx context.Context, id string) (booking.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (s *Store) DeleteBooking(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

// CountBookings returns the number of stored bookings.
func (s *Store) CountBookings(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBooking(sc scanner) (booking.Booking, error) {
	var (
		b                  booking.Booking
		date, weatherJSON  string
		seating, createdAt string
	)
	err := sc.Scan(&b.ID, &b.CustomerName, &b.NumberOfGuests, &date, &b.Time, &b.CuisinePreference,
		&b.SpecialRequests, &b.City, &weatherJSON, &seating, &b.Status, &b.SessionID, &createdAt)
	if err != nil {
		return booking.Booking{}, err
	}

	if b.Date, err = time.Parse(time.DateOnly, date); err != nil {
		return booking.Booking{}, fmt.Errorf("parsing booking_date %q: %w", date, err)
	}
	if b.CreatedAt, err = time.Parse(createdLayout, createdAt); err != nil {
		return booking.Booking{}, fmt.Errorf("parsing created_at %q: %w", createdAt, err)
	}
	if err := json.Unmarshal([]byte(weatherJSON), &b.Weather); err != nil {
		return booking.Booking{}, fmt.Errorf("decoding weather_info: %w", err)
	}
	b.Seating = weather.Seating(seating)
	return b, nil
}
