// Package postgres is the PostgreSQL booking store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kalambet/tablevoice/internal/booking"
	"github.com/kalambet/tablevoice/internal/weather"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS bookings (
	id                 TEXT PRIMARY KEY,
	customer_name      TEXT NOT NULL,
	number_of_guests   INTEGER NOT NULL CHECK (number_of_guests >= 1),
	booking_date       DATE NOT NULL,
	booking_time       TEXT NOT NULL,
	cuisine_preference TEXT NOT NULL,
	special_requests   TEXT NOT NULL DEFAULT '',
	city               TEXT NOT NULL DEFAULT '',
	weather_info       JSONB NOT NULL,
	seating_preference TEXT NOT NULL,
	status             TEXT NOT NULL DEFAULT 'confirmed',
	session_id         TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_bookings_created ON bookings(created_at);
CREATE INDEX IF NOT EXISTS idx_bookings_session ON bookings(session_id);
`

const bookingColumns = `id, customer_name, number_of_guests, booking_date, booking_time, cuisine_preference,
	special_requests, city, weather_info, seating_preference, status, session_id, created_at`

var _ booking.Repository = (*Store)(nil)

// Store keeps bookings in PostgreSQL through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and creates the schema if needed.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres url: %w", err)
	}
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) CreateBooking(ctx context.Context, b booking.Booking) error {
	weatherJSON, err := json.Marshal(b.Weather)
	if err != nil {
		return fmt.Errorf("encoding weather: %w", err)
	}
	status := b.Status
	if status == "" {
		status = booking.StatusConfirmed
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		b.ID, b.CustomerName, b.NumberOfGuests, b.Date, b.Time, b.CuisinePreference,
		b.SpecialRequests, b.City, weatherJSON, string(b.Seating), status, b.SessionID, b.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}
	return nil
}

// ListBookings returns bookings newest first. limit <= 0 returns all.
func (s *Store) ListBookings(ctx context.Context, limit int) ([]booking.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
	row := s.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (s *Store) DeleteBooking(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bookings WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("deleting booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s *Store) CountBookings(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bookings`).Scan(&n)
	return n, err
}

func scanBooking(row pgx.Row) (booking.Booking, error) {
	var (
		b           booking.Booking
		weatherJSON []byte
		seating     string
	)
	err := row.Scan(&b.ID, &b.CustomerName, &b.NumberOfGuests, &b.Date, &b.Time, &b.CuisinePreference,
		&b.SpecialRequests, &b.City, &weatherJSON, &seating, &b.Status, &b.SessionID, &b.CreatedAt)
	if err != nil {
		return booking.Booking{}, err
	}
	if err := json.Unmarshal(weatherJSON, &b.Weather); err != nil {
		return booking.Booking{}, fmt.Errorf("decoding weather_info: %w", err)
	}
	b.Date = time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, 0, 0, 0, time.UTC)
	b.CreatedAt = b.CreatedAt.UTC()
	b.Seating = weather.Seating(seating)
	return b, nil
}
