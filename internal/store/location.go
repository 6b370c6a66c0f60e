package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/model"
)

// appendAttempts bounds retries when two writers race for the same order value.
const appendAttempts = 5

type LocationStore struct {
	db *database.DB
}

func NewLocationStore(db *database.DB) *LocationStore {
	return &LocationStore{db: db}
}

func scanLocation(scanner interface{ Scan(...any) error }) (*model.Location, error) {
	var l model.Location
	var address sql.NullString
	err := scanner.Scan(&l.ID, &l.TripID, &l.Title, &address, &l.Lat, &l.Lng, &l.Order, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	l.Address = fromNullString(address)
	return &l, nil
}

const locationCols = `id, trip_id, title, address, lat, lng, sort_order, created_at`

// Append adds a location at the end of the trip's sequence. The insert only
// happens when the trip is owned by userID; otherwise Append returns nil.
func (s *LocationStore) Append(ctx context.Context, tripID int64, userID, title string, address *string, lat, lng float64) (*model.Location, error) {
	query := s.db.Rebind(`INSERT INTO locations (trip_id, title, address, lat, lng, sort_order)
		SELECT t.id, ?, ?, CAST(? AS DOUBLE PRECISION), CAST(? AS DOUBLE PRECISION),
		       (SELECT COALESCE(MAX(l.sort_order), 0) + 1 FROM locations l WHERE l.trip_id = t.id)
		FROM trips t
		WHERE t.id = ? AND t.user_id = ?
		RETURNING id`)

	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		var id int64
		err := s.db.QueryRowContext(ctx, query, title, toNullString(address), lat, lng, tripID, userID).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err == nil {
			return s.GetByID(ctx, id)
		}
		if !database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("insert location: %w", err)
		}
		lastErr = err
	}
	return nil, fmt.Errorf("insert location after %d attempts: %w", appendAttempts, lastErr)
}

func (s *LocationStore) GetByID(ctx context.Context, id int64) (*model.Location, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+locationCols+` FROM locations WHERE id = ?`), id)
	l, err := scanLocation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get location: %w", err)
	}
	return l, nil
}

// ListByTrip returns the trip's locations in display order.
func (s *LocationStore) ListByTrip(ctx context.Context, tripID int64) ([]model.Location, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT `+locationCols+` FROM locations WHERE trip_id = ? ORDER BY sort_order ASC`),
		tripID,
	)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}
	defer rows.Close()

	var locations []model.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan location: %w", err)
		}
		locations = append(locations, *l)
	}
	return locations, rows.Err()
}
