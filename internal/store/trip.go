package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/model"
)

type TripStore struct {
	db *database.DB
}

func NewTripStore(db *database.DB) *TripStore {
	return &TripStore{db: db}
}

func scanTrip(scanner interface{ Scan(...any) error }) (*model.Trip, error) {
	var t model.Trip
	var description, imageURL sql.NullString
	err := scanner.Scan(
		&t.ID, &t.UserID, &t.Title, &description, &t.StartDate, &t.EndDate,
		&imageURL, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Description = fromNullString(description)
	t.ImageURL = fromNullString(imageURL)
	return &t, nil
}

const tripCols = `id, user_id, title, description, start_date, end_date, image_url, created_at, updated_at`

// Create inserts a trip owned by userID. Dates must already be normalized to
// model.DateLayout.
func (s *TripStore) Create(ctx context.Context, userID, title string, description *string, startDate, endDate string, imageURL *string) (*model.Trip, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`INSERT INTO trips (user_id, title, description, start_date, end_date, image_url)
		 VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		userID, title, toNullString(description), startDate, endDate, toNullString(imageURL),
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert trip: %w", err)
	}
	return s.GetForOwner(ctx, id, userID)
}

// GetForOwner returns the trip only when it belongs to userID. Missing and
// foreign trips both return nil.
func (s *TripStore) GetForOwner(ctx context.Context, id int64, userID string) (*model.Trip, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+tripCols+` FROM trips WHERE id = ? AND user_id = ?`),
		id, userID,
	)
	t, err := scanTrip(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trip: %w", err)
	}
	return t, nil
}

// ListByUser returns all trips of userID, latest start date first.
func (s *TripStore) ListByUser(ctx context.Context, userID string) ([]model.Trip, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT `+tripCols+` FROM trips WHERE user_id = ? ORDER BY start_date DESC, id DESC`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	defer rows.Close()

	var trips []model.Trip
	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		trips = append(trips, *t)
	}
	return trips, rows.Err()
}
