// Package location appends points of interest to a trip.
package location

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/dukerupert/roamer/internal/apperr"
	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/model"
	"github.com/dukerupert/roamer/internal/store"
	"github.com/dukerupert/roamer/internal/trip"
	"github.com/dukerupert/roamer/internal/websocket"
)

// CreateInput is the payload of the add-location form and API. Lat and Lng
// are pointers so a missing coordinate is distinguishable from zero.
type CreateInput struct {
	Title   string   `json:"title" validate:"required,max=200"`
	Address string   `json:"address" validate:"max=500"`
	Lat     *float64 `json:"lat" validate:"required"`
	Lng     *float64 `json:"lng" validate:"required"`
}

// Trips is the slice of the trip service locations depend on.
type Trips interface {
	Get(ctx context.Context, ident auth.Identity, tripID int64) (*trip.Detail, error)
	InvalidateDetail(ctx context.Context, tripID int64)
}

type Service struct {
	locations *store.LocationStore
	trips     Trips
	pub       trip.Publisher
	logger    *slog.Logger
}

func NewService(locations *store.LocationStore, trips Trips, pub trip.Publisher, logger *slog.Logger) *Service {
	return &Service{locations: locations, trips: trips, pub: pub, logger: logger}
}

// Create appends a location to a trip the caller owns. The new location's
// order is one past the trip's current highest order. Ownership is settled
// before the input is looked at, so a foreign trip is always
// ErrNotFoundOrForbidden.
func (s *Service) Create(ctx context.Context, ident auth.Identity, tripID int64, in CreateInput) (*model.Location, error) {
	if !ident.Authenticated() {
		return nil, apperr.ErrUnauthorized
	}
	if _, err := s.trips.Get(ctx, ident, tripID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Invalid("title", "is required")
	}
	if err := checkCoordinate("lat", in.Lat, 90); err != nil {
		return nil, err
	}
	if err := checkCoordinate("lng", in.Lng, 180); err != nil {
		return nil, err
	}
	var address *string
	if a := strings.TrimSpace(in.Address); a != "" {
		address = &a
	}

	loc, err := s.locations.Append(ctx, tripID, ident.UserID, title, address, *in.Lat, *in.Lng)
	if err != nil {
		return nil, fmt.Errorf("create location: %w", err)
	}
	if loc == nil {
		return nil, apperr.ErrNotFoundOrForbidden
	}

	s.trips.InvalidateDetail(ctx, tripID)
	if s.pub != nil {
		s.pub.BroadcastTo(ident.UserID, websocket.NewMessage("location", "created", loc.ID, map[string]any{"trip_id": tripID}))
	}
	s.logger.Info("location created", "location_id", loc.ID, "trip_id", tripID, "order", loc.Order)
	return loc, nil
}

// List returns the trip's locations sorted by order.
func (s *Service) List(ctx context.Context, ident auth.Identity, tripID int64) ([]model.Location, error) {
	d, err := s.trips.Get(ctx, ident, tripID)
	if err != nil {
		return nil, err
	}
	return d.Locations, nil
}

func checkCoordinate(field string, v *float64, limit float64) error {
	if v == nil {
		return apperr.Invalid(field, "is required")
	}
	if math.IsNaN(*v) || math.IsInf(*v, 0) {
		return apperr.Invalid(field, "must be a number")
	}
	if *v < -limit || *v > limit {
		return apperr.Invalid(field, fmt.Sprintf("must be between %g and %g", -limit, limit))
	}
	return nil
}
