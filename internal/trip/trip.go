// Package trip implements creating, listing and viewing a user's trips.
package trip

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/dukerupert/roamer/internal/apperr"
	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/cache"
	"github.com/dukerupert/roamer/internal/model"
	"github.com/dukerupert/roamer/internal/store"
	"github.com/dukerupert/roamer/internal/websocket"
)

// Publisher delivers refresh events to one user's open pages.
type Publisher interface {
	BroadcastTo(userID string, msg websocket.Message)
}

// CreateInput is the payload of the create-trip form and API.
type CreateInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	StartDate   string `json:"startDate" validate:"required"`
	EndDate     string `json:"endDate" validate:"required"`
	ImageURL    string `json:"imageUrl" validate:"omitempty,max=2048"`
}

type Counts struct {
	Total    int `json:"total"`
	Upcoming int `json:"upcoming"`
	Past     int `json:"past"`
	Ongoing  int `json:"ongoing"`
}

// Listing partitions a user's trips around today's date. A trip that has
// started but not ended is in Ongoing only.
type Listing struct {
	Upcoming []model.Trip `json:"upcoming"`
	Past     []model.Trip `json:"past"`
	Ongoing  []model.Trip `json:"ongoing"`
	Counts   Counts       `json:"counts"`
}

type Detail struct {
	Trip      model.Trip       `json:"trip"`
	Locations []model.Location `json:"locations"`
}

type Service struct {
	trips     *store.TripStore
	locations *store.LocationStore
	cache     cache.Cache
	cacheTTL  time.Duration
	pub       Publisher
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithClock overrides the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

func NewService(trips *store.TripStore, locations *store.LocationStore, c cache.Cache, pub Publisher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		trips:     trips,
		locations: locations,
		cache:     c,
		cacheTTL:  5 * time.Minute,
		pub:       pub,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Today returns the current UTC calendar day.
func (s *Service) Today() string {
	return s.now().UTC().Format(model.DateLayout)
}

func (s *Service) Create(ctx context.Context, ident auth.Identity, in CreateInput) (*model.Trip, error) {
	if !ident.Authenticated() {
		return nil, apperr.ErrUnauthorized
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Invalid("title", "is required")
	}
	start, err := ParseDate(in.StartDate)
	if err != nil {
		return nil, apperr.Invalid("startDate", err.Error())
	}
	end, err := ParseDate(in.EndDate)
	if err != nil {
		return nil, apperr.Invalid("endDate", err.Error())
	}
	if start > end {
		return nil, apperr.Invalid("endDate", "must not be before the start date")
	}
	imageURL, err := normalizeImageURL(in.ImageURL)
	if err != nil {
		return nil, err
	}

	var description *string
	if d := strings.TrimSpace(in.Description); d != "" {
		description = &d
	}

	t, err := s.trips.Create(ctx, ident.UserID, title, description, start, end, imageURL)
	if err != nil {
		return nil, fmt.Errorf("create trip: %w", err)
	}

	s.invalidate(ctx, cache.TripsKey(ident.UserID))
	if s.pub != nil {
		s.pub.BroadcastTo(ident.UserID, websocket.NewMessage("trip", "created", t.ID, nil))
	}
	s.logger.Info("trip created", "trip_id", t.ID, "user_id", ident.UserID)
	return t, nil
}

// List returns the caller's trips split into upcoming, past and ongoing.
// Anonymous callers get an empty listing.
func (s *Service) List(ctx context.Context, ident auth.Identity) (*Listing, error) {
	listing := &Listing{Upcoming: []model.Trip{}, Past: []model.Trip{}, Ongoing: []model.Trip{}}
	if !ident.Authenticated() {
		return listing, nil
	}

	var all []model.Trip
	key := cache.TripsKey(ident.UserID)
	hit, err := cache.GetJSON(ctx, s.cache, key, &all)
	if err != nil {
		s.logger.Warn("read trip listing cache", "key", key, "error", err)
	}
	if !hit {
		all, err = s.trips.ListByUser(ctx, ident.UserID)
		if err != nil {
			return nil, fmt.Errorf("list trips: %w", err)
		}
		if err := cache.SetJSON(ctx, s.cache, key, all, s.cacheTTL); err != nil {
			s.logger.Warn("write trip listing cache", "key", key, "error", err)
		}
	}

	today := s.Today()
	for _, t := range all {
		switch {
		case t.StartDate >= today:
			listing.Upcoming = append(listing.Upcoming, t)
		case t.EndDate < today:
			listing.Past = append(listing.Past, t)
		default:
			listing.Ongoing = append(listing.Ongoing, t)
		}
	}
	listing.Counts = Counts{
		Total:    len(all),
		Upcoming: len(listing.Upcoming),
		Past:     len(listing.Past),
		Ongoing:  len(listing.Ongoing),
	}
	return listing, nil
}

// Get returns a trip owned by the caller with its locations in order.
func (s *Service) Get(ctx context.Context, ident auth.Identity, tripID int64) (*Detail, error) {
	if !ident.Authenticated() {
		return nil, apperr.ErrNotFoundOrForbidden
	}

	var d Detail
	key := cache.TripKey(tripID)
	hit, err := cache.GetJSON(ctx, s.cache, key, &d)
	if err != nil {
		s.logger.Warn("read trip cache", "key", key, "error", err)
	}
	if hit {
		if d.Trip.UserID != ident.UserID {
			return nil, apperr.ErrNotFoundOrForbidden
		}
		return &d, nil
	}

	t, err := s.trips.GetForOwner(ctx, tripID, ident.UserID)
	if err != nil {
		return nil, fmt.Errorf("get trip: %w", err)
	}
	if t == nil {
		return nil, apperr.ErrNotFoundOrForbidden
	}
	locs, err := s.locations.ListByTrip(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("get trip: %w", err)
	}
	if locs == nil {
		locs = []model.Location{}
	}
	d = Detail{Trip: *t, Locations: locs}

	if err := cache.SetJSON(ctx, s.cache, key, d, s.cacheTTL); err != nil {
		s.logger.Warn("write trip cache", "key", key, "error", err)
	}
	return &d, nil
}

// InvalidateDetail drops the cached detail view of a trip.
func (s *Service) InvalidateDetail(ctx context.Context, tripID int64) {
	s.invalidate(ctx, cache.TripKey(tripID))
}

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("invalidate cache", "keys", keys, "error", err)
	}
}

// ParseDate normalizes a calendar date to YYYY-MM-DD. RFC 3339 timestamps are
// truncated to their UTC day.
func ParseDate(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("is required")
	}
	if d, err := time.Parse(model.DateLayout, v); err == nil {
		return d.Format(model.DateLayout), nil
	}
	if ts, err := time.Parse(time.RFC3339, v); err == nil {
		return ts.UTC().Format(model.DateLayout), nil
	}
	return "", fmt.Errorf("must be a date like 2006-01-02")
}

func normalizeImageURL(v string) (*string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if strings.HasPrefix(v, "/uploads/") {
		return &v, nil
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Invalid("imageUrl", "must be an uploaded image or an http(s) URL")
	}
	return &v, nil
}
