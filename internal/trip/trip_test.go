package trip

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/roamer/internal/apperr"
	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/cache"
	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/store"
	"github.com/dukerupert/roamer/internal/websocket"
)

type recordingPublisher struct {
	mu   sync.Mutex
	sent map[string][]websocket.Message
}

func (p *recordingPublisher) BroadcastTo(userID string, msg websocket.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent == nil {
		p.sent = make(map[string][]websocket.Message)
	}
	p.sent[userID] = append(p.sent[userID], msg)
}

type fixture struct {
	svc   *Service
	pub   *recordingPublisher
	ls    *store.LocationStore
	alice auth.Identity
	bob   auth.Identity
	now   time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	us := store.NewUserStore(db)
	a, err := us.Create(ctx, "Alice", nil, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	b, _ := us.Create(ctx, "Bob", nil, "")

	f := &fixture{
		pub:   &recordingPublisher{},
		ls:    store.NewLocationStore(db),
		alice: auth.Identity{UserID: a.ID, Name: a.Name},
		bob:   auth.Identity{UserID: b.ID, Name: b.Name},
		now:   time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC),
	}
	f.svc = NewService(store.NewTripStore(db), f.ls, cache.NewMemory(), f.pub, slog.Default(),
		WithClock(func() time.Time { return f.now }))
	return f
}

func TestCreateAndList(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	trip, err := f.svc.Create(ctx, f.alice, CreateInput{
		Title:       "  Rome Weekend ",
		Description: "Pasta and ruins",
		StartDate:   "2025-07-01",
		EndDate:     "2025-07-03",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if trip.Title != "Rome Weekend" {
		t.Errorf("title = %q, want trimmed", trip.Title)
	}
	if trip.UserID != f.alice.UserID {
		t.Errorf("user_id = %q, want %q", trip.UserID, f.alice.UserID)
	}

	listing, err := f.svc.List(ctx, f.alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listing.Upcoming) != 1 || listing.Upcoming[0].ID != trip.ID {
		t.Errorf("upcoming = %+v, want the new trip", listing.Upcoming)
	}
	if listing.Counts.Total != 1 {
		t.Errorf("total = %d, want 1", listing.Counts.Total)
	}

	msgs := f.pub.sent[f.alice.UserID]
	if len(msgs) != 1 || msgs[0].Type != "trip_created" {
		t.Errorf("published = %+v, want one trip_created", msgs)
	}
	if len(f.pub.sent[f.bob.UserID]) != 0 {
		t.Error("bob should not receive alice's events")
	}
}

func TestCreateRejectsReversedDates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.alice, CreateInput{Title: "Backwards", StartDate: "2025-07-03", EndDate: "2025-07-01"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}

	listing, _ := f.svc.List(ctx, f.alice)
	if listing.Counts.Total != 0 {
		t.Errorf("total = %d, want 0 (nothing persisted)", listing.Counts.Total)
	}
}

func TestCreateValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"blank title", CreateInput{Title: "   ", StartDate: "2025-01-01", EndDate: "2025-01-02"}, "title"},
		{"missing start", CreateInput{Title: "x", EndDate: "2025-01-02"}, "startDate"},
		{"bad end", CreateInput{Title: "x", StartDate: "2025-01-01", EndDate: "next tuesday"}, "endDate"},
		{"bad image", CreateInput{Title: "x", StartDate: "2025-01-01", EndDate: "2025-01-02", ImageURL: "javascript:alert(1)"}, "imageUrl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.alice, tt.in)
			var ve *apperr.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}

func TestCreateAnonymous(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Create(context.Background(), auth.Identity{}, CreateInput{Title: "x", StartDate: "2025-01-01", EndDate: "2025-01-01"})
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCreateAcceptsTimestamps(t *testing.T) {
	f := setup(t)
	trip, err := f.svc.Create(context.Background(), f.alice, CreateInput{
		Title:     "Oslo",
		StartDate: "2025-07-01T22:30:00-05:00",
		EndDate:   "2025-07-05T00:00:00Z",
		ImageURL:  "/uploads/abc/0123456789abcdef.jpg",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if trip.StartDate != "2025-07-02" {
		t.Errorf("start = %q, want UTC day 2025-07-02", trip.StartDate)
	}
	if trip.ImageURL == nil || *trip.ImageURL != "/uploads/abc/0123456789abcdef.jpg" {
		t.Errorf("image_url = %v", trip.ImageURL)
	}
}

func TestListPartitionsAroundToday(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	// today is 2025-06-15
	mk := func(title, start, end string) {
		t.Helper()
		if _, err := f.svc.Create(ctx, f.alice, CreateInput{Title: title, StartDate: start, EndDate: end}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk("ended yesterday", "2025-06-10", "2025-06-14")
	mk("starts today", "2025-06-15", "2025-06-18")
	mk("ends today", "2025-06-12", "2025-06-15")
	mk("next month", "2025-07-01", "2025-07-02")

	listing, err := f.svc.List(ctx, f.alice)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	var up, past, ongoing []string
	for _, t := range listing.Upcoming {
		up = append(up, t.Title)
	}
	for _, t := range listing.Past {
		past = append(past, t.Title)
	}
	for _, t := range listing.Ongoing {
		ongoing = append(ongoing, t.Title)
	}

	wantUp := []string{"next month", "starts today"}
	if len(up) != len(wantUp) || up[0] != wantUp[0] || up[1] != wantUp[1] {
		t.Errorf("upcoming = %v, want %v", up, wantUp)
	}
	if len(past) != 1 || past[0] != "ended yesterday" {
		t.Errorf("past = %v, want [ended yesterday]", past)
	}
	if len(ongoing) != 1 || ongoing[0] != "ends today" {
		t.Errorf("ongoing = %v, want [ends today]", ongoing)
	}
	want := Counts{Total: 4, Upcoming: 2, Past: 1, Ongoing: 1}
	if listing.Counts != want {
		t.Errorf("counts = %+v, want %+v", listing.Counts, want)
	}

	// Crossing midnight re-partitions cached rows.
	f.now = f.now.Add(24 * time.Hour)
	listing, _ = f.svc.List(ctx, f.alice)
	if listing.Counts.Past != 2 {
		t.Errorf("past after midnight = %d, want 2", listing.Counts.Past)
	}
}

func TestListAnonymousIsEmpty(t *testing.T) {
	f := setup(t)
	listing, err := f.svc.List(context.Background(), auth.Identity{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if listing.Counts.Total != 0 || len(listing.Upcoming) != 0 || len(listing.Past) != 0 {
		t.Errorf("listing = %+v, want empty", listing)
	}
}

func TestListIsolatedPerUser(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.svc.Create(ctx, f.alice, CreateInput{Title: "Alice trip", StartDate: "2025-08-01", EndDate: "2025-08-02"})

	listing, _ := f.svc.List(ctx, f.bob)
	if listing.Counts.Total != 0 {
		t.Errorf("bob sees %d trips, want 0", listing.Counts.Total)
	}
}

func TestGet(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	trip, _ := f.svc.Create(ctx, f.alice, CreateInput{Title: "Rome", StartDate: "2025-08-01", EndDate: "2025-08-02"})

	d, err := f.svc.Get(ctx, f.alice, trip.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if d.Trip.ID != trip.ID || len(d.Locations) != 0 {
		t.Errorf("detail = %+v", d)
	}

	for _, tc := range []struct {
		name  string
		ident auth.Identity
		id    int64
	}{
		{"foreign", f.bob, trip.ID},
		{"missing", f.alice, trip.ID + 100},
		{"anonymous", auth.Identity{}, trip.ID},
	} {
		if _, err := f.svc.Get(ctx, tc.ident, tc.id); !errors.Is(err, apperr.ErrNotFoundOrForbidden) {
			t.Errorf("%s: err = %v, want ErrNotFoundOrForbidden", tc.name, err)
		}
	}
}

func TestGetCachedDetailInvalidated(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	trip, _ := f.svc.Create(ctx, f.alice, CreateInput{Title: "Rome", StartDate: "2025-08-01", EndDate: "2025-08-02"})

	if _, err := f.svc.Get(ctx, f.alice, trip.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := f.ls.Append(ctx, trip.ID, f.alice.UserID, "Colosseum", nil, 41.89, 12.49); err != nil {
		t.Fatalf("append: %v", err)
	}

	stale, _ := f.svc.Get(ctx, f.alice, trip.ID)
	if len(stale.Locations) != 0 {
		t.Fatalf("expected cached detail before invalidation")
	}
	// The cached copy is still owner-checked.
	if _, err := f.svc.Get(ctx, f.bob, trip.ID); !errors.Is(err, apperr.ErrNotFoundOrForbidden) {
		t.Errorf("bob err = %v, want ErrNotFoundOrForbidden", err)
	}

	f.svc.InvalidateDetail(ctx, trip.ID)
	fresh, _ := f.svc.Get(ctx, f.alice, trip.ID)
	if len(fresh.Locations) != 1 {
		t.Errorf("locations = %d, want 1", len(fresh.Locations))
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"2025-05-01", "2025-05-01", false},
		{" 2025-05-01 ", "2025-05-01", false},
		{"2025-05-01T23:00:00-02:00", "2025-05-02", false},
		{"2025-02-30", "", true},
		{"", "", true},
		{"05/01/2025", "", true},
	}
	for _, tt := range tests {
		got, err := ParseDate(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseDate(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
