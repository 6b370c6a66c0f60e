package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dukerupert/roamer/internal/blob"
	"github.com/dukerupert/roamer/internal/cache"
	"github.com/dukerupert/roamer/internal/config"
	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/handler"
	"github.com/dukerupert/roamer/internal/identity"
	"github.com/dukerupert/roamer/internal/location"
	"github.com/dukerupert/roamer/internal/media"
	"github.com/dukerupert/roamer/internal/middleware"
	"github.com/dukerupert/roamer/internal/store"
	"github.com/dukerupert/roamer/internal/trip"
	ws "github.com/dukerupert/roamer/internal/websocket"
	"github.com/dukerupert/roamer/web"
)

type Server struct {
	hub           *ws.Hub
	provider      *identity.GitHubProvider
	tripH         *handler.TripHandler
	locationH     *handler.LocationHandler
	uploadH       *handler.UploadHandler
	authH         *handler.AuthHandler
	sessionStore  *store.SessionStore
	tokenStore    *store.VerificationTokenStore
	cache         cache.Cache
	authLimiter   *middleware.RateLimiter
	uploadLimiter *middleware.RateLimiter
	logger        *slog.Logger
}

// New wires stores, services and handlers around an open database, blob
// store and cache.
func New(db *database.DB, blobs blob.Store, c cache.Cache, cfg config.Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	tokenStore := store.NewVerificationTokenStore(db)
	tripStore := store.NewTripStore(db)
	locationStore := store.NewLocationStore(db)

	provider := identity.NewGitHubProvider(identity.GitHubConfig{
		ClientID:     cfg.GitHub.ClientID,
		ClientSecret: cfg.GitHub.ClientSecret,
		RedirectURL:  cfg.CallbackURL(),
		SessionTTL:   cfg.SessionTTL,
	}, identity.Stores{
		Users:    userStore,
		Accounts: store.NewAccountStore(db),
		Sessions: sessionStore,
		Tokens:   tokenStore,
	}, logger.With("component", "identity"))

	trips := trip.NewService(tripStore, locationStore, c, hub, logger.With("component", "trip"),
		trip.WithCacheTTL(cfg.CacheTTL))
	locations := location.NewService(locationStore, trips, hub, logger.With("component", "location"))
	uploads := media.NewService(blobs, logger.With("component", "media"))

	rd, err := handler.NewRenderer(web.Templates, handler.MapboxTileURL(cfg.MapboxToken), logger.With("component", "render"))
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	return &Server{
		hub:           hub,
		provider:      provider,
		tripH:         handler.NewTripHandler(trips, rd, logger.With("component", "trip_handler")),
		locationH:     handler.NewLocationHandler(locations, trips, rd, logger.With("component", "location_handler")),
		uploadH:       handler.NewUploadHandler(uploads, logger.With("component", "upload_handler")),
		authH:         handler.NewAuthHandler(provider, rd, cfg.SecureCookies, logger.With("component", "auth")),
		sessionStore:  sessionStore,
		tokenStore:    tokenStore,
		cache:         c,
		authLimiter:   middleware.NewRateLimiter(10, time.Minute),
		uploadLimiter: middleware.NewRateLimiter(30, time.Minute),
		logger:        logger,
	}, nil
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /{$}", s.tripH.Home)
	outerMux.HandleFunc("GET /trips", s.tripH.TripsPage)
	outerMux.HandleFunc("GET /api/trips", s.tripH.List)
	outerMux.Handle("GET /auth/signin/github", s.authLimited(s.authH.SignIn))
	outerMux.Handle("GET /auth/callback/github", s.authLimited(s.authH.Callback))
	outerMux.HandleFunc("POST /auth/signout", s.authH.SignOut)
	outerMux.HandleFunc("GET /uploads/{user}/{name}", s.uploadH.Serve)
	outerMux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(web.Static())))
	outerMux.HandleFunc("GET /health", handler.Health)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)
	outerMux.Handle("/", middleware.RequireAuth(protectedMux))

	// LoadSession runs before RequestLogger so access logs carry the user.
	var h http.Handler = outerMux
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	h = middleware.LoadSession(s.provider)(h)
	h = chimw.Recoverer(h)
	h = chimw.RequestID(h)
	return h
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Pages and form actions
	mux.HandleFunc("POST /trips", s.tripH.CreateForm)
	mux.HandleFunc("GET /trips/{id}", s.tripH.TripPage)
	mux.HandleFunc("GET /trips/{id}/locations/new", s.locationH.NewPage)
	mux.HandleFunc("POST /trips/{id}/locations", s.locationH.CreateForm)

	// JSON API
	mux.HandleFunc("POST /api/trips", s.tripH.Create)
	mux.HandleFunc("GET /api/trips/{id}", s.tripH.Get)
	mux.HandleFunc("GET /api/trips/{id}/route", s.tripH.Route)
	mux.HandleFunc("POST /api/trips/{id}/locations", s.locationH.Create)
	mux.Handle("POST /api/upload",
		middleware.RateLimit(s.uploadLimiter, middleware.KeyByUser)(http.HandlerFunc(s.uploadH.Upload)))

	mux.HandleFunc("POST /auth/signout/all", s.authH.SignOutAll)

	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}

func (s *Server) authLimited(h http.HandlerFunc) http.Handler {
	return middleware.RateLimit(s.authLimiter, middleware.RealIP)(h)
}

// Cleanup removes expired sessions and sign-in tokens and drops stale
// rate limiter and cache entries.
func (s *Server) Cleanup(ctx context.Context) error {
	sessions, err := s.sessionStore.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	tokens, err := s.tokenStore.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("delete expired tokens: %w", err)
	}
	limited := s.authLimiter.Cleanup() + s.uploadLimiter.Cleanup()
	if m, ok := s.cache.(*cache.Memory); ok {
		m.Sweep()
	}
	s.logger.Info("cleanup done", "sessions", sessions, "tokens", tokens,
		"rate_limit_keys", limited, "live_clients", s.hub.ClientCount())
	return nil
}
