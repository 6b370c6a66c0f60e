package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/roamer/internal/apperr"
	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/geo"
	"github.com/dukerupert/roamer/internal/model"
	"github.com/dukerupert/roamer/internal/trip"
)

// Trips is the trip service as the handlers use it.
type Trips interface {
	Create(ctx context.Context, ident auth.Identity, in trip.CreateInput) (*model.Trip, error)
	List(ctx context.Context, ident auth.Identity) (*trip.Listing, error)
	Get(ctx context.Context, ident auth.Identity, tripID int64) (*trip.Detail, error)
}

type TripHandler struct {
	trips  Trips
	rd     *Renderer
	logger *slog.Logger
}

func NewTripHandler(trips Trips, rd *Renderer, logger *slog.Logger) *TripHandler {
	return &TripHandler{trips: trips, rd: rd, logger: logger}
}

type tripsPage struct {
	Listing *trip.Listing
	Form    trip.CreateInput
}

func (h *TripHandler) Home(w http.ResponseWriter, r *http.Request) {
	h.rd.render(w, r, http.StatusOK, "home.html", "Roamer", nil, "")
}

func (h *TripHandler) TripsPage(w http.ResponseWriter, r *http.Request) {
	h.renderTrips(w, r, http.StatusOK, trip.CreateInput{}, "")
}

func (h *TripHandler) renderTrips(w http.ResponseWriter, r *http.Request, status int, form trip.CreateInput, errMsg string) {
	listing, err := h.trips.List(r.Context(), auth.Current(r.Context()))
	if err != nil {
		h.rd.renderError(w, r, err)
		return
	}
	h.rd.render(w, r, status, "trips.html", "My trips", tripsPage{Listing: listing, Form: form}, errMsg)
}

// CreateForm handles the create-trip form. Failures re-render the listing
// with the submitted values and the error message.
func (h *TripHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderTrips(w, r, http.StatusBadRequest, trip.CreateInput{}, "invalid form")
		return
	}
	in := trip.CreateInput{
		Title:       r.PostForm.Get("title"),
		Description: r.PostForm.Get("description"),
		StartDate:   r.PostForm.Get("startDate"),
		EndDate:     r.PostForm.Get("endDate"),
		ImageURL:    r.PostForm.Get("imageUrl"),
	}

	t, err := h.create(r, in)
	if err != nil {
		h.renderTrips(w, r, apperr.Status(err), in, apperr.Message(err))
		return
	}
	http.Redirect(w, r, tripPath(t.ID), http.StatusSeeOther)
}

func (h *TripHandler) create(r *http.Request, in trip.CreateInput) (*model.Trip, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return h.trips.Create(r.Context(), auth.Current(r.Context()), in)
}

func (h *TripHandler) TripPage(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.rd.renderError(w, r, apperr.ErrNotFoundOrForbidden)
		return
	}
	d, err := h.trips.Get(r.Context(), auth.Current(r.Context()), id)
	if err != nil {
		h.rd.renderError(w, r, err)
		return
	}
	h.rd.render(w, r, http.StatusOK, "trip.html", d.Trip.Title, d, "")
}

func (h *TripHandler) List(w http.ResponseWriter, r *http.Request) {
	listing, err := h.trips.List(r.Context(), auth.Current(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *TripHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in trip.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	t, err := h.create(r, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *TripHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.detail(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// Route returns the trip's locations as GeoJSON for the map.
func (h *TripHandler) Route(w http.ResponseWriter, r *http.Request) {
	d, err := h.detail(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	writeJSON(w, http.StatusOK, geo.Route(d.Locations))
}

func (h *TripHandler) detail(r *http.Request) (*trip.Detail, error) {
	id, err := parseIDParam(r)
	if err != nil {
		return nil, apperr.ErrNotFoundOrForbidden
	}
	return h.trips.Get(r.Context(), auth.Current(r.Context()), id)
}

func tripPath(id int64) string {
	return "/trips/" + strconv.FormatInt(id, 10)
}
