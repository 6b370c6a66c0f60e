package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/roamer/internal/apperr"
	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/location"
	"github.com/dukerupert/roamer/internal/model"
	"github.com/dukerupert/roamer/internal/trip"
)

// Locations is the location service as the handlers use it.
type Locations interface {
	Create(ctx context.Context, ident auth.Identity, tripID int64, in location.CreateInput) (*model.Location, error)
}

type LocationHandler struct {
	locations Locations
	trips     Trips
	rd        *Renderer
	logger    *slog.Logger
}

func NewLocationHandler(locations Locations, trips Trips, rd *Renderer, logger *slog.Logger) *LocationHandler {
	return &LocationHandler{locations: locations, trips: trips, rd: rd, logger: logger}
}

// locationForm keeps the raw submitted values so a failed submit can be
// shown again as typed.
type locationForm struct {
	Title   string
	Address string
	Lat     string
	Lng     string
}

type locationPage struct {
	Trip      model.Trip
	Locations []model.Location
	Form      locationForm
}

func (h *LocationHandler) NewPage(w http.ResponseWriter, r *http.Request) {
	h.renderNew(w, r, http.StatusOK, locationForm{}, "")
}

func (h *LocationHandler) renderNew(w http.ResponseWriter, r *http.Request, status int, form locationForm, errMsg string) {
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
	page := locationPage{Trip: d.Trip, Locations: d.Locations, Form: form}
	h.rd.render(w, r, status, "location_new.html", "Add location", page, errMsg)
}

// CreateForm handles the add-location form and redirects to the trip. The
// trip's ownership is checked before the submitted values are.
func (h *LocationHandler) CreateForm(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		h.rd.renderError(w, r, apperr.ErrNotFoundOrForbidden)
		return
	}
	if err := h.ownTrip(r, id); err != nil {
		h.rd.renderError(w, r, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderNew(w, r, http.StatusBadRequest, locationForm{}, "invalid form")
		return
	}
	form := locationForm{
		Title:   r.PostForm.Get("title"),
		Address: r.PostForm.Get("address"),
		Lat:     r.PostForm.Get("lat"),
		Lng:     r.PostForm.Get("lng"),
	}

	in, err := form.input()
	if err == nil {
		_, err = h.create(r, id, in)
	}
	switch {
	case err == nil:
		http.Redirect(w, r, tripPath(id), http.StatusSeeOther)
	case apperr.Status(err) == http.StatusBadRequest:
		h.renderNew(w, r, http.StatusBadRequest, form, apperr.Message(err))
	default:
		h.rd.renderError(w, r, err)
	}
}

// ownTrip reports ErrUnauthorized or ErrNotFoundOrForbidden unless the
// caller owns the trip.
func (h *LocationHandler) ownTrip(r *http.Request, tripID int64) error {
	ident := auth.Current(r.Context())
	if !ident.Authenticated() {
		return apperr.ErrUnauthorized
	}
	_, err := h.trips.Get(r.Context(), ident, tripID)
	return err
}

func (f locationForm) input() (location.CreateInput, error) {
	in := location.CreateInput{Title: f.Title, Address: f.Address}
	var err error
	if in.Lat, err = parseCoordinate("lat", f.Lat); err != nil {
		return in, err
	}
	if in.Lng, err = parseCoordinate("lng", f.Lng); err != nil {
		return in, err
	}
	return in, nil
}

func parseCoordinate(field, v string) (*float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, apperr.Invalid(field, "is required")
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, apperr.Invalid(field, "must be a number")
	}
	return &f, nil
}

func (h *LocationHandler) create(r *http.Request, tripID int64, in location.CreateInput) (*model.Location, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	return h.locations.Create(r.Context(), auth.Current(r.Context()), tripID, in)
}

func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, h.logger, apperr.ErrNotFoundOrForbidden)
		return
	}
	if err := h.ownTrip(r, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	var in location.CreateInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, h.logger, err)
		return
	}
	loc, err := h.create(r, id, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, loc)
}

var _ Trips = (*trip.Service)(nil)
var _ Locations = (*location.Service)(nil)
