package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/roamer/internal/apperr"
	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/model"
)

var pages = []string{"home.html", "trips.html", "trip.html", "location_new.html", "error.html"}

// pageData is what every page template receives.
type pageData struct {
	Title   string
	User    auth.Identity
	Error   string
	TileURL string
	Data    any
}

// Renderer executes page templates, each parsed together with the layout.
type Renderer struct {
	pages   map[string]*template.Template
	tileURL string
	logger  *slog.Logger
}

// NewRenderer parses templates from fsys. tileURL is the map tile URL
// template; empty uses OpenStreetMap.
func NewRenderer(fsys fs.FS, tileURL string, logger *slog.Logger) (*Renderer, error) {
	funcs := template.FuncMap{
		"formatDate": formatDate,
		"json": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}
	r := &Renderer{pages: make(map[string]*template.Template), tileURL: tileURL, logger: logger}
	for _, p := range pages {
		t, err := template.New(p).Funcs(funcs).ParseFS(fsys, "templates/layout.html", "templates/"+p)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		r.pages[p] = t
	}
	return r, nil
}

// MapboxTileURL returns a Leaflet tile URL for the Mapbox streets style.
func MapboxTileURL(token string) string {
	if token == "" {
		return ""
	}
	return "https://api.mapbox.com/styles/v1/mapbox/streets-v12/tiles/{z}/{x}/{y}?access_token=" + token
}

func (rd *Renderer) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any, errMsg string) {
	t, ok := rd.pages[page]
	if !ok {
		rd.logger.Error("unknown template", "page", page)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	err := t.ExecuteTemplate(&buf, "layout", pageData{
		Title:   title,
		User:    auth.Current(r.Context()),
		Error:   errMsg,
		TileURL: rd.tileURL,
		Data:    data,
	})
	if err != nil {
		rd.logger.Error("render template", "page", page, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// renderError shows the error page with the status for err's kind.
func (rd *Renderer) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	title := apperr.Message(err)
	switch status {
	case http.StatusNotFound:
		title = "Trip not found"
	case http.StatusInternalServerError:
		rd.logger.Error("request failed", "path", r.URL.Path, "error", err)
		title = "Something went wrong"
	}
	rd.render(w, r, status, "error.html", title, nil, "")
}

func formatDate(s string) string {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return s
	}
	return d.Format("Jan 2, 2006")
}
