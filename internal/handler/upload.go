package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/roamer/internal/apperr"
	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/blob"
	"github.com/dukerupert/roamer/internal/media"
)

// multipartOverhead allows for the form boundary and part headers on top
// of the largest accepted file.
const multipartOverhead = 64 << 10

// Media is the upload service as the handlers use it.
type Media interface {
	Upload(ctx context.Context, ident auth.Identity, up media.Upload) (*media.Result, error)
	Open(ctx context.Context, userID, name string) (*blob.Object, error)
}

type UploadHandler struct {
	media  Media
	logger *slog.Logger
}

func NewUploadHandler(m Media, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{media: m, logger: logger}
}

// Upload accepts a multipart "file" field and responds with {"url": ...}.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ident := auth.Current(r.Context())
	if !ident.Authenticated() {
		writeError(w, h.logger, apperr.ErrUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSize+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, h.logger, apperr.ErrTooLarge)
			return
		}
		writeError(w, h.logger, apperr.Invalid("file", "is required"))
		return
	}
	defer file.Close()

	res, err := h.media.Upload(r.Context(), ident, media.Upload{
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Serve streams a stored upload.
func (h *UploadHandler) Serve(w http.ResponseWriter, r *http.Request) {
	obj, err := h.media.Open(r.Context(), r.PathValue("user"), r.PathValue("name"))
	if err != nil {
		if apperr.Status(err) == http.StatusInternalServerError {
			h.logger.Error("open upload", "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("stream upload", "error", err)
	}
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
