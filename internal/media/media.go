// Package media accepts image uploads for trip covers and serves them back.
package media

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	"github.com/dukerupert/roamer/internal/apperr"
	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/blob"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// MaxUploadSize is the largest accepted image, 5 MiB.
const MaxUploadSize = 5 << 20

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
}

var storedName = regexp.MustCompile(`^[0-9a-f]{16}\.(jpg|png|webp)$`)

type Upload struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

type Result struct {
	URL         string `json:"url"`
	Key         string `json:"-"`
	ContentType string `json:"-"`
}

type Service struct {
	blobs  blob.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(blobs blob.Store, logger *slog.Logger) *Service {
	return &Service{blobs: blobs, logger: logger, now: time.Now}
}

// Upload stores an image for the caller and returns its public URL.
func (s *Service) Upload(ctx context.Context, ident auth.Identity, up Upload) (*Result, error) {
	if !ident.Authenticated() {
		return nil, apperr.ErrUnauthorized
	}
	if _, ok := extensions[up.ContentType]; !ok {
		return nil, apperr.ErrUnsupportedType
	}
	if up.Size > MaxUploadSize {
		return nil, apperr.ErrTooLarge
	}

	// Read one byte past the limit so an understated Size is still caught.
	data, err := io.ReadAll(io.LimitReader(up.Body, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxUploadSize {
		return nil, apperr.ErrTooLarge
	}

	detected := mimetype.Detect(data).String()
	ext, ok := extensions[detected]
	if !ok {
		return nil, apperr.ErrUnsupportedType
	}

	name := s.fileName(ident.UserID) + "." + ext
	key := objectKey(ident.UserID, name)
	if err := s.blobs.Put(ctx, key, data, detected); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	s.logger.Info("image uploaded", "user_id", ident.UserID, "key", key, "bytes", len(data))
	return &Result{
		URL:         "/uploads/" + url.PathEscape(ident.UserID) + "/" + name,
		Key:         key,
		ContentType: detected,
	}, nil
}

// Open returns a stored upload. Names that could not have been issued by
// Upload are reported as not found.
func (s *Service) Open(ctx context.Context, userID, name string) (*blob.Object, error) {
	if userID == "" || !storedName.MatchString(name) {
		return nil, apperr.ErrNotFoundOrForbidden
	}
	obj, err := s.blobs.Open(ctx, objectKey(userID, name))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, apperr.ErrNotFoundOrForbidden
	}
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	return obj, nil
}

// fileName derives a 16 hex char name from the user, the current time and a
// random component.
func (s *Service) fileName(userID string) string {
	seed := fmt.Sprintf("%s-%d-%s", userID, s.now().UnixMilli(), uuid.NewString())
	sum := blake2b.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])[:16]
}

func objectKey(userID, name string) string {
	return "uploads/" + userID + "/" + name
}
