package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/identity"
	"github.com/dukerupert/roamer/internal/model"
)

// Authenticator runs the OAuth sign-in flow.
type Authenticator interface {
	Begin(ctx context.Context) (string, error)
	Complete(ctx context.Context, state, code string) (*model.Session, error)
	SignOut(ctx context.Context, token string) error
	SignOutAll(ctx context.Context, userID string) error
}

type AuthHandler struct {
	auth          Authenticator
	rd            *Renderer
	secureCookies bool
	logger        *slog.Logger
}

func NewAuthHandler(a Authenticator, rd *Renderer, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: a, rd: rd, secureCookies: secureCookies, logger: logger}
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	url, err := h.auth.Begin(r.Context())
	if err != nil {
		h.rd.renderError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		h.logger.Info("sign-in declined", "error", e)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	sess, err := h.auth.Complete(r.Context(), q.Get("state"), q.Get("code"))
	if errors.Is(err, identity.ErrInvalidState) {
		h.rd.render(w, r, http.StatusBadRequest, "error.html", "Sign-in expired, please try again", nil, "")
		return
	}
	if err != nil {
		h.logger.Error("complete sign-in", "error", err)
		h.rd.render(w, r, http.StatusBadGateway, "error.html", "Could not sign in with GitHub", nil, "")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     identity.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/trips", http.StatusSeeOther)
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(identity.CookieName); err == nil {
		if err := h.auth.SignOut(r.Context(), c.Value); err != nil {
			h.logger.Error("sign out", "error", err)
		}
	}
	h.clearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// SignOutAll ends the caller's sessions on every device.
func (h *AuthHandler) SignOutAll(w http.ResponseWriter, r *http.Request) {
	if uid := auth.UserID(r.Context()); uid != "" {
		if err := h.auth.SignOutAll(r.Context(), uid); err != nil {
			h.rd.renderError(w, r, err)
			return
		}
		h.logger.Info("signed out everywhere", "user_id", uid)
	}
	h.clearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
