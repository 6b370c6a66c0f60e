package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dukerupert/roamer/internal/auth"
)

// SessionResolver looks up the identity behind a request's session cookie.
type SessionResolver interface {
	ResolveSession(ctx context.Context, r *http.Request) (auth.Identity, bool)
}

// LoadSession attaches the request's identity to its context. Requests
// without a valid session continue as anonymous.
func LoadSession(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := resolver.ResolveSession(r.Context(), r)
			if !ok {
				id = auth.Identity{}
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAuth rejects anonymous requests. API and websocket paths get a 401;
// pages redirect to the sign-in flow.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth.Current(r.Context()).Authenticated() {
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/ws" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"sign in required"}` + "\n"))
			return
		}
		http.Redirect(w, r, "/auth/signin/github", http.StatusSeeOther)
	})
}
