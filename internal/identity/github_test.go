package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/store"
)

// fakeGitHub serves the token endpoint and the user API.
type fakeGitHub struct {
	user         map[string]any
	emails       []map[string]any
	mu           sync.Mutex
	lastVerifier string
}

func (f *fakeGitHub) verifier() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastVerifier
}

func (f *fakeGitHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"bad_verification_code"}`)
			return
		}
		f.mu.Lock()
		f.lastVerifier = r.PostForm.Get("code_verifier")
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"gho_test","token_type":"bearer","scope":"read:user,user:email"}`)
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(f.user)
	})
	mux.HandleFunc("GET /user/emails", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(f.emails)
	})
	return mux
}

func setupProvider(t *testing.T, fake *fakeGitHub) (*GitHubProvider, Stores) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	stores := Stores{
		Users:    store.NewUserStore(db),
		Accounts: store.NewAccountStore(db),
		Sessions: store.NewSessionStore(db),
		Tokens:   store.NewVerificationTokenStore(db),
	}
	p := NewGitHubProvider(GitHubConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:3000/auth/callback/github",
		AuthURL:      srv.URL + "/login/oauth/authorize",
		TokenURL:     srv.URL + "/login/oauth/access_token",
		APIURL:       srv.URL,
	}, stores, slog.Default())
	return p, stores
}

// begin runs Begin and returns the state from the redirect URL.
func begin(t *testing.T, p *GitHubProvider) (string, url.Values) {
	t.Helper()
	redirect, err := p.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	u, err := url.Parse(redirect)
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	return u.Query().Get("state"), u.Query()
}

func TestBeginBuildsPKCEURL(t *testing.T) {
	p, _ := setupProvider(t, &fakeGitHub{})

	state, q := begin(t, p)
	if len(state) != 64 {
		t.Errorf("state length = %d, want 64", len(state))
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q, want S256", q.Get("code_challenge_method"))
	}
	if q.Get("code_challenge") == "" {
		t.Error("expected code_challenge")
	}
	if q.Get("client_id") != "client-id" {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
}

func TestCompleteCreatesUserAndSession(t *testing.T) {
	fake := &fakeGitHub{
		user: map[string]any{"id": 101, "login": "alice", "name": "Alice", "email": "alice@example.com", "avatar_url": "https://avatars.example.com/101"},
	}
	p, stores := setupProvider(t, fake)
	ctx := context.Background()

	state, _ := begin(t, p)
	sess, err := p.Complete(ctx, state, "good-code")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if fake.verifier() == "" {
		t.Error("expected code_verifier in token request")
	}

	user, _ := stores.Users.GetByID(ctx, sess.UserID)
	if user == nil {
		t.Fatal("expected user to be created")
	}
	if user.Name != "Alice" {
		t.Errorf("name = %q, want Alice", user.Name)
	}
	acct, _ := stores.Accounts.GetByProvider(ctx, ProviderGitHub, "101")
	if acct == nil || acct.UserID != user.ID {
		t.Fatalf("account = %+v, want link to %s", acct, user.ID)
	}
	if acct.AccessToken != "gho_test" {
		t.Errorf("access_token = %q", acct.AccessToken)
	}

	// The cookie resolves to the same identity.
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: sess.Token})
	id, ok := p.ResolveSession(ctx, req)
	if !ok {
		t.Fatal("expected session to resolve")
	}
	if id.UserID != user.ID || id.Email != "alice@example.com" {
		t.Errorf("identity = %+v", id)
	}
}

func TestCompleteStateIsSingleUse(t *testing.T) {
	fake := &fakeGitHub{user: map[string]any{"id": 7, "login": "bob"}}
	p, _ := setupProvider(t, fake)
	ctx := context.Background()

	state, _ := begin(t, p)
	if _, err := p.Complete(ctx, state, "good-code"); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if _, err := p.Complete(ctx, state, "good-code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("second complete err = %v, want ErrInvalidState", err)
	}
	if _, err := p.Complete(ctx, "never-issued", "good-code"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("unknown state err = %v, want ErrInvalidState", err)
	}
}

func TestCompleteBadCode(t *testing.T) {
	p, _ := setupProvider(t, &fakeGitHub{user: map[string]any{"id": 7, "login": "bob"}})

	state, _ := begin(t, p)
	if _, err := p.Complete(context.Background(), state, "wrong"); err == nil {
		t.Error("expected exchange error")
	}
}

func TestCompleteLinksByEmail(t *testing.T) {
	fake := &fakeGitHub{
		user:   map[string]any{"id": 55, "login": "carol", "email": ""},
		emails: []map[string]any{{"email": "old@example.com", "primary": false, "verified": true}, {"email": "carol@example.com", "primary": true, "verified": true}},
	}
	p, stores := setupProvider(t, fake)
	ctx := context.Background()

	email := "carol@example.com"
	existing, err := stores.Users.Create(ctx, "Carol", &email, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	state, _ := begin(t, p)
	sess, err := p.Complete(ctx, state, "good-code")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if sess.UserID != existing.ID {
		t.Errorf("session user = %q, want existing %q", sess.UserID, existing.ID)
	}
	updated, _ := stores.Users.GetByID(ctx, existing.ID)
	if updated.Name != "carol" {
		t.Errorf("name = %q, want login fallback carol", updated.Name)
	}
}

func TestResolveSessionAnonymous(t *testing.T) {
	p, stores := setupProvider(t, &fakeGitHub{})
	ctx := context.Background()

	if _, ok := p.ResolveSession(ctx, httptest.NewRequest("GET", "/", nil)); ok {
		t.Error("expected no identity without cookie")
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "bogus"})
	if _, ok := p.ResolveSession(ctx, req); ok {
		t.Error("expected no identity for unknown token")
	}

	u, _ := stores.Users.Create(ctx, "Dan", nil, "")
	sess, _ := stores.Sessions.Create(ctx, u.ID, time.Hour)
	if err := p.SignOut(ctx, sess.Token); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: sess.Token})
	if _, ok := p.ResolveSession(ctx, req); ok {
		t.Error("expected no identity after sign out")
	}
}

func TestSignOutAll(t *testing.T) {
	p, stores := setupProvider(t, &fakeGitHub{})
	ctx := context.Background()

	u, _ := stores.Users.Create(ctx, "Erin", nil, "")
	other, _ := stores.Users.Create(ctx, "Finn", nil, "")
	laptop, _ := stores.Sessions.Create(ctx, u.ID, time.Hour)
	phone, _ := stores.Sessions.Create(ctx, u.ID, time.Hour)
	kept, _ := stores.Sessions.Create(ctx, other.ID, time.Hour)

	if err := p.SignOutAll(ctx, u.ID); err != nil {
		t.Fatalf("sign out all: %v", err)
	}

	for name, tok := range map[string]string{"laptop": laptop.Token, "phone": phone.Token} {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
		if _, ok := p.ResolveSession(ctx, req); ok {
			t.Errorf("%s session still valid", name)
		}
	}
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: kept.Token})
	if _, ok := p.ResolveSession(ctx, req); !ok {
		t.Error("another user's session was ended")
	}
}
