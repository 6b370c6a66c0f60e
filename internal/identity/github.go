// Package identity signs users in through GitHub and tracks their sessions.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/roamer/internal/auth"
	"github.com/dukerupert/roamer/internal/model"
	"github.com/dukerupert/roamer/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const (
	ProviderGitHub = "github"
	CookieName     = "roamer_session"

	stateTTL      = 10 * time.Minute
	defaultAPIURL = "https://api.github.com"
)

// ErrInvalidState means the callback did not match a pending sign-in.
var ErrInvalidState = errors.New("sign-in attempt expired or invalid")

type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	SessionTTL   time.Duration

	// Overrides for the provider endpoints; empty means github.com.
	AuthURL  string
	TokenURL string
	APIURL   string
}

type Stores struct {
	Users    *store.UserStore
	Accounts *store.AccountStore
	Sessions *store.SessionStore
	Tokens   *store.VerificationTokenStore
}

// GitHubProvider runs the OAuth authorization code flow with PKCE against
// GitHub and persists the result as a database session.
type GitHubProvider struct {
	oauth      *oauth2.Config
	apiURL     string
	sessionTTL time.Duration
	stores     Stores
	logger     *slog.Logger
}

func NewGitHubProvider(cfg GitHubConfig, stores Stores, logger *slog.Logger) *GitHubProvider {
	endpoint := github.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &GitHubProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"read:user", "user:email"},
		},
		apiURL:     strings.TrimRight(apiURL, "/"),
		sessionTTL: cfg.SessionTTL,
		stores:     stores,
		logger:     logger,
	}
}

// ResolveSession returns the identity behind the request's session cookie.
func (p *GitHubProvider) ResolveSession(ctx context.Context, r *http.Request) (auth.Identity, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return auth.Identity{}, false
	}

	sess, err := p.stores.Sessions.GetByToken(ctx, cookie.Value)
	if err != nil {
		p.logger.Error("resolve session", "error", err)
		return auth.Identity{}, false
	}
	if sess == nil {
		return auth.Identity{}, false
	}

	user, err := p.stores.Users.GetByID(ctx, sess.UserID)
	if err != nil || user == nil {
		return auth.Identity{}, false
	}

	id := auth.Identity{
		UserID:    user.ID,
		Name:      user.DisplayName(),
		Image:     user.Image,
		SessionID: sess.ID,
	}
	if user.Email != nil {
		id.Email = *user.Email
	}
	return id, true
}

// Begin starts a sign-in and returns the provider URL to redirect to.
func (p *GitHubProvider) Begin(ctx context.Context) (string, error) {
	state, err := randomToken()
	if err != nil {
		return "", err
	}
	verifier := oauth2.GenerateVerifier()

	if err := p.stores.Tokens.Create(ctx, stateIdentifier(state), verifier, time.Now().Add(stateTTL)); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return p.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// Complete finishes a sign-in started by Begin and opens a session.
func (p *GitHubProvider) Complete(ctx context.Context, state, code string) (*model.Session, error) {
	if state == "" || code == "" {
		return nil, ErrInvalidState
	}
	vt, err := p.stores.Tokens.Use(ctx, stateIdentifier(state))
	if err != nil {
		return nil, err
	}
	if vt == nil {
		return nil, ErrInvalidState
	}

	tok, err := p.oauth.Exchange(ctx, code, oauth2.VerifierOption(vt.Token))
	if err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}

	gh, err := p.fetchUser(ctx, tok)
	if err != nil {
		return nil, err
	}

	user, err := p.linkUser(ctx, gh)
	if err != nil {
		return nil, err
	}

	acct := &model.Account{
		UserID:            user.ID,
		Provider:          ProviderGitHub,
		ProviderAccountID: strconv.FormatInt(gh.ID, 10),
		AccessToken:       tok.AccessToken,
		TokenType:         tok.TokenType,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		acct.Scope = scope
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		acct.ExpiresAt = &exp
	}
	if _, err := p.stores.Accounts.Upsert(ctx, acct); err != nil {
		return nil, err
	}

	sess, err := p.stores.Sessions.Create(ctx, user.ID, p.sessionTTL)
	if err != nil {
		return nil, err
	}
	p.logger.Info("user signed in", "user_id", user.ID, "github_login", gh.Login)
	return sess, nil
}

// SignOut deletes the session behind token.
func (p *GitHubProvider) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return p.stores.Sessions.DeleteByToken(ctx, token)
}

// SignOutAll ends every session of the user, on all devices.
func (p *GitHubProvider) SignOutAll(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	return p.stores.Sessions.DeleteByUserID(ctx, userID)
}

// linkUser finds the local user for a GitHub identity. An existing account
// link wins; otherwise a user with the same email is reused, and only then is
// a new user created.
func (p *GitHubProvider) linkUser(ctx context.Context, gh *githubUser) (*model.User, error) {
	name := gh.Name
	if name == "" {
		name = gh.Login
	}

	acct, err := p.stores.Accounts.GetByProvider(ctx, ProviderGitHub, strconv.FormatInt(gh.ID, 10))
	if err != nil {
		return nil, err
	}
	if acct != nil {
		return p.stores.Users.UpdateProfile(ctx, acct.UserID, name, gh.AvatarURL)
	}

	if gh.Email != "" {
		existing, err := p.stores.Users.GetByEmail(ctx, gh.Email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return p.stores.Users.UpdateProfile(ctx, existing.ID, name, gh.AvatarURL)
		}
	}

	var email *string
	if gh.Email != "" {
		email = &gh.Email
	}
	return p.stores.Users.Create(ctx, name, email, gh.AvatarURL)
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *GitHubProvider) fetchUser(ctx context.Context, tok *oauth2.Token) (*githubUser, error) {
	client := p.oauth.Client(ctx, tok)

	var gh githubUser
	if err := getJSON(ctx, client, p.apiURL+"/user", &gh); err != nil {
		return nil, fmt.Errorf("fetch github user: %w", err)
	}
	if gh.ID == 0 {
		return nil, errors.New("fetch github user: missing id")
	}

	// Users with a private email need the emails endpoint.
	if gh.Email == "" {
		var emails []githubEmail
		if err := getJSON(ctx, client, p.apiURL+"/user/emails", &emails); err != nil {
			p.logger.Warn("fetch github emails", "error", err)
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				gh.Email = e.Email
				break
			}
		}
	}
	return &gh, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

func stateIdentifier(state string) string {
	return "oauth_state:" + state
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
