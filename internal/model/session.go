package model

import "time"

type Session struct {
	ID        int64     `json:"id"`
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Account links a user to an identity at an external OAuth provider.
type Account struct {
	ID                int64      `json:"id"`
	UserID            string     `json:"user_id"`
	Provider          string     `json:"provider"`
	ProviderAccountID string     `json:"provider_account_id"`
	AccessToken       string     `json:"-"`
	TokenType         string     `json:"token_type"`
	Scope             string     `json:"scope"`
	ExpiresAt         *time.Time `json:"expires_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

type VerificationToken struct {
	Identifier string    `json:"identifier"`
	Token      string    `json:"-"`
	ExpiresAt  time.Time `json:"expires_at"`
}
