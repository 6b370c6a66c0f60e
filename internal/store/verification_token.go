package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/model"
)

type VerificationTokenStore struct {
	db *database.DB
}

func NewVerificationTokenStore(db *database.DB) *VerificationTokenStore {
	return &VerificationTokenStore{db: db}
}

func (s *VerificationTokenStore) Create(ctx context.Context, identifier, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO verification_tokens (identifier, token, expires_at) VALUES (?, ?, ?)`),
		identifier, token, expiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert verification token: %w", err)
	}
	return nil
}

// Use deletes and returns the token stored under identifier. It returns nil
// when no token exists, the token has expired, or a concurrent caller consumed
// it first.
func (s *VerificationTokenStore) Use(ctx context.Context, identifier string) (*model.VerificationToken, error) {
	var vt model.VerificationToken
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT identifier, token, expires_at FROM verification_tokens WHERE identifier = ?`),
		identifier,
	).Scan(&vt.Identifier, &vt.Token, &vt.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get verification token: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM verification_tokens WHERE identifier = ? AND token = ?`),
		vt.Identifier, vt.Token,
	)
	if err != nil {
		return nil, fmt.Errorf("delete verification token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 || !vt.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &vt, nil
}

func (s *VerificationTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM verification_tokens WHERE expires_at <= ?`),
		time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired verification tokens: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return count, nil
}
