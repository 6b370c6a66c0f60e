package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/model"
)

type AccountStore struct {
	db *database.DB
}

func NewAccountStore(db *database.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var expiresAt sql.NullTime
	err := scanner.Scan(
		&a.ID, &a.UserID, &a.Provider, &a.ProviderAccountID, &a.AccessToken,
		&a.TokenType, &a.Scope, &expiresAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ExpiresAt = fromNullTime(expiresAt)
	return &a, nil
}

const accountCols = `id, user_id, provider, provider_account_id, access_token, token_type, scope, expires_at, created_at, updated_at`

// GetByProvider returns the account linked to the provider identity, or nil.
func (s *AccountStore) GetByProvider(ctx context.Context, provider, providerAccountID string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+accountCols+` FROM accounts WHERE provider = ? AND provider_account_id = ?`),
		provider, providerAccountID,
	)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account by provider: %w", err)
	}
	return a, nil
}

// Upsert links the provider identity to a.UserID, refreshing the stored token
// when the link already exists. The owning user of an existing link is kept.
func (s *AccountStore) Upsert(ctx context.Context, a *model.Account) (*model.Account, error) {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO accounts (user_id, provider, provider_account_id, access_token, token_type, scope, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_account_id) DO UPDATE SET
		   access_token = excluded.access_token,
		   token_type = excluded.token_type,
		   scope = excluded.scope,
		   expires_at = excluded.expires_at,
		   updated_at = CURRENT_TIMESTAMP`),
		a.UserID, a.Provider, a.ProviderAccountID, a.AccessToken, a.TokenType, a.Scope, toNullTime(a.ExpiresAt),
	)
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return s.GetByProvider(ctx, a.Provider, a.ProviderAccountID)
}

func (s *AccountStore) ListByUser(ctx context.Context, userID string) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.Rebind(`SELECT `+accountCols+` FROM accounts WHERE user_id = ? ORDER BY id`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}
