package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/roamer/internal/database"
	"github.com/dukerupert/roamer/internal/model"
	"github.com/google/uuid"
)

type UserStore struct {
	db *database.DB
}

func NewUserStore(db *database.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var email sql.NullString
	err := scanner.Scan(&u.ID, &u.Name, &email, &u.Image, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Email = fromNullString(email)
	return &u, nil
}

const userCols = `id, name, email, image, created_at, updated_at`

// Create inserts a user with a fresh UUID. A nil email is stored as NULL so
// several users without a public address can coexist.
func (s *UserStore) Create(ctx context.Context, name string, email *string, image string) (*model.User, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO users (id, name, email, image) VALUES (?, ?, ?, ?)`),
		id, name, toNullString(email), image,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+userCols+` FROM users WHERE id = ?`), id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+userCols+` FROM users WHERE email = ?`), email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// UpdateProfile refreshes the name and avatar reported by the identity provider.
func (s *UserStore) UpdateProfile(ctx context.Context, id, name, image string) (*model.User, error) {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE users SET name = ?, image = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`),
		name, image, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update user profile: %w", err)
	}
	return s.GetByID(ctx, id)
}
