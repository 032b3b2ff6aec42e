package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"parc-backend/internal/platform/db"
)

type Account struct {
	ID           string
	PasswordHash string
	Role         string
	IsDisabled   bool
	CreatedAt    time.Time
}

// Store reads auth_accounts of whichever tenant database it is handed.
type Store struct{}

func NewStore() *Store { return &Store{} }

// GetByID returns nil, nil when no account matches.
func (s *Store) GetByID(ctx context.Context, q db.DBTX, id string) (*Account, error) {
	const query = `
SELECT id, password_hash, role, is_disabled, created_at
FROM auth_accounts
WHERE id = ?
LIMIT 1
`
	var a Account
	var isDisabledInt int
	err := q.QueryRowContext(ctx, query, id).Scan(
		&a.ID,
		&a.PasswordHash,
		&a.Role,
		&isDisabledInt,
		&a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.IsDisabled = isDisabledInt != 0
	return &a, nil
}

func (s *Store) Create(ctx context.Context, q db.DBTX, a *Account) error {
	const query = `
INSERT INTO auth_accounts (id, password_hash, role, is_disabled, created_at)
VALUES (?, ?, ?, 0, ?)
`
	_, err := q.ExecContext(ctx, query, a.ID, a.PasswordHash, a.Role, a.CreatedAt.UTC())
	return err
}
