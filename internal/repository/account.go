package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/stowbox/stowbox/internal/model"
)

// ErrAccountNotFound is returned when no account matches.
var ErrAccountNotFound = errors.New("account not found")

// EnsureAccount returns the account for email, inserting candidate if none exists.
// Concurrent callers for the same email converge on one row.
func (r *Repository) EnsureAccount(ctx context.Context, candidate *model.Account) (*model.Account, error) {
	query := `
		INSERT INTO accounts (id, email, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET email = EXCLUDED.email
		RETURNING id, email, created_at
	`

	createdAt := candidate.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var acc model.Account
	err := r.pool.QueryRow(ctx, query, candidate.ID, strings.ToLower(candidate.Email), createdAt).
		Scan(&acc.ID, &acc.Email, &acc.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure account: %w", err)
	}

	return &acc, nil
}

// GetAccount retrieves an account by id.
func (r *Repository) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	query := `SELECT id, email, created_at FROM accounts WHERE id = $1`

	var acc model.Account
	if err := r.pool.QueryRow(ctx, query, id).Scan(&acc.ID, &acc.Email, &acc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &acc, nil
}
