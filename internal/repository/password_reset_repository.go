package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"allhall/internal/domain"
)

var ErrPasswordResetNotFound = fmt.Errorf("password reset %w", domain.ErrNotFound)

type PasswordResetRepository interface {
	Create(ctx context.Context, reset *domain.PasswordReset) error
	// Consume marks the reset identified by tokenHash as used and returns it.
	// Expired, already used or unknown tokens yield ErrPasswordResetNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.PasswordReset, error)
}

type passwordResetRepository struct {
	db *sql.DB
}

func NewPasswordResetRepository(db *sql.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(ctx context.Context, reset *domain.PasswordReset) error {
	query := `
		INSERT INTO password_resets (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		reset.ID, reset.UserID, reset.TokenHash, reset.ExpiresAt, reset.CreatedAt); err != nil {
		return fmt.Errorf("failed to create password reset: %w", err)
	}
	return nil
}

func (r *passwordResetRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.PasswordReset, error) {
	query := `
		UPDATE password_resets
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, used_at, created_at
	`

	reset := &domain.PasswordReset{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.TokenHash,
		&reset.ExpiresAt,
		&usedAt,
		&reset.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPasswordResetNotFound
		}
		return nil, fmt.Errorf("failed to consume password reset: %w", err)
	}
	if usedAt.Valid {
		reset.UsedAt = &usedAt.Time
	}

	return reset, nil
}

