package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"allhall/internal/domain"

	"github.com/google/uuid"
)

var ErrRoleNotFound = fmt.Errorf("role record %w", domain.ErrNotFound)

// RoleRepository stores exactly one role record per user.
type RoleRepository interface {
	// Ensure creates the record with role when absent and returns the stored record.
	// An existing record is never modified.
	Ensure(ctx context.Context, userID uuid.UUID, email string, role domain.Role, now time.Time) (*domain.RoleRecord, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.RoleRecord, error)
	UpdateRole(ctx context.Context, userID uuid.UUID, role domain.Role) (*domain.RoleRecord, error)
	List(ctx context.Context) ([]*domain.RoleRecord, error)
}

type roleRepository struct {
	db *sql.DB
}

func NewRoleRepository(db *sql.DB) RoleRepository {
	return &roleRepository{db: db}
}

const roleColumns = `user_id, email, role, created_at, updated_at`

func scanRole(row rowScanner) (*domain.RoleRecord, error) {
	rec := &domain.RoleRecord{}
	if err := row.Scan(&rec.UserID, &rec.Email, &rec.Role, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *roleRepository) Ensure(ctx context.Context, userID uuid.UUID, email string, role domain.Role, now time.Time) (*domain.RoleRecord, error) {
	insert := `
		INSERT INTO roles (user_id, email, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, insert, userID, email, role, now); err != nil {
		return nil, fmt.Errorf("failed to ensure role: %w", err)
	}
	return r.FindByUserID(ctx, userID)
}

func (r *roleRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*domain.RoleRecord, error) {
	rec, err := scanRole(r.db.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to find role: %w", err)
	}
	return rec, nil
}

func (r *roleRepository) UpdateRole(ctx context.Context, userID uuid.UUID, role domain.Role) (*domain.RoleRecord, error) {
	query := `UPDATE roles SET role = $2 WHERE user_id = $1 RETURNING ` + roleColumns
	rec, err := scanRole(r.db.QueryRowContext(ctx, query, userID, role))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	return rec, nil
}

// List returns every role record ordered by email.
func (r *roleRepository) List(ctx context.Context) ([]*domain.RoleRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY email ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	records := []*domain.RoleRecord{}
	for rows.Next() {
		rec, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}
	return records, nil
}
