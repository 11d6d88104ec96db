package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"allhall/internal/domain"

	"github.com/google/uuid"
)

var ErrCartLineNotFound = fmt.Errorf("cart line %w", domain.ErrNotFound)

// CartRepository stores cart lines keyed by (user, product, variant).
type CartRepository interface {
	// AddOrMerge inserts line, or adds line.Qty to the existing line with the same key.
	// The merge is a single statement, so concurrent adds are never lost.
	AddOrMerge(ctx context.Context, line *domain.CartLine) (*domain.CartLine, error)
	FindLine(ctx context.Context, lineID uuid.UUID) (*domain.CartLine, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.CartLine, error)
	SetQuantity(ctx context.Context, lineID uuid.UUID, qty int) (*domain.CartLine, error)
	DeleteLine(ctx context.Context, lineID uuid.UUID) error
}

type cartRepository struct {
	db *sql.DB
}

func NewCartRepository(db *sql.DB) CartRepository {
	return &cartRepository{db: db}
}

const cartColumns = `id, user_id, product_id, color, size, qty, name, price, img, created_at, updated_at`

func scanCartLine(row rowScanner) (*domain.CartLine, error) {
	line := &domain.CartLine{}
	err := row.Scan(
		&line.ID,
		&line.UserID,
		&line.Snapshot.ProductID,
		&line.Variant.Color,
		&line.Variant.Size,
		&line.Qty,
		&line.Snapshot.Name,
		&line.Snapshot.Price,
		&line.Snapshot.Img,
		&line.CreatedAt,
		&line.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return line, nil
}

func (r *cartRepository) AddOrMerge(ctx context.Context, line *domain.CartLine) (*domain.CartLine, error) {
	query := `
		INSERT INTO cart_items (id, user_id, product_id, color, size, qty, name, price, img, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (user_id, product_id, color, size) DO UPDATE
		SET qty = cart_items.qty + EXCLUDED.qty,
		    name = EXCLUDED.name,
		    price = EXCLUDED.price,
		    img = EXCLUDED.img
		RETURNING ` + cartColumns

	merged, err := scanCartLine(r.db.QueryRowContext(
		ctx,
		query,
		line.ID,
		line.UserID,
		line.Snapshot.ProductID,
		line.Variant.Color,
		line.Variant.Size,
		line.Qty,
		line.Snapshot.Name,
		line.Snapshot.Price,
		line.Snapshot.Img,
		line.CreatedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to add cart line: %w", err)
	}
	return merged, nil
}

func (r *cartRepository) FindLine(ctx context.Context, lineID uuid.UUID) (*domain.CartLine, error) {
	line, err := scanCartLine(r.db.QueryRowContext(ctx, `SELECT `+cartColumns+` FROM cart_items WHERE id = $1`, lineID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartLineNotFound
		}
		return nil, fmt.Errorf("failed to find cart line: %w", err)
	}
	return line, nil
}

// ListByUser returns the user's lines in the order they were first added.
func (r *cartRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.CartLine, error) {
	query := `SELECT ` + cartColumns + ` FROM cart_items WHERE user_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cart: %w", err)
	}
	defer rows.Close()

	return collectCartLines(rows)
}

func (r *cartRepository) SetQuantity(ctx context.Context, lineID uuid.UUID, qty int) (*domain.CartLine, error) {
	query := `UPDATE cart_items SET qty = $2 WHERE id = $1 RETURNING ` + cartColumns
	line, err := scanCartLine(r.db.QueryRowContext(ctx, query, lineID, qty))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCartLineNotFound
		}
		return nil, fmt.Errorf("failed to set quantity: %w", err)
	}
	return line, nil
}

func (r *cartRepository) DeleteLine(ctx context.Context, lineID uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, lineID)
	if err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrCartLineNotFound
	}
	return nil
}

func collectCartLines(rows *sql.Rows) ([]domain.CartLine, error) {
	lines := []domain.CartLine{}
	for rows.Next() {
		line, err := scanCartLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart line: %w", err)
		}
		lines = append(lines, *line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cart lines: %w", err)
	}
	return lines, nil
}
