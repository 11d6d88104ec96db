package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"allhall/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrProductNotFound = fmt.Errorf("product %w", domain.ErrNotFound)
	// ErrProductAlreadyDecided is returned when a moderation decision races with another.
	ErrProductAlreadyDecided = fmt.Errorf("product already decided: %w", domain.ErrInvalidTransition)
)

// SortOrder represents the sort direction
type SortOrder string

const (
	SortOrderAsc  SortOrder = "ASC"
	SortOrderDesc SortOrder = "DESC"
)

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	Update(ctx context.Context, product *domain.Product) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	ListByStatus(ctx context.Context, status domain.ProductStatus, order SortOrder) ([]*domain.Product, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]*domain.Product, error)
	// TransitionStatus moves a product from one status to another only if it is still in from.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.ProductStatus) (*domain.Product, error)
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

const productColumns = `id, name, description, price, img, rating, array_to_json(badges), status, seller_id, created_at, updated_at`

func (r *productRepository) scan(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	var badges jsonStrings
	err := row.Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Img,
		&product.Rating,
		&badges,
		&product.Status,
		&product.SellerID,
		&product.CreatedAt,
		&product.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if badges == nil {
		badges = []string{}
	}
	product.Badges = []string(badges)
	return product, nil
}

func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, img, rating, badges, status, seller_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Img,
		product.Rating,
		product.Badges,
		product.Status,
		product.SellerID,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// Update rewrites the seller-editable fields. Status changes go through TransitionStatus.
func (r *productRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products
		SET name = $2, description = $3, price = $4, img = $5, badges = $6
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		product.Img,
		product.Badges,
	).Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrProductNotFound
		}
		return fmt.Errorf("failed to update product: %w", err)
	}

	return nil
}

func (r *productRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

func (r *productRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}

// ListByStatus returns every product in status ordered by creation time.
// Ties are broken by id so the order is total.
func (r *productRepository) ListByStatus(ctx context.Context, status domain.ProductStatus, order SortOrder) ([]*domain.Product, error) {
	if order != SortOrderAsc && order != SortOrderDesc {
		order = SortOrderDesc
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM products
		WHERE status = $1
		ORDER BY created_at %s, id %s
	`, productColumns, order, order)

	return r.list(ctx, query, status)
}

// ListBySeller returns all of a seller's products in any status, newest first.
func (r *productRepository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]*domain.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE seller_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.list(ctx, query, sellerID)
}

func (r *productRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.ProductStatus) (*domain.Product, error) {
	query := `
		UPDATE products
		SET status = $3
		WHERE id = $1 AND status = $2
		RETURNING ` + productColumns

	product, err := r.scan(r.db.QueryRowContext(ctx, query, id, from, to))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to transition product: %w", err)
	}

	// Nothing matched: either the product is gone or someone else decided first.
	if _, findErr := r.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, ErrProductAlreadyDecided
}

func (r *productRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []*domain.Product{}
	for rows.Next() {
		product, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}
