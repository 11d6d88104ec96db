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
	ErrOrderNotFound = fmt.Errorf("order %w", domain.ErrNotFound)
	// ErrOrderStatusChanged is returned when the order left the expected status before the update applied.
	ErrOrderStatusChanged = fmt.Errorf("order status changed concurrently: %w", domain.ErrInvalidTransition)
)

// OrderBuilder turns the locked cart lines into the order to persist.
type OrderBuilder func(lines []domain.CartLine) (*domain.Order, error)

// OrderRepository stores orders and their item snapshots.
type OrderRepository interface {
	// PlaceFromCart locks the user's cart lines, persists the order produced by build
	// and deletes the consumed lines in a single transaction.
	PlaceFromCart(ctx context.Context, userID uuid.UUID, build OrderBuilder) (*domain.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error)
	ListAll(ctx context.Context, status *domain.OrderStatus) ([]*domain.Order, error)
	// UpdateStatus moves the order from one status to another only if it is still in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (*domain.Order, error)
}

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, user_id, subtotal, shipping, total, status, full_name, address, city, postal_code, phone, payment_method, created_at, updated_at`

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.Subtotal,
		&o.Shipping,
		&o.Total,
		&o.Status,
		&o.ShipTo.FullName,
		&o.ShipTo.Address,
		&o.ShipTo.City,
		&o.ShipTo.PostalCode,
		&o.ShipTo.Phone,
		&o.ShipTo.PaymentMethod,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Items = []domain.OrderItem{}
	return o, nil
}

func (r *orderRepository) PlaceFromCart(ctx context.Context, userID uuid.UUID, build OrderBuilder) (*domain.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT `+cartColumns+`
		FROM cart_items
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock cart: %w", err)
	}
	lines, err := collectCartLines(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	order, err := build(lines)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		order.ID,
		order.UserID,
		order.Subtotal,
		order.Shipping,
		order.Total,
		order.Status,
		order.ShipTo.FullName,
		order.ShipTo.Address,
		order.ShipTo.City,
		order.ShipTo.PostalCode,
		order.ShipTo.Phone,
		order.ShipTo.PaymentMethod,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, name, price, img, color, size, qty)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, order.ID, i, item.ProductID, item.Name, item.Price, item.Img, item.Variant.Color, item.Variant.Size, item.Qty)
		if err != nil {
			return nil, fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ID.String())
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = ANY($1::uuid[])`, ids); err != nil {
		return nil, fmt.Errorf("failed to clear cart: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}

	return order, nil
}

func (r *orderRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to find order: %w", err)
	}
	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// ListByUser returns the user's orders newest first.
func (r *orderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, userID)
}

// ListAll returns every order newest first, optionally filtered by status.
func (r *orderRepository) ListAll(ctx context.Context, status *domain.OrderStatus) ([]*domain.Order, error) {
	if status == nil {
		return r.list(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC, id DESC`)
	}
	return r.list(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at DESC, id DESC`, *status)
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (*domain.Order, error) {
	query := `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2 RETURNING ` + orderColumns
	order, err := scanOrder(r.db.QueryRowContext(ctx, query, id, from, to))
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to update order status: %w", err)
		}
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, ErrOrderStatusChanged
	}
	if err := r.attachItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := []*domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) attachItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		byID[o.ID] = o
		ids = append(ids, o.ID.String())
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, price, img, color, size, qty
		FROM order_items
		WHERE order_id = ANY($1::uuid[])
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		if err := rows.Scan(
			&orderID,
			&item.ProductID,
			&item.Name,
			&item.Price,
			&item.Img,
			&item.Variant.Color,
			&item.Variant.Size,
			&item.Qty,
		); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}
