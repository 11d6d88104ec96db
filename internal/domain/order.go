package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

const (
	OrderPlaced     OrderStatus = "placed"
	OrderProcessing OrderStatus = "processing"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// ParseOrderStatus converts s into an OrderStatus.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderPlaced, OrderProcessing, OrderDelivered, OrderCancelled:
		return OrderStatus(s), nil
	}
	return "", NewFieldError("status", "must be one of placed, processing, delivered, cancelled")
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPlaced:     {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderDelivered},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ShippingInfo is the delivery and payment metadata captured at checkout.
type ShippingInfo struct {
	FullName      string `json:"full_name"`
	Address       string `json:"address"`
	City          string `json:"city"`
	PostalCode    string `json:"postal_code"`
	Phone         string `json:"phone"`
	PaymentMethod string `json:"payment_method"`
}

// Validate requires every field needed to deliver and charge.
func (s ShippingInfo) Validate() error {
	fields := []struct{ name, value string }{
		{"full_name", s.FullName},
		{"address", s.Address},
		{"city", s.City},
		{"postal_code", s.PostalCode},
		{"payment_method", s.PaymentMethod},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return NewFieldError(f.name, "is required")
		}
	}
	return nil
}

// OrderItem is an immutable snapshot of a cart line at checkout.
type OrderItem struct {
	Snapshot
	Variant Variant `json:"variant"`
	Qty     int     `json:"qty"`
}

// Order is a placed purchase.
type Order struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Items     []OrderItem     `json:"items"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	Shipping  decimal.Decimal `json:"shipping"`
	Total     decimal.Decimal `json:"total"`
	Status    OrderStatus     `json:"status"`
	ShipTo    ShippingInfo    `json:"ship_to"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// NewOrderFromCart snapshots lines into a placed order.
func NewOrderFromCart(userID uuid.UUID, lines []CartLine, shipTo ShippingInfo, flatShipping decimal.Decimal, now time.Time) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}
	items := make([]OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, OrderItem{Snapshot: l.Snapshot, Variant: l.Variant, Qty: l.Qty})
	}
	totals := ComputeTotals(lines, flatShipping)
	return &Order{
		ID:        uuid.New(),
		UserID:    userID,
		Items:     items,
		Subtotal:  totals.Subtotal,
		Shipping:  totals.Shipping,
		Total:     totals.Total,
		Status:    OrderPlaced,
		ShipTo:    shipTo,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Cancellable reports whether the owner may still cancel at now.
func (o *Order) Cancellable(now time.Time, window time.Duration) bool {
	if o.Status != OrderPlaced {
		return false
	}
	return window <= 0 || !now.After(o.CreatedAt.Add(window))
}
