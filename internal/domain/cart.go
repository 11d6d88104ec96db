package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Variant distinguishes otherwise identical line items. The zero value means "no variant".
type Variant struct {
	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`
}

// Normalize trims both components so equal variants compare equal.
func (v Variant) Normalize() Variant {
	return Variant{Color: strings.TrimSpace(v.Color), Size: strings.TrimSpace(v.Size)}
}

// Snapshot is a copy of product display fields frozen at a point in time.
// It is deliberately separate from Product so later catalog edits never alter it.
type Snapshot struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Img       string          `json:"img"`
}

// CartLine is one (product, variant) entry in a user's cart.
type CartLine struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Variant   Variant   `json:"variant"`
	Qty       int       `json:"qty"`
	Snapshot  Snapshot  `json:"snapshot"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LineTotal is price × qty.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.Snapshot.Price.Mul(decimal.NewFromInt(int64(l.Qty)))
}

// ClampQuantity forces qty to at least 1. Deleting a line is a separate operation.
func ClampQuantity(qty int) int {
	if qty < 1 {
		return 1
	}
	return qty
}

// Totals is the price breakdown of a cart or order.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals sums lines and adds the flat shipping fee when there is anything to ship.
func ComputeTotals(lines []CartLine, flatShipping decimal.Decimal) Totals {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.LineTotal())
	}
	shipping := decimal.Zero
	if len(lines) > 0 {
		shipping = flatShipping
	}
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal.Add(shipping),
	}
}

// Cart is the full current content of a user's cart.
type Cart struct {
	UserID uuid.UUID  `json:"user_id"`
	Lines  []CartLine `json:"lines"`
	Totals Totals     `json:"totals"`
}

// Count is the number of lines, shown as the cart badge.
func (c *Cart) Count() int {
	return len(c.Lines)
}
