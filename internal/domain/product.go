package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductStatus is the moderation state of a product.
type ProductStatus string

const (
	ProductPending  ProductStatus = "pending"
	ProductApproved ProductStatus = "approved"
	ProductRejected ProductStatus = "rejected"
)

// MaxPrice is the largest price a product column can hold.
var MaxPrice = decimal.RequireFromString("9999999999.99")

// BadgeNew is attached to freshly submitted products when no badges are given.
const BadgeNew = "NEW"

// CanTransition reports whether moderation may move a product from s to next.
// Only pending products can be decided; approved and rejected are terminal.
func (s ProductStatus) CanTransition(next ProductStatus) bool {
	return s == ProductPending && (next == ProductApproved || next == ProductRejected)
}

// Terminal reports whether no further moderation is possible.
func (s ProductStatus) Terminal() bool {
	return s == ProductApproved || s == ProductRejected
}

// Product represents a product in the catalog
type Product struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"desc"`
	Price       decimal.Decimal `json:"price"`
	Img         string          `json:"img"`
	Rating      decimal.Decimal `json:"rating"`
	Badges      []string        `json:"badges"`
	Status      ProductStatus   `json:"status"`
	SellerID    uuid.UUID       `json:"seller_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Visible reports whether the product may be shown to ordinary shoppers.
func (p *Product) Visible() bool {
	return p.Status == ProductApproved
}

// Snapshot freezes the display fields of p at the current moment.
func (p *Product) Snapshot() Snapshot {
	return Snapshot{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Img:       p.Img,
	}
}

// ProductDraft is the seller-supplied part of a product.
type ProductDraft struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Img         string
	Badges      []string
	// Status is accepted from clients but never honoured; new products always start pending.
	Status ProductStatus
}

// Normalize trims whitespace and applies defaults.
func (d ProductDraft) Normalize() ProductDraft {
	d.Name = strings.TrimSpace(d.Name)
	d.Description = strings.TrimSpace(d.Description)
	d.Img = strings.TrimSpace(d.Img)
	badges := make([]string, 0, len(d.Badges))
	for _, b := range d.Badges {
		if b = strings.TrimSpace(b); b != "" {
			badges = append(badges, b)
		}
	}
	if len(badges) == 0 {
		badges = []string{BadgeNew}
	}
	d.Badges = badges
	return d
}

// Validate checks a normalized draft.
func (d ProductDraft) Validate() error {
	if d.Name == "" {
		return NewFieldError("name", "is required")
	}
	if !d.Price.IsPositive() {
		return NewFieldError("price", "must be greater than zero")
	}
	if !d.Price.Equal(d.Price.Truncate(2)) {
		return NewFieldError("price", "must have at most 2 decimal places")
	}
	if d.Price.GreaterThan(MaxPrice) {
		return NewFieldError("price", "must be at most "+MaxPrice.StringFixed(2))
	}
	if d.Description == "" {
		return NewFieldError("desc", "is required")
	}
	if d.Img == "" {
		return NewFieldError("img", "an uploaded image or image URL is required")
	}
	return nil
}
