package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeProductSubmitted       = "PRODUCT_SUBMITTED"
	EventTypeProductApproved        = "PRODUCT_APPROVED"
	EventTypeProductRejected        = "PRODUCT_REJECTED"
	EventTypeProductDeleted         = "PRODUCT_DELETED"
	EventTypeOrderPlaced            = "ORDER_PLACED"
	EventTypeOrderCancelled         = "ORDER_CANCELLED"
	EventTypeOrderStatusChanged     = "ORDER_STATUS_CHANGED"
	EventTypeRoleChanged            = "ROLE_CHANGED"
	EventTypePasswordResetRequested = "PASSWORD_RESET_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id.
func NewBaseEvent(eventType string, at time.Time) BaseEvent {
	return BaseEvent{EventID: uuid.New().String(), EventType: eventType, Timestamp: at}
}

// ProductEvent is published on every moderation-relevant product change.
type ProductEvent struct {
	BaseEvent
	ProductID uuid.UUID     `json:"product_id"`
	SellerID  uuid.UUID     `json:"seller_id"`
	ActorID   uuid.UUID     `json:"actor_id"`
	Status    ProductStatus `json:"status"`
	Name      string        `json:"name"`
}

// OrderEvent is published when an order is placed or changes status.
type OrderEvent struct {
	BaseEvent
	OrderID uuid.UUID       `json:"order_id"`
	UserID  uuid.UUID       `json:"user_id"`
	ActorID uuid.UUID       `json:"actor_id"`
	Status  OrderStatus     `json:"status"`
	Total   decimal.Decimal `json:"total"`
	Items   int             `json:"items"`
}

// RoleChangedEvent is published when a privileged actor changes a role.
type RoleChangedEvent struct {
	BaseEvent
	UserID   uuid.UUID `json:"user_id"`
	ActorID  uuid.UUID `json:"actor_id"`
	Previous Role      `json:"previous"`
	Current  Role      `json:"current"`
}

// PasswordResetRequestedEvent carries the one-time token to a downstream mailer.
type PasswordResetRequestedEvent struct {
	BaseEvent
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
