package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"allhall/internal/audit"
	"allhall/internal/authz"
	"allhall/internal/domain"
	"allhall/internal/metrics"
	"allhall/internal/realtime"
	"allhall/internal/repository"
	"allhall/internal/tracing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// DefaultCancelWindow is how long after placement an owner may cancel.
const DefaultCancelWindow = 24 * time.Hour

// OrderService turns carts into orders and tracks their fulfillment.
type OrderService interface {
	// Checkout converts the whole cart into a placed order atomically.
	Checkout(ctx context.Context, actor domain.Session, shipTo domain.ShippingInfo) (*domain.Order, error)
	ListOrders(ctx context.Context, actor domain.Session) ([]*domain.Order, error)
	GetOrder(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Order, error)
	CancelOrder(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Order, error)
	// AdvanceStatus moves an order forward through processing and delivered.
	AdvanceStatus(ctx context.Context, actor domain.Session, id uuid.UUID, next domain.OrderStatus) (*domain.Order, error)
	ListAllOrders(ctx context.Context, actor domain.Session, status *domain.OrderStatus) ([]*domain.Order, error)
	WatchOrders(ctx context.Context, actor domain.Session) (*realtime.Subscription, error)
}

// OrderPolicy holds the shop settings that govern orders.
type OrderPolicy struct {
	FlatShipping decimal.Decimal
	CancelWindow time.Duration
}

type orderService struct {
	Deps
	orders repository.OrderRepository
	policy OrderPolicy
}

func NewOrderService(orders repository.OrderRepository, policy OrderPolicy, deps Deps) OrderService {
	if policy.CancelWindow == 0 {
		policy.CancelWindow = DefaultCancelWindow
	}
	return &orderService{Deps: deps, orders: orders, policy: policy}
}

func (s *orderService) Checkout(ctx context.Context, actor domain.Session, shipTo domain.ShippingInfo) (*domain.Order, error) {
	ctx, span := tracing.StartSpan(ctx, "OrderService.Checkout")
	var err error
	defer func() { endSpan(span, err) }()

	if err = shipTo.Validate(); err != nil {
		metrics.CheckoutFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	now := s.now()
	build := func(lines []domain.CartLine) (*domain.Order, error) {
		return domain.NewOrderFromCart(actor.UserID, lines, shipTo, s.policy.FlatShipping, now)
	}

	var order *domain.Order
	err = s.write(ctx, "order.checkout", func(ctx context.Context) error {
		var err error
		order, err = s.orders.PlaceFromCart(ctx, actor.UserID, build)
		return err
	})
	if err != nil {
		metrics.CheckoutFailedTotal.WithLabelValues(checkoutFailureReason(err)).Inc()
		return nil, err
	}

	metrics.OrdersPlacedTotal.Inc()
	s.notify(ctx, realtime.CartTopic(actor.UserID), realtime.OrdersTopic(actor.UserID))
	s.publishOrder(ctx, domain.EventTypeOrderPlaced, order, actor)
	s.Logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("user_id", actor.UserID.String()),
		zap.String("total", order.Total.StringFixed(2)),
		zap.Int("items", len(order.Items)),
	)
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, actor domain.Session) ([]*domain.Order, error) {
	var orders []*domain.Order
	err := s.read(ctx, "order.list", func(ctx context.Context) error {
		var err error
		orders, err = s.orders.ListByUser(ctx, actor.UserID)
		return err
	})
	return orders, err
}

func (s *orderService) GetOrder(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Order, error) {
	order, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(order.UserID) && !authz.Allowed(actor.Role, authz.ViewAnyOrder) {
		return nil, fmt.Errorf("order belongs to another user: %w", domain.ErrPermissionDenied)
	}
	return order, nil
}

func (s *orderService) CancelOrder(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Order, error) {
	order, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(order.UserID) {
		return nil, fmt.Errorf("order belongs to another user: %w", domain.ErrPermissionDenied)
	}
	if !order.Cancellable(s.now(), s.policy.CancelWindow) {
		return nil, fmt.Errorf("order is %s and cannot be cancelled: %w", order.Status, domain.ErrInvalidTransition)
	}

	cancelled, err := s.transition(ctx, actor, order, domain.OrderCancelled)
	if err != nil {
		return nil, err
	}
	metrics.OrdersCancelledTotal.Inc()
	s.publishOrder(ctx, domain.EventTypeOrderCancelled, cancelled, actor)
	return cancelled, nil
}

func (s *orderService) AdvanceStatus(ctx context.Context, actor domain.Session, id uuid.UUID, next domain.OrderStatus) (*domain.Order, error) {
	if err := authz.Require(actor.Role, authz.AdvanceOrder); err != nil {
		return nil, err
	}
	if next != domain.OrderProcessing && next != domain.OrderDelivered {
		return nil, domain.NewFieldError("status", "must be processing or delivered")
	}
	order, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransition(next) {
		return nil, fmt.Errorf("order is %s: %w", order.Status, domain.ErrInvalidTransition)
	}

	updated, err := s.transition(ctx, actor, order, next)
	if err != nil {
		return nil, err
	}
	s.publishOrder(ctx, domain.EventTypeOrderStatusChanged, updated, actor)
	return updated, nil
}

func (s *orderService) ListAllOrders(ctx context.Context, actor domain.Session, status *domain.OrderStatus) ([]*domain.Order, error) {
	if err := authz.Require(actor.Role, authz.ViewAnyOrder); err != nil {
		return nil, err
	}
	var orders []*domain.Order
	err := s.read(ctx, "order.list_all", func(ctx context.Context) error {
		var err error
		orders, err = s.orders.ListAll(ctx, status)
		return err
	})
	return orders, err
}

func (s *orderService) WatchOrders(ctx context.Context, actor domain.Session) (*realtime.Subscription, error) {
	return s.subscribe(ctx, realtime.OrdersTopic(actor.UserID), func(ctx context.Context) (any, error) {
		return s.ListOrders(ctx, actor)
	})
}

func (s *orderService) transition(ctx context.Context, actor domain.Session, order *domain.Order, next domain.OrderStatus) (*domain.Order, error) {
	var updated *domain.Order
	err := s.write(ctx, "order.update_status", func(ctx context.Context) error {
		var err error
		updated, err = s.orders.UpdateStatus(ctx, order.ID, order.Status, next)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, realtime.OrdersTopic(order.UserID))
	s.record(ctx, &audit.Entry{
		Action:    audit.ActionOrderStatus,
		EntityID:  order.ID.String(),
		ActorID:   actor.UserID.String(),
		Data:      bson.M{"from": string(order.Status), "to": string(next)},
		CreatedAt: s.now(),
	})
	s.Logger.Info("Order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(next)),
		zap.String("actor_id", actor.UserID.String()),
	)
	return updated, nil
}

func (s *orderService) find(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := s.read(ctx, "order.get", func(ctx context.Context) error {
		var err error
		order, err = s.orders.FindByID(ctx, id)
		return err
	})
	return order, err
}

func (s *orderService) publishOrder(ctx context.Context, eventType string, o *domain.Order, actor domain.Session) {
	s.publish(ctx, o.ID.String(), domain.OrderEvent{
		BaseEvent: domain.NewBaseEvent(eventType, s.now()),
		OrderID:   o.ID,
		UserID:    o.UserID,
		ActorID:   actor.UserID,
		Status:    o.Status,
		Total:     o.Total,
		Items:     len(o.Items),
	})
}

func checkoutFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
