package service

import (
	"context"
	"errors"
	"fmt"

	"allhall/internal/domain"
	"allhall/internal/metrics"
	"allhall/internal/realtime"
	"allhall/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService manages the signed-in user's cart.
type CartService interface {
	// AddToCart merges qty into the line keyed by (product, variant). Only approved products can be added.
	AddToCart(ctx context.Context, actor domain.Session, productID uuid.UUID, variant domain.Variant, qty int) (*domain.CartLine, error)
	RemoveLine(ctx context.Context, actor domain.Session, lineID uuid.UUID) error
	// SetQuantity clamps qty to at least 1; use RemoveLine to delete.
	SetQuantity(ctx context.Context, actor domain.Session, lineID uuid.UUID, qty int) (*domain.CartLine, error)
	GetCart(ctx context.Context, actor domain.Session) (*domain.Cart, error)
	Totals(ctx context.Context, actor domain.Session) (domain.Totals, error)
	WatchCart(ctx context.Context, actor domain.Session) (*realtime.Subscription, error)
}

type cartService struct {
	Deps
	cart         repository.CartRepository
	products     repository.ProductRepository
	flatShipping decimal.Decimal
}

func NewCartService(cart repository.CartRepository, products repository.ProductRepository, flatShipping decimal.Decimal, deps Deps) CartService {
	return &cartService{Deps: deps, cart: cart, products: products, flatShipping: flatShipping}
}

func (s *cartService) AddToCart(ctx context.Context, actor domain.Session, productID uuid.UUID, variant domain.Variant, qty int) (*domain.CartLine, error) {
	if qty < 1 {
		return nil, domain.NewFieldError("qty", "must be at least 1")
	}

	var product *domain.Product
	err := s.read(ctx, "product.get", func(ctx context.Context) error {
		var err error
		product, err = s.products.FindByID(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !product.Visible() {
		return nil, repository.ErrProductNotFound
	}

	now := s.now()
	line := &domain.CartLine{
		ID:        uuid.New(),
		UserID:    actor.UserID,
		Variant:   variant.Normalize(),
		Qty:       qty,
		Snapshot:  product.Snapshot(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	var merged *domain.CartLine
	err = s.write(ctx, "cart.add", func(ctx context.Context) error {
		var err error
		merged, err = s.cart.AddOrMerge(ctx, line)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.CartAddsTotal.Inc()
	s.notify(ctx, realtime.CartTopic(actor.UserID))
	s.Logger.Debug("Added to cart",
		zap.String("user_id", actor.UserID.String()),
		zap.String("product_id", productID.String()),
		zap.Int("qty", merged.Qty),
	)
	return merged, nil
}

func (s *cartService) RemoveLine(ctx context.Context, actor domain.Session, lineID uuid.UUID) error {
	if _, err := s.ownedLine(ctx, actor, lineID); err != nil {
		return err
	}
	err := s.write(ctx, "cart.remove", func(ctx context.Context) error {
		return s.cart.DeleteLine(ctx, lineID)
	})
	if err != nil {
		return err
	}
	s.notify(ctx, realtime.CartTopic(actor.UserID))
	return nil
}

func (s *cartService) SetQuantity(ctx context.Context, actor domain.Session, lineID uuid.UUID, qty int) (*domain.CartLine, error) {
	if _, err := s.ownedLine(ctx, actor, lineID); err != nil {
		return nil, err
	}
	var line *domain.CartLine
	err := s.read(ctx, "cart.set_qty", func(ctx context.Context) error {
		var err error
		line, err = s.cart.SetQuantity(ctx, lineID, domain.ClampQuantity(qty))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, realtime.CartTopic(actor.UserID))
	return line, nil
}

func (s *cartService) GetCart(ctx context.Context, actor domain.Session) (*domain.Cart, error) {
	lines, err := s.lines(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.Cart{
		UserID: actor.UserID,
		Lines:  lines,
		Totals: domain.ComputeTotals(lines, s.flatShipping),
	}, nil
}

func (s *cartService) Totals(ctx context.Context, actor domain.Session) (domain.Totals, error) {
	lines, err := s.lines(ctx, actor.UserID)
	if err != nil {
		return domain.Totals{}, err
	}
	return domain.ComputeTotals(lines, s.flatShipping), nil
}

func (s *cartService) WatchCart(ctx context.Context, actor domain.Session) (*realtime.Subscription, error) {
	return s.subscribe(ctx, realtime.CartTopic(actor.UserID), func(ctx context.Context) (any, error) {
		return s.GetCart(ctx, actor)
	})
}

func (s *cartService) lines(ctx context.Context, userID uuid.UUID) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	err := s.read(ctx, "cart.list", func(ctx context.Context) error {
		var err error
		lines, err = s.cart.ListByUser(ctx, userID)
		return err
	})
	return lines, err
}

func (s *cartService) ownedLine(ctx context.Context, actor domain.Session, lineID uuid.UUID) (*domain.CartLine, error) {
	var line *domain.CartLine
	err := s.read(ctx, "cart.get", func(ctx context.Context) error {
		var err error
		line, err = s.cart.FindLine(ctx, lineID)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrCartLineNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load cart line: %w", err)
	}
	if !actor.Owns(line.UserID) {
		return nil, fmt.Errorf("cart line belongs to another user: %w", domain.ErrPermissionDenied)
	}
	return line, nil
}
