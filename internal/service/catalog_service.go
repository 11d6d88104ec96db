package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"allhall/internal/audit"
	"allhall/internal/authz"
	"allhall/internal/blobstore"
	"allhall/internal/domain"
	"allhall/internal/metrics"
	"allhall/internal/realtime"
	"allhall/internal/repository"
	"allhall/internal/tracing"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// MaxImageBytes caps product image uploads.
const MaxImageBytes = 5 << 20

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// CatalogService manages products and their moderation.
type CatalogService interface {
	SubmitProduct(ctx context.Context, actor domain.Session, draft domain.ProductDraft) (*domain.Product, error)
	UpdateProduct(ctx context.Context, actor domain.Session, id uuid.UUID, draft domain.ProductDraft) (*domain.Product, error)
	DeleteProduct(ctx context.Context, actor domain.Session, id uuid.UUID) error
	// GetProduct hides non-approved products from everyone but their seller and moderators.
	GetProduct(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error)
	ListApproved(ctx context.Context) ([]*domain.Product, error)
	ListMine(ctx context.Context, actor domain.Session) ([]*domain.Product, error)
	ListPending(ctx context.Context, actor domain.Session) ([]*domain.Product, error)
	Approve(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error)
	Reject(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error)
	UploadImage(ctx context.Context, actor domain.Session, filename string, body io.Reader) (string, error)

	WatchApproved(ctx context.Context) (*realtime.Subscription, error)
	WatchPending(ctx context.Context, actor domain.Session) (*realtime.Subscription, error)
	WatchMine(ctx context.Context, actor domain.Session) (*realtime.Subscription, error)
}

type catalogService struct {
	Deps
	products repository.ProductRepository
	blobs    blobstore.Store
	sessions SessionResolver
}

// NewCatalogService builds the catalog. Live views re-resolve the viewer's
// role through sessions on every refresh; a nil sessions trusts the role the
// view was opened with.
func NewCatalogService(products repository.ProductRepository, blobs blobstore.Store, sessions SessionResolver, deps Deps) CatalogService {
	return &catalogService{Deps: deps, products: products, blobs: blobs, sessions: sessions}
}

func (s *catalogService) SubmitProduct(ctx context.Context, actor domain.Session, draft domain.ProductDraft) (*domain.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogService.SubmitProduct")
	var err error
	defer func() { endSpan(span, err) }()

	if err = authz.Require(actor.Role, authz.SubmitProduct); err != nil {
		return nil, err
	}
	draft = draft.Normalize()
	if err = draft.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	product := &domain.Product{
		ID:          uuid.New(),
		Name:        draft.Name,
		Description: draft.Description,
		Price:       draft.Price,
		Img:         draft.Img,
		Badges:      draft.Badges,
		Status:      domain.ProductPending,
		SellerID:    actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if draft.Status != "" && draft.Status != domain.ProductPending {
		s.Logger.Info("Ignoring client-supplied product status", zap.String("status", string(draft.Status)))
	}

	err = s.write(ctx, "product.create", func(ctx context.Context) error {
		return s.products.Create(ctx, product)
	})
	if err != nil {
		return nil, err
	}

	metrics.ProductsSubmittedTotal.Inc()
	s.notify(ctx, realtime.TopicModeration, realtime.SellerTopic(actor.UserID))
	s.publishProduct(ctx, domain.EventTypeProductSubmitted, product, actor)
	s.Logger.Info("Product submitted",
		zap.String("product_id", product.ID.String()),
		zap.String("seller_id", actor.UserID.String()),
	)
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, actor domain.Session, id uuid.UUID, draft domain.ProductDraft) (*domain.Product, error) {
	product, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !authz.Allowed(actor.Role, authz.ManageAnyProduct) {
		if !actor.Owns(product.SellerID) {
			return nil, fmt.Errorf("not the seller of this product: %w", domain.ErrPermissionDenied)
		}
		if product.Status != domain.ProductPending {
			return nil, fmt.Errorf("product already %s: %w", product.Status, domain.ErrInvalidTransition)
		}
	}

	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, err
	}
	product.Name = draft.Name
	product.Description = draft.Description
	product.Price = draft.Price
	product.Img = draft.Img
	product.Badges = draft.Badges
	product.UpdatedAt = s.now()

	err = s.write(ctx, "product.update", func(ctx context.Context) error {
		return s.products.Update(ctx, product)
	})
	if err != nil {
		return nil, err
	}
	s.notify(ctx, s.productTopics(product)...)
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, actor domain.Session, id uuid.UUID) error {
	product, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if !actor.Owns(product.SellerID) {
		if err := authz.Require(actor.Role, authz.ManageAnyProduct); err != nil {
			return err
		}
	}

	err = s.write(ctx, "product.delete", func(ctx context.Context) error {
		return s.products.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.notify(ctx, s.productTopics(product)...)
	s.record(ctx, &audit.Entry{
		Action:    audit.ActionProductDeleted,
		EntityID:  id.String(),
		ActorID:   actor.UserID.String(),
		Data:      bson.M{"name": product.Name, "status": string(product.Status)},
		CreatedAt: s.now(),
	})
	s.publishProduct(ctx, domain.EventTypeProductDeleted, product, actor)
	s.Logger.Info("Product deleted", zap.String("product_id", id.String()), zap.String("actor_id", actor.UserID.String()))
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error) {
	product, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.Visible() && !actor.Owns(product.SellerID) && !authz.Allowed(actor.Role, authz.ViewModerationQueue) {
		return nil, repository.ErrProductNotFound
	}
	return product, nil
}

func (s *catalogService) ListApproved(ctx context.Context) ([]*domain.Product, error) {
	return s.listByStatus(ctx, domain.ProductApproved, repository.SortOrderDesc)
}

func (s *catalogService) ListMine(ctx context.Context, actor domain.Session) ([]*domain.Product, error) {
	if err := authz.Require(actor.Role, authz.SubmitProduct); err != nil {
		return nil, err
	}
	var products []*domain.Product
	err := s.read(ctx, "product.list_seller", func(ctx context.Context) error {
		var err error
		products, err = s.products.ListBySeller(ctx, actor.UserID)
		return err
	})
	return products, err
}

func (s *catalogService) ListPending(ctx context.Context, actor domain.Session) ([]*domain.Product, error) {
	if err := authz.Require(actor.Role, authz.ViewModerationQueue); err != nil {
		return nil, err
	}
	return s.listByStatus(ctx, domain.ProductPending, repository.SortOrderAsc)
}

func (s *catalogService) Approve(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error) {
	return s.decide(ctx, actor, id, domain.ProductApproved)
}

func (s *catalogService) Reject(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error) {
	return s.decide(ctx, actor, id, domain.ProductRejected)
}

func (s *catalogService) decide(ctx context.Context, actor domain.Session, id uuid.UUID, next domain.ProductStatus) (*domain.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "CatalogService.Moderate")
	var err error
	defer func() { endSpan(span, err) }()

	if err = authz.Require(actor.Role, authz.ModerateProduct); err != nil {
		return nil, err
	}
	var current *domain.Product
	if current, err = s.find(ctx, id); err != nil {
		return nil, err
	}
	if !current.Status.CanTransition(next) {
		err = fmt.Errorf("product is %s: %w", current.Status, domain.ErrInvalidTransition)
		return nil, err
	}

	var decided *domain.Product
	err = s.write(ctx, "product.moderate", func(ctx context.Context) error {
		var err error
		decided, err = s.products.TransitionStatus(ctx, id, domain.ProductPending, next)
		return err
	})
	if err != nil {
		return nil, err
	}

	action, eventType := audit.ActionProductApproved, domain.EventTypeProductApproved
	if next == domain.ProductRejected {
		action, eventType = audit.ActionProductRejected, domain.EventTypeProductRejected
	}
	metrics.ModerationDecisionsTotal.WithLabelValues(string(next)).Inc()
	s.notify(ctx, s.productTopics(decided)...)
	s.record(ctx, &audit.Entry{
		Action:    action,
		EntityID:  id.String(),
		ActorID:   actor.UserID.String(),
		Data:      bson.M{"seller_id": decided.SellerID.String(), "name": decided.Name},
		CreatedAt: s.now(),
	})
	s.publishProduct(ctx, eventType, decided, actor)
	s.Logger.Info("Product moderated",
		zap.String("product_id", id.String()),
		zap.String("status", string(next)),
		zap.String("actor_id", actor.UserID.String()),
	)
	return decided, nil
}

// UploadImage stores an image and returns its public URL.
func (s *catalogService) UploadImage(ctx context.Context, actor domain.Session, filename string, body io.Reader) (string, error) {
	if err := authz.Require(actor.Role, authz.SubmitProduct); err != nil {
		return "", err
	}
	ext := strings.ToLower(path.Ext(filename))
	if !imageExtensions[ext] {
		return "", domain.NewFieldError("image", "must be a jpg, jpeg, png or webp file")
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) > MaxImageBytes {
		return "", domain.NewFieldError("image", "must be at most 5 MiB")
	}
	if len(data) == 0 {
		return "", domain.NewFieldError("image", "is empty")
	}
	mtype := mimetype.Detect(data)
	if !imageTypes[mtype.String()] {
		return "", domain.NewFieldError("image", "content is not a jpeg, png or webp image")
	}

	name := unsafeNameChars.ReplaceAllString(path.Base(filename), "_")
	objectPath := fmt.Sprintf("product_images/%s/%d_%s", actor.UserID, s.now().UnixNano(), name)

	var url string
	err = s.write(ctx, "image.put", func(ctx context.Context) error {
		var err error
		url, err = s.blobs.Put(ctx, objectPath, mtype.String(), bytes.NewReader(data))
		return err
	})
	if err != nil {
		return "", err
	}
	s.Logger.Info("Image uploaded", zap.String("path", objectPath), zap.Int("bytes", len(data)))
	return url, nil
}

func (s *catalogService) WatchApproved(ctx context.Context) (*realtime.Subscription, error) {
	return s.subscribe(ctx, realtime.TopicCatalog, func(ctx context.Context) (any, error) {
		return s.ListApproved(ctx)
	})
}

func (s *catalogService) WatchPending(ctx context.Context, actor domain.Session) (*realtime.Subscription, error) {
	if err := authz.Require(actor.Role, authz.ViewModerationQueue); err != nil {
		return nil, err
	}
	return s.subscribe(ctx, realtime.TopicModeration, func(ctx context.Context) (any, error) {
		current, err := s.currentSession(ctx, actor)
		if err != nil {
			return nil, err
		}
		return s.ListPending(ctx, current)
	}, realtime.RoleTopic(actor.UserID))
}

func (s *catalogService) WatchMine(ctx context.Context, actor domain.Session) (*realtime.Subscription, error) {
	if err := authz.Require(actor.Role, authz.SubmitProduct); err != nil {
		return nil, err
	}
	return s.subscribe(ctx, realtime.SellerTopic(actor.UserID), func(ctx context.Context) (any, error) {
		current, err := s.currentSession(ctx, actor)
		if err != nil {
			return nil, err
		}
		return s.ListMine(ctx, current)
	}, realtime.RoleTopic(actor.UserID))
}

// currentSession is actor with its role as stored now, not as it was when the
// view opened.
func (s *catalogService) currentSession(ctx context.Context, actor domain.Session) (domain.Session, error) {
	if s.sessions == nil {
		return actor, nil
	}
	return s.sessions.ResolveSession(ctx, actor.UserID, actor.Email)
}

func (s *catalogService) find(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var product *domain.Product
	err := s.read(ctx, "product.get", func(ctx context.Context) error {
		var err error
		product, err = s.products.FindByID(ctx, id)
		return err
	})
	return product, err
}

func (s *catalogService) listByStatus(ctx context.Context, status domain.ProductStatus, order repository.SortOrder) ([]*domain.Product, error) {
	var products []*domain.Product
	err := s.read(ctx, "product.list", func(ctx context.Context) error {
		var err error
		products, err = s.products.ListByStatus(ctx, status, order)
		return err
	})
	return products, err
}

// productTopics lists every live view a change to p can affect.
func (s *catalogService) productTopics(p *domain.Product) []string {
	return []string{realtime.TopicCatalog, realtime.TopicModeration, realtime.SellerTopic(p.SellerID)}
}

func (s *catalogService) publishProduct(ctx context.Context, eventType string, p *domain.Product, actor domain.Session) {
	s.publish(ctx, p.ID.String(), domain.ProductEvent{
		BaseEvent: domain.NewBaseEvent(eventType, s.now()),
		ProductID: p.ID,
		SellerID:  p.SellerID,
		ActorID:   actor.UserID,
		Status:    p.Status,
		Name:      p.Name,
	})
}
