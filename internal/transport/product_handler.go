package transport

import (
	"context"
	"net/http"

	"allhall/internal/authz"
	"allhall/internal/domain"
	"allhall/internal/middleware"
	"allhall/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductRequest is the create and update payload. Status is accepted so
// older clients keep working but is never trusted.
type ProductRequest struct {
	Name   string          `json:"name" validate:"required,max=120"`
	Desc   string          `json:"desc" validate:"required,max=2000"`
	Price  decimal.Decimal `json:"price"`
	Img    string          `json:"img" validate:"max=2048"`
	Badges []string        `json:"badges" validate:"max=10,dive,max=24"`
	Status string          `json:"status,omitempty"`
}

func (req ProductRequest) draft() domain.ProductDraft {
	return domain.ProductDraft{
		Name:        req.Name,
		Description: req.Desc,
		Price:       req.Price,
		Img:         req.Img,
		Badges:      req.Badges,
		Status:      domain.ProductStatus(req.Status),
	}
}

// ImageResponse carries the public URL of an uploaded image
type ImageResponse struct {
	URL string `json:"url"`
}

// ProductHandler serves the catalog, seller and moderation endpoints
type ProductHandler struct {
	catalog service.CatalogService
	logger  *zap.Logger
}

func NewProductHandler(catalog service.CatalogService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, logger: logger}
}

func (h *ProductHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Route("/api/products", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(g.OptionalAuth)
			r.Get("/", h.ListApproved)
			r.Get("/{id}", h.GetProduct)
		})

		r.Group(func(r chi.Router) {
			r.Use(g.Auth)
			r.Get("/mine", h.ListMine)
			r.With(g.Require(authz.SubmitProduct)).Post("/", h.SubmitProduct)
			r.Put("/{id}", h.UpdateProduct)
			r.Delete("/{id}", h.DeleteProduct)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(g.Auth)
		r.With(g.Require(authz.SubmitProduct)).Post("/api/uploads/images", h.UploadImage)

		r.Route("/api/admin/products", func(r chi.Router) {
			r.Use(g.Require(authz.ModerateProduct))
			r.Get("/pending", h.ListPending)
			r.Post("/{id}/approve", h.Approve)
			r.Post("/{id}/reject", h.Reject)
		})
	})
}

func (h *ProductHandler) ListApproved(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListApproved(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	product, err := h.catalog.GetProduct(r.Context(), session(r), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListMine(r.Context(), session(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) SubmitProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	product, err := h.catalog.SubmitProduct(r.Context(), session(r), req.draft())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req ProductRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), session(r), id, req.draft())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	if err := h.catalog.DeleteProduct(r.Context(), session(r), id); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage accepts a multipart form with the image in the "file" field.
func (h *ProductHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope around the image itself.
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxImageBytes+64<<10)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.logger.Debug("Rejected image upload", zap.Error(err))
		middleware.RespondWithValidationErrors(w, []middleware.ValidationError{{Field: "file", Message: "A single image up to 5 MiB is required"}})
		return
	}
	defer file.Close()

	url, err := h.catalog.UploadImage(r.Context(), session(r), header.Filename, file)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, ImageResponse{URL: url})
}

func (h *ProductHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListPending(r.Context(), session(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.catalog.Approve)
}

func (h *ProductHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.catalog.Reject)
}

func (h *ProductHandler) decide(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, actor domain.Session, id uuid.UUID) (*domain.Product, error)) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	product, err := apply(r.Context(), session(r), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, product)
}
