package transport

import (
	"net/http"

	"allhall/internal/domain"
	"allhall/internal/middleware"
	"allhall/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddToCartRequest adds qty of a product variant to the caller's cart
type AddToCartRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Color     string `json:"color" validate:"max=40"`
	Size      string `json:"size" validate:"max=40"`
	Qty       int    `json:"qty" validate:"gte=1,lte=999"`
}

// SetQuantityRequest does not bound qty from below; the service clamps it to 1.
type SetQuantityRequest struct {
	Qty int `json:"qty" validate:"lte=999"`
}

// CartHandler serves the caller's cart
type CartHandler struct {
	cart   service.CartService
	logger *zap.Logger
}

func NewCartHandler(cart service.CartService, logger *zap.Logger) *CartHandler {
	return &CartHandler{cart: cart, logger: logger}
}

func (h *CartHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Route("/api/cart", func(r chi.Router) {
		r.Use(g.Auth)
		r.Get("/", h.GetCart)
		r.Post("/", h.AddToCart)
		r.Patch("/{lineID}", h.SetQuantity)
		r.Delete("/{lineID}", h.RemoveLine)
	})
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.cart.GetCart(r.Context(), session(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, cart)
}

func (h *CartHandler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	variant := domain.Variant{Color: req.Color, Size: req.Size}
	line, err := h.cart.AddToCart(r.Context(), session(r), uuid.MustParse(req.ProductID), variant, req.Qty)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, line)
}

func (h *CartHandler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req SetQuantityRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	line, err := h.cart.SetQuantity(r.Context(), session(r), lineID, req.Qty)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, line)
}

func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}

	if err := h.cart.RemoveLine(r.Context(), session(r), lineID); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
