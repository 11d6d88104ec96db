package transport

import (
	"net/http"

	"allhall/internal/authz"
	"allhall/internal/domain"
	"allhall/internal/middleware"
	"allhall/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CheckoutRequest is the shipping and payment form
type CheckoutRequest struct {
	FullName      string `json:"full_name" validate:"required,max=120"`
	Address       string `json:"address" validate:"required,max=240"`
	City          string `json:"city" validate:"required,max=80"`
	PostalCode    string `json:"postal_code" validate:"required,max=20"`
	Phone         string `json:"phone" validate:"max=32"`
	PaymentMethod string `json:"payment_method" validate:"required,max=40"`
}

// AdvanceStatusRequest moves an order forward
type AdvanceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing delivered"`
}

// OrderHandler serves checkout and order history
type OrderHandler struct {
	orders service.OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Group(func(r chi.Router) {
		r.Use(g.Auth)

		r.Route("/api/orders", func(r chi.Router) {
			r.Post("/checkout", h.Checkout)
			r.Get("/", h.ListOrders)
			r.Get("/{id}", h.GetOrder)
			r.Post("/{id}/cancel", h.CancelOrder)
		})

		r.Route("/api/admin/orders", func(r chi.Router) {
			r.Use(g.Require(authz.AdvanceOrder))
			r.Get("/", h.ListAllOrders)
			r.Patch("/{id}/status", h.AdvanceStatus)
		})
	})
}

func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	order, err := h.orders.Checkout(r.Context(), session(r), domain.ShippingInfo{
		FullName:      req.FullName,
		Address:       req.Address,
		City:          req.City,
		PostalCode:    req.PostalCode,
		Phone:         req.Phone,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListOrders(r.Context(), session(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), session(r), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), session(r), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}

// ListAllOrders accepts an optional ?status= filter.
func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	var filter *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseOrderStatus(raw)
		if err != nil {
			respondError(w, h.logger, err)
			return
		}
		filter = &status
	}

	orders, err := h.orders.ListAllOrders(r.Context(), session(r), filter)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req AdvanceStatusRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	order, err := h.orders.AdvanceStatus(r.Context(), session(r), id, domain.OrderStatus(req.Status))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, order)
}
