package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"allhall/internal/authz"
	"allhall/internal/domain"
	"allhall/internal/realtime"
	"allhall/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HeartbeatInterval keeps idle event streams open through proxies.
const HeartbeatInterval = 15 * time.Second

// LiveHandler streams live views as Server-Sent Events. Every event carries
// the full current snapshot; clients replace their state rather than patch it.
type LiveHandler struct {
	catalog   service.CatalogService
	cart      service.CartService
	orders    service.OrderService
	logger    *zap.Logger
	heartbeat time.Duration
}

func NewLiveHandler(catalog service.CatalogService, cart service.CartService, orders service.OrderService, logger *zap.Logger) *LiveHandler {
	return &LiveHandler{catalog: catalog, cart: cart, orders: orders, logger: logger, heartbeat: HeartbeatInterval}
}

func (h *LiveHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Route("/api/live", func(r chi.Router) {
		r.Get("/products", h.Products)

		r.Group(func(r chi.Router) {
			r.Use(g.Auth)
			r.Get("/products/mine", h.MyProducts)
			r.Get("/cart", h.Cart)
			r.Get("/orders", h.Orders)
			r.With(g.Require(authz.ViewModerationQueue)).Get("/admin/pending", h.Pending)
		})
	})
}

func (h *LiveHandler) Products(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "products", func(ctx context.Context, _ domain.Session) (*realtime.Subscription, error) {
		return h.catalog.WatchApproved(ctx)
	})
}

func (h *LiveHandler) MyProducts(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "products.mine", h.catalog.WatchMine)
}

func (h *LiveHandler) Pending(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "pending", h.catalog.WatchPending)
}

func (h *LiveHandler) Cart(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "cart", h.cart.WatchCart)
}

func (h *LiveHandler) Orders(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, "orders", h.orders.WatchOrders)
}

type watchFunc func(ctx context.Context, actor domain.Session) (*realtime.Subscription, error)

// stream writes one "snapshot" event per update until the client goes away.
// A failed refresh is sent as an "error" event and the stream stays open,
// unless the viewer lost access, which ends it.
func (h *LiveHandler) stream(w http.ResponseWriter, r *http.Request, view string, watch watchFunc) {
	ctx := r.Context()
	sub, err := watch(ctx, session(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	defer sub.Cancel()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("Event stream cannot be flushed", zap.String("view", view), zap.Error(err))
		return
	}

	h.logger.Debug("Live view opened", zap.String("view", view))
	defer h.logger.Debug("Live view closed", zap.String("view", view))

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case u, ok := <-sub.C:
			if !ok {
				return
			}
			if err := writeEvent(w, u); err != nil {
				h.logger.Debug("Live view write failed", zap.String("view", view), zap.Error(err))
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

type streamError struct {
	Message string `json:"message"`
	Retry   bool   `json:"retry"`
}

func writeEvent(w http.ResponseWriter, u realtime.Update) error {
	event, payload := "snapshot", u.Snapshot
	switch {
	case errors.Is(u.Err, domain.ErrPermissionDenied):
		event, payload = "error", streamError{Message: "access revoked"}
	case u.Err != nil:
		event, payload = "error", streamError{Message: "view refresh failed", Retry: domain.IsRetryable(u.Err)}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
