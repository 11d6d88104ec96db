package transport

import (
	"net/http"
	"strconv"

	"allhall/internal/audit"
	"allhall/internal/authz"
	"allhall/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxAuditEntries = 500

// AuditHandler lets moderators read the decision trail of a product, order or user
type AuditHandler struct {
	log    audit.Log
	logger *zap.Logger
}

func NewAuditHandler(log audit.Log, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{log: log, logger: logger}
}

func (h *AuditHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.With(g.Auth, g.Require(authz.ViewAudit)).Get("/api/admin/audit/{entityID}", h.List)
}

// List returns newest entries first; ?limit= caps the count.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := int64(100)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 || n > maxAuditEntries {
			middleware.RespondWithValidationErrors(w, []middleware.ValidationError{{Field: "limit", Message: "Value must be between 1 and 500"}})
			return
		}
		limit = n
	}

	entityID := chi.URLParam(r, "entityID")
	entries, err := h.log.List(r.Context(), entityID, limit)
	if err != nil {
		h.logger.Error("Failed to read audit log", zap.String("entity_id", entityID), zap.Error(err))
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "audit log unavailable")
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, entries)
}
