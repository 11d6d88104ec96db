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

// SetRoleRequest is the role assignment payload
type SetRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user seller admin boss"`
}

// RoleHandler serves role lookups and assignments
type RoleHandler struct {
	roles  service.RoleService
	logger *zap.Logger
}

func NewRoleHandler(roles service.RoleService, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{roles: roles, logger: logger}
}

func (h *RoleHandler) RegisterRoutes(r chi.Router, g Guards) {
	r.Group(func(r chi.Router) {
		r.Use(g.Auth)
		r.Get("/api/roles/{userID}", h.GetRole)
		r.Put("/api/roles/{userID}", h.SetRole)
		r.With(g.Require(authz.ReadAnyRole)).Get("/api/admin/roles", h.ListRoles)
	})
}

func (h *RoleHandler) GetRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}

	rec, err := h.roles.GetRole(r.Context(), session(r), userID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, rec)
}

// SetRole leaves every permission decision to the service so the rules live in one place.
func (h *RoleHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req SetRoleRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	rec, err := h.roles.SetRole(r.Context(), session(r), userID, domain.Role(req.Role))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, rec)
}

func (h *RoleHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	records, err := h.roles.ListRoles(r.Context(), session(r))
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, records)
}
