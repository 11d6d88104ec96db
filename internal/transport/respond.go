// Package transport exposes the storefront services over HTTP.
package transport

import (
	"errors"
	"net/http"

	"allhall/internal/authz"
	"allhall/internal/domain"
	"allhall/internal/identity"
	"allhall/internal/middleware"
	"allhall/internal/repository"
	"allhall/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Guards are the middleware a handler needs to protect its routes.
type Guards struct {
	Auth         func(http.Handler) http.Handler
	OptionalAuth func(http.Handler) http.Handler
	Logger       *zap.Logger
}

// Require rejects sessions whose role may not perform action.
func (g Guards) Require(action authz.Action) func(http.Handler) http.Handler {
	return middleware.RequirePermission(action, g.Logger)
}

// respondError writes err with the status its kind maps to.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, identity.ErrInvalidIDToken):
		middleware.RespondWithError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrTokenExpired):
		middleware.RespondWithError(w, http.StatusUnauthorized, "token expired")
	case errors.Is(err, service.ErrInvalidResetToken):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnknownProvider), errors.Is(err, identity.ErrProviderUnsupported):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrUserAlreadyExists):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		middleware.RespondWithDomainError(w, logger, err)
	}
}

// decode reads a JSON body into v and writes the 400 response itself when it fails.
func decode(w http.ResponseWriter, r *http.Request, logger *zap.Logger, v interface{}) bool {
	if err := middleware.DecodeAndValidate(r, v); err != nil {
		logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// pathID parses the named URL parameter as a UUID.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		middleware.RespondWithValidationErrors(w, []middleware.ValidationError{{Field: name, Message: "Invalid identifier"}})
		return uuid.Nil, false
	}
	return id, true
}

// session returns the caller's session. Routes behind Auth always have one;
// elsewhere the zero Session stands for an anonymous caller.
func session(r *http.Request) domain.Session {
	s, _ := middleware.GetSession(r.Context())
	return s
}
