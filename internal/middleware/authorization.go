package middleware

import (
	"net/http"

	"allhall/internal/authz"

	"go.uber.org/zap"
)

// RequirePermission middleware ensures the session's role may perform action
func RequirePermission(action authz.Action, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, ok := GetSession(r.Context())
			if !ok {
				logger.Warn("Session not found in context")
				RespondWithError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			if !authz.Allowed(session.Role, action) {
				logger.Warn("User role not authorized",
					zap.String("user_id", session.UserID.String()),
					zap.String("role", string(session.Role)),
					zap.String("action", string(action)),
				)
				RespondWithError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
