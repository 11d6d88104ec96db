package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"allhall/internal/domain"
	"allhall/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	SessionKey       contextKey = "session"
	sessionHolderKey contextKey = "session_holder"
)

// sessionHolder lets outer middleware observe the session attached by inner middleware.
type sessionHolder struct {
	session domain.Session
	set     bool
}

func withSessionHolder(ctx context.Context, h *sessionHolder) context.Context {
	return context.WithValue(ctx, sessionHolderKey, h)
}

// TokenValidator verifies access tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

// SessionResolver looks up the current role of an authenticated user.
type SessionResolver interface {
	ResolveSession(ctx context.Context, userID uuid.UUID, email string) (domain.Session, error)
}

var errMissingToken = errors.New("missing authorization header")

// AuthMiddleware validates the bearer token and stores the caller's session in the request context.
func AuthMiddleware(tokens TokenValidator, sessions SessionResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return authenticate(tokens, sessions, logger, true)
}

// OptionalAuthMiddleware attaches a session when a token is present and lets anonymous requests through.
func OptionalAuthMiddleware(tokens TokenValidator, sessions SessionResolver, logger *zap.Logger) func(http.Handler) http.Handler {
	return authenticate(tokens, sessions, logger, false)
}

func authenticate(tokens TokenValidator, sessions SessionResolver, logger *zap.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if errors.Is(err, errMissingToken) && !required {
				next.ServeHTTP(w, r)
				return
			}
			if err != nil {
				logger.Debug("Rejected authorization header", zap.Error(err))
				RespondWithError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := tokens.ValidateToken(tokenString)
			if err != nil {
				logger.Debug("Token validation failed", zap.Error(err))
				if errors.Is(err, service.ErrTokenExpired) {
					RespondWithError(w, http.StatusUnauthorized, "token expired")
				} else {
					RespondWithError(w, http.StatusUnauthorized, "invalid token")
				}
				return
			}

			session, err := sessions.ResolveSession(r.Context(), claims.UserID, claims.Email)
			if err != nil {
				logger.Error("Failed to resolve session",
					zap.String("user_id", claims.UserID.String()),
					zap.Error(err),
				)
				if errors.Is(err, domain.ErrUnavailable) {
					RespondWithError(w, http.StatusServiceUnavailable, "role store unavailable, retry later")
				} else {
					RespondWithError(w, http.StatusInternalServerError, "failed to resolve session")
				}
				return
			}

			logger.Debug("User authenticated",
				zap.String("user_id", session.UserID.String()),
				zap.String("role", string(session.Role)),
			)
			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
		})
	}
}

// bearerToken reads the token from the Authorization header. Browsers cannot set
// headers on EventSource requests, so GET requests may pass access_token instead.
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("access_token"); token != "" && r.Method == http.MethodGet {
			return token, nil
		}
		return "", errMissingToken
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s domain.Session) context.Context {
	if h, ok := ctx.Value(sessionHolderKey).(*sessionHolder); ok {
		h.session, h.set = s, true
	}
	return context.WithValue(ctx, SessionKey, s)
}

// GetSession extracts the authenticated session from the request context
func GetSession(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(SessionKey).(domain.Session)
	return s, ok
}

// GetUserID extracts user ID from request context
func GetUserID(ctx context.Context) (string, bool) {
	s, ok := GetSession(ctx)
	if !ok {
		return "", false
	}
	return s.UserID.String(), true
}
