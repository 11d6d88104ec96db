package transport

import (
	"net/http"

	"allhall/internal/domain"
	"allhall/internal/middleware"
	"allhall/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CredentialsRequest is the sign-up and sign-in payload
type CredentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// SignInRequest does not enforce the length rule so old passwords keep working.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// FederatedRequest carries an identity provider's ID token
type FederatedRequest struct {
	IDToken string `json:"id_token" validate:"required"`
}

// RefreshRequest represents the token refresh request payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// SignOutRequest may omit the refresh token when the client already lost it.
type SignOutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type PasswordResetConfirmRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// SessionResponse is returned by every successful sign-in
type SessionResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         UserProfile `json:"user"`
}

// RefreshResponse represents the token refresh response
type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// UserProfile represents user profile data
type UserProfile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Provider string `json:"provider,omitempty"`
}

// AuthHandler handles HTTP requests for account and session operations
type AuthHandler struct {
	auth   service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// RegisterRoutes mounts /api/auth. limiter guards the unauthenticated endpoints.
func (h *AuthHandler) RegisterRoutes(r chi.Router, g Guards, limiter func(http.Handler) http.Handler) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(limiter)
			r.Post("/signup", h.SignUp)
			r.Post("/signin", h.SignIn)
			r.Post("/federated/{provider}", h.SignInFederated)
			r.Post("/refresh", h.Refresh)
			r.Post("/password-reset", h.SendPasswordReset)
			r.Post("/password-reset/confirm", h.ConfirmPasswordReset)
		})

		r.Group(func(r chi.Router) {
			r.Use(g.Auth)
			r.Post("/signout", h.SignOut)
			r.Get("/me", h.Me)
		})
	})
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	result, err := h.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("Sign-up failed", zap.Error(err))
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusCreated, sessionResponse(result))
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	result, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Debug("Sign-in failed", zap.Error(err))
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, sessionResponse(result))
}

func (h *AuthHandler) SignInFederated(w http.ResponseWriter, r *http.Request) {
	var req FederatedRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	provider := chi.URLParam(r, "provider")
	result, err := h.auth.SignInWithFederatedProvider(r.Context(), provider, req.IDToken)
	if err != nil {
		h.logger.Info("Federated sign-in failed", zap.String("provider", provider), zap.Error(err))
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, sessionResponse(result))
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	accessToken, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusOK, RefreshResponse{AccessToken: accessToken})
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	var req SignOutRequest
	if r.ContentLength != 0 && !decode(w, r, h.logger, &req) {
		return
	}

	if err := h.auth.SignOut(r.Context(), session(r).UserID, req.RefreshToken); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendPasswordReset always answers 202 so the endpoint cannot reveal which emails exist.
func (h *AuthHandler) SendPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	if err := h.auth.SendPasswordReset(r.Context(), req.Email); err != nil {
		respondError(w, h.logger, err)
		return
	}
	middleware.RespondWithJSON(w, http.StatusAccepted, map[string]string{"status": "if the account exists, a reset link was sent"})
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if !decode(w, r, h.logger, &req) {
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current session, including the role resolved for this request.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	middleware.RespondWithJSON(w, http.StatusOK, session(r))
}

func sessionResponse(result *service.AuthResult) SessionResponse {
	return SessionResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    int64(result.ExpiresIn.Seconds()),
		User:         profile(result.User),
	}
}

func profile(u *domain.User) UserProfile {
	if u == nil {
		return UserProfile{}
	}
	return UserProfile{ID: u.ID.String(), Email: u.Email, Provider: u.Provider}
}
