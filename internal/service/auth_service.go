package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"allhall/internal/domain"
	"allhall/internal/identity"
	"allhall/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for bcrypt hashing
	BcryptCost = 10

	// Token expiration defaults, used when AuthConfig leaves them zero
	AccessTokenExpiration   = 15 * time.Minute
	RefreshTokenExpiration  = 7 * 24 * time.Hour
	PasswordResetExpiration = time.Hour

	MinPasswordLength = 8
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token has expired")
	ErrInvalidResetToken  = errors.New("password reset link is invalid or has expired")
	ErrUnknownProvider    = errors.New("unsupported identity provider")
)

// AuthEventType distinguishes auth state changes delivered to listeners.
type AuthEventType string

const (
	AuthSignedIn  AuthEventType = "signed_in"
	AuthSignedOut AuthEventType = "signed_out"
)

// AuthEvent is delivered to every registered AuthListener.
type AuthEvent struct {
	Type AuthEventType
	User *domain.User
}

// AuthListener reacts to a sign-in or sign-out. An error from a SignedIn listener
// aborts the sign-in; SignedOut listener errors are only logged.
type AuthListener func(ctx context.Context, event AuthEvent) error

// AuthResult is returned by every successful sign-in.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	User         *domain.User
}

// AuthService defines the interface for authentication business logic
type AuthService interface {
	SignUp(ctx context.Context, email, password string) (*AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*AuthResult, error)
	SignInWithFederatedProvider(ctx context.Context, provider, idToken string) (*AuthResult, error)
	SignOut(ctx context.Context, userID uuid.UUID, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (string, error)
	SendPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	ValidateToken(tokenString string) (*Claims, error)
	OnAuthStateChange(listener AuthListener)
}

// Claims represents the JWT claims. Roles are resolved per request, never embedded.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	jwt.RegisteredClaims
}

// AuthConfig carries signing and lifetime settings.
type AuthConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	ResetExpiry   time.Duration
}

type authService struct {
	Deps
	cfg              AuthConfig
	userRepo         repository.UserRepository
	refreshTokenRepo repository.RefreshTokenRepository
	resetRepo        repository.PasswordResetRepository
	verifiers        map[string]identity.Verifier

	mu        sync.RWMutex
	listeners []AuthListener
}

// NewAuthService creates a new instance of AuthService
func NewAuthService(
	userRepo repository.UserRepository,
	refreshTokenRepo repository.RefreshTokenRepository,
	resetRepo repository.PasswordResetRepository,
	verifiers map[string]identity.Verifier,
	cfg AuthConfig,
	deps Deps,
) AuthService {
	if cfg.AccessExpiry <= 0 {
		cfg.AccessExpiry = AccessTokenExpiration
	}
	if cfg.RefreshExpiry <= 0 {
		cfg.RefreshExpiry = RefreshTokenExpiration
	}
	if cfg.ResetExpiry <= 0 {
		cfg.ResetExpiry = PasswordResetExpiration
	}
	return &authService{
		Deps:             deps,
		cfg:              cfg,
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		resetRepo:        resetRepo,
		verifiers:        verifiers,
	}
}

func (s *authService) OnAuthStateChange(listener AuthListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// SignUp creates a password account and signs it in
func (s *authService) SignUp(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hashedPassword, err := s.hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hashedPassword,
		Provider:     domain.ProviderPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.write(ctx, "user.create", func(ctx context.Context) error {
		return s.userRepo.Create(ctx, user)
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.Logger.Info("User registered", zap.String("user_id", user.ID.String()), zap.String("email", user.Email))
	return s.startSession(ctx, user)
}

// SignIn authenticates a password account
func (s *authService) SignIn(ctx context.Context, email, password string) (*AuthResult, error) {
	var user *domain.User
	err := s.read(ctx, "user.find", func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.FindByEmail(ctx, normalizeEmail(email))
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if user.PasswordHash == "" || s.verifyPassword(user.PasswordHash, password) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.startSession(ctx, user)
}

// SignInWithFederatedProvider exchanges a provider ID token for a session,
// creating the account on first use.
func (s *authService) SignInWithFederatedProvider(ctx context.Context, provider, idToken string) (*AuthResult, error) {
	verifier, ok := s.verifiers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	ident, err := verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}

	user, err := s.federatedUser(ctx, provider, ident)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, user)
}

func (s *authService) federatedUser(ctx context.Context, provider string, ident *identity.Identity) (*domain.User, error) {
	var user *domain.User
	err := s.read(ctx, "user.find", func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.FindByProvider(ctx, provider, ident.Subject)
		if errors.Is(err, repository.ErrUserNotFound) {
			user, err = s.userRepo.FindByEmail(ctx, normalizeEmail(ident.Email))
		}
		return err
	})
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	now := s.now()
	user = &domain.User{
		ID:              uuid.New(),
		Email:           normalizeEmail(ident.Email),
		Provider:        provider,
		ProviderSubject: ident.Subject,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.write(ctx, "user.create", func(ctx context.Context) error {
		return s.userRepo.Create(ctx, user)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.Logger.Info("User registered", zap.String("user_id", user.ID.String()), zap.String("provider", provider))
	return user, nil
}

// SignOut revokes the refresh token and notifies listeners
func (s *authService) SignOut(ctx context.Context, userID uuid.UUID, refreshToken string) error {
	if refreshToken != "" {
		err := s.write(ctx, "refresh_token.revoke", func(ctx context.Context) error {
			return s.refreshTokenRepo.Revoke(ctx, userID, refreshToken)
		})
		// An unknown token, or one of another user, is already signed out for userID.
		if err != nil && !errors.Is(err, repository.ErrRefreshTokenNotFound) {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}
	}

	user := &domain.User{ID: userID}
	for _, l := range s.snapshotListeners() {
		if err := l(ctx, AuthEvent{Type: AuthSignedOut, User: user}); err != nil {
			s.Logger.Warn("Sign-out listener failed", zap.String("user_id", userID.String()), zap.Error(err))
		}
	}
	return nil
}

// Refresh generates a new access token using a valid refresh token
func (s *authService) Refresh(ctx context.Context, refreshTokenString string) (string, error) {
	var refreshToken *domain.RefreshToken
	err := s.read(ctx, "refresh_token.find", func(ctx context.Context) error {
		var err error
		refreshToken, err = s.refreshTokenRepo.FindByToken(ctx, refreshTokenString)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenNotFound) || errors.Is(err, repository.ErrRefreshTokenRevoked) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("failed to find refresh token: %w", err)
	}

	if s.now().After(refreshToken.ExpiresAt) {
		return "", ErrTokenExpired
	}

	var user *domain.User
	err = s.read(ctx, "user.find", func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.FindByID(ctx, refreshToken.UserID)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	return s.generateAccessToken(user)
}

// SendPasswordReset issues a single-use reset token and hands it to the mailer.
// Unknown addresses succeed silently so the endpoint cannot be used to enumerate accounts.
func (s *authService) SendPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	var user *domain.User
	err := s.read(ctx, "user.find", func(ctx context.Context) error {
		var err error
		user, err = s.userRepo.FindByEmail(ctx, email)
		return err
	})
	if errors.Is(err, repository.ErrUserNotFound) {
		s.Logger.Info("Password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}
	now := s.now()
	reset := &domain.PasswordReset{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: now.Add(s.cfg.ResetExpiry),
		CreatedAt: now,
	}
	err = s.write(ctx, "password_reset.create", func(ctx context.Context) error {
		return s.resetRepo.Create(ctx, reset)
	})
	if err != nil {
		return fmt.Errorf("failed to store password reset: %w", err)
	}

	s.publish(ctx, user.ID.String(), domain.PasswordResetRequestedEvent{
		BaseEvent: domain.NewBaseEvent(domain.EventTypePasswordResetRequested, now),
		UserID:    user.ID,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: reset.ExpiresAt,
	})
	s.Logger.Info("Password reset requested", zap.String("user_id", user.ID.String()))
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes every refresh token.
func (s *authService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	var reset *domain.PasswordReset
	err := s.write(ctx, "password_reset.consume", func(ctx context.Context) error {
		var err error
		reset, err = s.resetRepo.Consume(ctx, hashToken(token), s.now())
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrPasswordResetNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("failed to consume password reset: %w", err)
	}

	hashedPassword, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	err = s.write(ctx, "user.update_password", func(ctx context.Context) error {
		return s.userRepo.UpdatePassword(ctx, reset.UserID, hashedPassword)
	})
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	var revoked int64
	err = s.write(ctx, "refresh_token.revoke_all", func(ctx context.Context) error {
		var err error
		revoked, err = s.refreshTokenRepo.RevokeAllForUser(ctx, reset.UserID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.Logger.Info("Password reset completed",
		zap.String("user_id", reset.UserID.String()),
		zap.Int64("revoked_sessions", revoked),
	)
	return nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *authService) startSession(ctx context.Context, user *domain.User) (*AuthResult, error) {
	for _, l := range s.snapshotListeners() {
		if err := l(ctx, AuthEvent{Type: AuthSignedIn, User: user}); err != nil {
			return nil, fmt.Errorf("sign-in hook failed: %w", err)
		}
	}

	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}
	refreshToken, err := s.generateRefreshToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	s.Logger.Info("User signed in", zap.String("user_id", user.ID.String()), zap.String("provider", user.Provider))
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    s.cfg.AccessExpiry,
		User:         user,
	}, nil
}

func (s *authService) snapshotListeners() []AuthListener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]AuthListener(nil), s.listeners...)
}

func (s *authService) hashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *authService) verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (s *authService) generateAccessToken(user *domain.User) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID: user.ID,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.Secret))
}

func (s *authService) generateRefreshToken(ctx context.Context, user *domain.User) (string, error) {
	now := s.now()
	refreshToken := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     uuid.New().String(),
		ExpiresAt: now.Add(s.cfg.RefreshExpiry),
		CreatedAt: now,
	}

	err := s.write(ctx, "refresh_token.create", func(ctx context.Context) error {
		return s.refreshTokenRepo.Create(ctx, refreshToken)
	})
	if err != nil {
		return "", err
	}
	return refreshToken.Token, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return domain.NewFieldError("password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}
	return nil
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
