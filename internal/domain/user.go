package domain

import (
	"time"

	"github.com/google/uuid"
)

// Identity providers a user can authenticate with.
const (
	ProviderPassword = "password"
	ProviderGoogle   = "google"
)

// User is an authenticated identity. Roles live in RoleRecord, not here.
type User struct {
	ID              uuid.UUID `json:"id"`
	Email           string    `json:"email"`
	PasswordHash    string    `json:"-"`
	Provider        string    `json:"provider"`
	ProviderSubject string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// RefreshToken is a long-lived credential used to mint access tokens.
type RefreshToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`
}

// PasswordReset is a single-use reset grant. Only the token hash is stored.
type PasswordReset struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Session is the authenticated actor of a single request.
type Session struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	Role   Role      `json:"role"`
}

// Owns reports whether the session belongs to userID.
func (s Session) Owns(userID uuid.UUID) bool {
	return s.UserID != uuid.Nil && s.UserID == userID
}
