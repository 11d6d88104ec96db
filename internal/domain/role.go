package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is the access tier assigned to a user.
type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
	RoleBoss   Role = "boss"
)

// DefaultRole is assigned when a role record is bootstrapped on first sign-in.
const DefaultRole = RoleUser

// Roles returns every valid role, least privileged first.
func Roles() []Role {
	return []Role{RoleUser, RoleSeller, RoleAdmin, RoleBoss}
}

// ParseRole converts s into a Role, rejecting unknown values.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", NewFieldError("role", "must be one of user, seller, admin, boss")
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Privileged reports whether r carries moderation rights.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleBoss
}

// RoleRecord maps a user to its role. There is exactly one per user.
type RoleRecord struct {
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
