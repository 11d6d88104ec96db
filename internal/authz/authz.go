// Package authz decides which roles may perform which actions.
package authz

import (
	"fmt"

	"allhall/internal/domain"
)

// Action is a guarded operation.
type Action string

const (
	SubmitProduct       Action = "product:submit"
	ModerateProduct     Action = "product:moderate"
	ViewModerationQueue Action = "product:queue"
	ManageAnyProduct    Action = "product:manage_any"
	SetRole             Action = "role:set"
	ReadAnyRole         Action = "role:read_any"
	GrantBoss           Action = "role:grant_boss"
	AdvanceOrder        Action = "order:advance"
	ViewAnyOrder        Action = "order:view_any"
	ViewAudit           Action = "audit:view"
)

var (
	sellers    = []domain.Role{domain.RoleSeller, domain.RoleAdmin, domain.RoleBoss}
	privileged = []domain.Role{domain.RoleAdmin, domain.RoleBoss}
)

var policy = map[Action][]domain.Role{
	SubmitProduct:       sellers,
	ModerateProduct:     privileged,
	ViewModerationQueue: privileged,
	ManageAnyProduct:    privileged,
	SetRole:             privileged,
	ReadAnyRole:         privileged,
	GrantBoss:           {domain.RoleBoss},
	AdvanceOrder:        privileged,
	ViewAnyOrder:        privileged,
	ViewAudit:           privileged,
}

// Allowed reports whether role may perform action. Unknown actions are denied.
func Allowed(role domain.Role, action Action) bool {
	for _, r := range policy[action] {
		if r == role {
			return true
		}
	}
	return false
}

// Require returns an error wrapping domain.ErrPermissionDenied when role may not perform action.
func Require(role domain.Role, action Action) error {
	if Allowed(role, action) {
		return nil
	}
	return fmt.Errorf("%w: role %q may not %s", domain.ErrPermissionDenied, role, action)
}

// CanAssign reports whether actor may move a user from current to next.
// Only a boss may grant boss or change an existing boss.
func CanAssign(actor, current, next domain.Role) error {
	if err := Require(actor, SetRole); err != nil {
		return err
	}
	if next == domain.RoleBoss || current == domain.RoleBoss {
		return Require(actor, GrantBoss)
	}
	return nil
}
