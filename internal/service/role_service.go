package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"allhall/internal/audit"
	"allhall/internal/authz"
	"allhall/internal/cache"
	"allhall/internal/domain"
	"allhall/internal/realtime"
	"allhall/internal/repository"
	"allhall/internal/tracing"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// RoleService owns the one-role-per-user mapping.
type RoleService interface {
	// EnsureRole creates the default record on first sign-in and never downgrades an existing one.
	EnsureRole(ctx context.Context, userID uuid.UUID, email string) (*domain.RoleRecord, error)
	GetRole(ctx context.Context, actor domain.Session, userID uuid.UUID) (*domain.RoleRecord, error)
	SetRole(ctx context.Context, actor domain.Session, userID uuid.UUID, role domain.Role) (*domain.RoleRecord, error)
	ListRoles(ctx context.Context, actor domain.Session) ([]*domain.RoleRecord, error)
	// ResolveSession builds the request session for an authenticated user.
	ResolveSession(ctx context.Context, userID uuid.UUID, email string) (domain.Session, error)
	// Forget drops any cached role for userID.
	Forget(ctx context.Context, userID uuid.UUID)
}

type roleService struct {
	Deps
	roles repository.RoleRepository
	cache cache.RoleCache
}

func NewRoleService(roles repository.RoleRepository, roleCache cache.RoleCache, deps Deps) RoleService {
	if roleCache == nil {
		roleCache = cache.Nop{}
	}
	return &roleService{Deps: deps, roles: roles, cache: roleCache}
}

func (s *roleService) EnsureRole(ctx context.Context, userID uuid.UUID, email string) (*domain.RoleRecord, error) {
	var rec *domain.RoleRecord
	err := s.read(ctx, "role.ensure", func(ctx context.Context) error {
		var err error
		rec, err = s.roles.Ensure(ctx, userID, strings.ToLower(email), domain.DefaultRole, s.now())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure role: %w", err)
	}
	s.remember(ctx, rec)
	return rec, nil
}

func (s *roleService) GetRole(ctx context.Context, actor domain.Session, userID uuid.UUID) (*domain.RoleRecord, error) {
	if !actor.Owns(userID) {
		if err := authz.Require(actor.Role, authz.ReadAnyRole); err != nil {
			return nil, err
		}
	}
	return s.lookup(ctx, userID)
}

func (s *roleService) SetRole(ctx context.Context, actor domain.Session, userID uuid.UUID, role domain.Role) (*domain.RoleRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "RoleService.SetRole")
	var err error
	defer func() { endSpan(span, err) }()

	if err = authz.Require(actor.Role, authz.SetRole); err != nil {
		return nil, err
	}
	if !role.Valid() {
		err = domain.NewFieldError("role", "must be one of user, seller, admin, boss")
		return nil, err
	}
	if actor.Owns(userID) {
		err = fmt.Errorf("cannot change own role: %w", domain.ErrPermissionDenied)
		return nil, err
	}

	var current *domain.RoleRecord
	if current, err = s.lookup(ctx, userID); err != nil {
		return nil, err
	}
	if err = authz.CanAssign(actor.Role, current.Role, role); err != nil {
		return nil, err
	}

	var updated *domain.RoleRecord
	err = s.write(ctx, "role.update", func(ctx context.Context) error {
		var err error
		updated, err = s.roles.UpdateRole(ctx, userID, role)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, updated); err != nil {
		s.Logger.Warn("Failed to cache changed role", zap.String("user_id", userID.String()), zap.Error(err))
		s.Forget(ctx, userID)
	}
	s.notify(ctx, realtime.RoleTopic(userID))
	s.record(ctx, &audit.Entry{
		Action:    audit.ActionRoleChanged,
		EntityID:  userID.String(),
		ActorID:   actor.UserID.String(),
		Data:      bson.M{"previous": string(current.Role), "current": string(role)},
		CreatedAt: s.now(),
	})
	s.publish(ctx, userID.String(), domain.RoleChangedEvent{
		BaseEvent: domain.NewBaseEvent(domain.EventTypeRoleChanged, s.now()),
		UserID:    userID,
		ActorID:   actor.UserID,
		Previous:  current.Role,
		Current:   role,
	})
	s.Logger.Info("Role changed",
		zap.String("user_id", userID.String()),
		zap.String("actor_id", actor.UserID.String()),
		zap.String("previous", string(current.Role)),
		zap.String("role", string(role)),
	)
	return updated, nil
}

func (s *roleService) ListRoles(ctx context.Context, actor domain.Session) ([]*domain.RoleRecord, error) {
	if err := authz.Require(actor.Role, authz.ReadAnyRole); err != nil {
		return nil, err
	}
	var records []*domain.RoleRecord
	err := s.read(ctx, "role.list", func(ctx context.Context) error {
		var err error
		records, err = s.roles.List(ctx)
		return err
	})
	return records, err
}

func (s *roleService) ResolveSession(ctx context.Context, userID uuid.UUID, email string) (domain.Session, error) {
	rec, err := s.lookup(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		rec, err = s.EnsureRole(ctx, userID, email)
	}
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{UserID: userID, Email: email, Role: rec.Role}, nil
}

func (s *roleService) Forget(ctx context.Context, userID uuid.UUID) {
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.Logger.Warn("Failed to invalidate cached role", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

func (s *roleService) lookup(ctx context.Context, userID uuid.UUID) (*domain.RoleRecord, error) {
	if rec, err := s.cache.Get(ctx, userID); err == nil {
		return rec, nil
	} else if !errors.Is(err, cache.ErrMiss) {
		s.Logger.Warn("Role cache read failed", zap.String("user_id", userID.String()), zap.Error(err))
	}

	var rec *domain.RoleRecord
	err := s.read(ctx, "role.get", func(ctx context.Context) error {
		var err error
		rec, err = s.roles.FindByUserID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.remember(ctx, rec)
	return rec, nil
}

// remember caches a record read from the store without overwriting one a
// concurrent SetRole already cached.
func (s *roleService) remember(ctx context.Context, rec *domain.RoleRecord) {
	if err := s.cache.Fill(ctx, rec); err != nil {
		s.Logger.Warn("Failed to cache role", zap.String("user_id", rec.UserID.String()), zap.Error(err))
	}
}
