package service

import (
	"context"
	"testing"
	"time"

	"allhall/internal/audit"
	"allhall/internal/cache"
	"allhall/internal/domain"
	"allhall/internal/realtime"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCachedRoleService(t *testing.T, f *fixture) (RoleService, audit.Log) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	log := audit.NewMemory()
	f.deps.Audit = log
	return NewRoleService(memRoles{f.db}, cache.NewRoleCache(client, time.Minute), f.deps), log
}

// seedRole stores a role record directly.
func (f *fixture) seedRole(role domain.Role) domain.Session {
	s := session(role)
	now := f.clock.Now()
	f.db.roles[s.UserID] = &domain.RoleRecord{UserID: s.UserID, Email: s.Email, Role: role, CreatedAt: now, UpdatedAt: now}
	return s
}

func TestRoles_EnsureRoleIsIdempotent(t *testing.T) {
	f := newFixture()
	svc := NewRoleService(memRoles{f.db}, nil, f.deps)
	ctx := context.Background()
	id := uuid.New()

	rec, err := svc.EnsureRole(ctx, id, "New@Example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, rec.Role)
	assert.Equal(t, "new@example.com", rec.Email)

	f.db.roles[id].Role = domain.RoleSeller
	again, err := svc.EnsureRole(ctx, id, "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, again.Role)
	assert.Len(t, f.db.roles, 1)
}

func TestRoles_ResolveSessionBootstrapsDefault(t *testing.T) {
	f := newFixture()
	svc, _ := newCachedRoleService(t, f)
	id := uuid.New()

	s, err := svc.ResolveSession(context.Background(), id, "first@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.Session{UserID: id, Email: "first@example.com", Role: domain.RoleUser}, s)
	require.Contains(t, f.db.roles, id)
}

// Feature: allhall, Property 8: non-privileged actors can never change a role
func TestProperty_SetRoleDeniedForUnprivileged(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("user and seller actors are always denied", prop.ForAll(
		func(actorRole, targetRole, next domain.Role) bool {
			f := newFixture()
			svc := NewRoleService(memRoles{f.db}, nil, f.deps)
			actor := f.seedRole(actorRole)
			target := f.seedRole(targetRole)

			_, err := svc.SetRole(context.Background(), actor, target.UserID, next)
			return assert.ErrorIs(t, err, domain.ErrPermissionDenied) &&
				f.db.roles[target.UserID].Role == targetRole
		},
		gen.OneConstOf(domain.RoleUser, domain.RoleSeller),
		gen.OneConstOf(domain.RoleUser, domain.RoleSeller, domain.RoleAdmin, domain.RoleBoss),
		gen.OneConstOf(domain.RoleUser, domain.RoleSeller, domain.RoleAdmin, domain.RoleBoss),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRoles_AdminPromotesSeller(t *testing.T) {
	f := newFixture()
	svc, log := newCachedRoleService(t, f)
	ctx := context.Background()
	admin := f.seedRole(domain.RoleAdmin)
	target := f.seedRole(domain.RoleUser)

	before, err := svc.ResolveSession(ctx, target.UserID, target.Email)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, before.Role)

	rec, err := svc.SetRole(ctx, admin, target.UserID, domain.RoleSeller)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, rec.Role)

	after, err := svc.ResolveSession(ctx, target.UserID, target.Email)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, after.Role, "cached role must be invalidated")
	assert.True(t, f.hub.notified(realtime.RoleTopic(target.UserID)))

	entries, err := log.List(ctx, target.UserID.String(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionRoleChanged, entries[0].Action)

	events := f.publisher.all()
	require.Len(t, events, 1)
	changed, ok := events[0].(domain.RoleChangedEvent)
	require.True(t, ok)
	assert.Equal(t, domain.RoleUser, changed.Previous)
	assert.Equal(t, domain.RoleSeller, changed.Current)
}

func TestRoles_StaleReadCannotOverwriteChangedRole(t *testing.T) {
	f := newFixture()
	svc, _ := newCachedRoleService(t, f)
	ctx := context.Background()
	boss := f.seedRole(domain.RoleBoss)
	target := f.seedRole(domain.RoleAdmin)

	stale, err := svc.ResolveSession(ctx, target.UserID, target.Email)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, stale.Role)
	_, err = svc.SetRole(ctx, boss, target.UserID, domain.RoleUser)
	require.NoError(t, err)

	// A lookup that read the row before the update caches it afterwards.
	svc.(*roleService).remember(ctx, &domain.RoleRecord{UserID: target.UserID, Email: target.Email, Role: domain.RoleAdmin})

	current, err := svc.ResolveSession(ctx, target.UserID, target.Email)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, current.Role)
}

func TestRoles_BossOnlyRules(t *testing.T) {
	f := newFixture()
	svc := NewRoleService(memRoles{f.db}, nil, f.deps)
	ctx := context.Background()
	admin := f.seedRole(domain.RoleAdmin)
	boss := f.seedRole(domain.RoleBoss)
	user := f.seedRole(domain.RoleUser)

	_, err := svc.SetRole(ctx, admin, user.UserID, domain.RoleBoss)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	_, err = svc.SetRole(ctx, admin, boss.UserID, domain.RoleUser)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	rec, err := svc.SetRole(ctx, boss, user.UserID, domain.RoleBoss)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBoss, rec.Role)
}

func TestRoles_NoSelfChange(t *testing.T) {
	f := newFixture()
	svc := NewRoleService(memRoles{f.db}, nil, f.deps)
	admin := f.seedRole(domain.RoleAdmin)

	_, err := svc.SetRole(context.Background(), admin, admin.UserID, domain.RoleBoss)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Equal(t, domain.RoleAdmin, f.db.roles[admin.UserID].Role)
}

func TestRoles_SetRoleValidation(t *testing.T) {
	f := newFixture()
	svc := NewRoleService(memRoles{f.db}, nil, f.deps)
	admin := f.seedRole(domain.RoleAdmin)

	_, err := svc.SetRole(context.Background(), admin, uuid.New(), domain.RoleSeller)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.SetRole(context.Background(), admin, uuid.New(), domain.Role("root"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRoles_GetAndList(t *testing.T) {
	f := newFixture()
	svc := NewRoleService(memRoles{f.db}, nil, f.deps)
	ctx := context.Background()
	user := f.seedRole(domain.RoleUser)
	other := f.seedRole(domain.RoleSeller)
	admin := f.seedRole(domain.RoleAdmin)

	rec, err := svc.GetRole(ctx, user, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, rec.Role)

	_, err = svc.GetRole(ctx, user, other.UserID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	rec, err = svc.GetRole(ctx, admin, other.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSeller, rec.Role)

	_, err = svc.GetRole(ctx, admin, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := svc.ListRoles(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = svc.ListRoles(ctx, user)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}
