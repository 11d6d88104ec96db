// Package cache keeps hot role records in Redis so every authenticated
// request does not hit PostgreSQL.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"allhall/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRoleTTL bounds how long a role change can take to reach other instances
// that missed the invalidation.
const DefaultRoleTTL = 5 * time.Minute

// ErrMiss is returned when the key is not cached.
var ErrMiss = errors.New("cache miss")

type RoleCache interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.RoleRecord, error)
	// Set overwrites the cached record. Writers of a new role use it.
	Set(ctx context.Context, rec *domain.RoleRecord) error
	// Fill caches rec only when nothing is cached yet, so a read that raced a
	// role change cannot replace the newer record.
	Fill(ctx context.Context, rec *domain.RoleRecord) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

type redisRoleCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRoleCache(client *redis.Client, ttl time.Duration) RoleCache {
	if ttl <= 0 {
		ttl = DefaultRoleTTL
	}
	return &redisRoleCache{client: client, ttl: ttl}
}

func roleKey(userID uuid.UUID) string {
	return fmt.Sprintf("allhall:role:%s", userID)
}

func (c *redisRoleCache) Get(ctx context.Context, userID uuid.UUID) (*domain.RoleRecord, error) {
	data, err := c.client.Get(ctx, roleKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, err
	}

	var rec domain.RoleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode cached role: %w", err)
	}
	return &rec, nil
}

func (c *redisRoleCache) Set(ctx context.Context, rec *domain.RoleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, roleKey(rec.UserID), data, c.ttl).Err()
}

func (c *redisRoleCache) Fill(ctx context.Context, rec *domain.RoleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.client.SetNX(ctx, roleKey(rec.UserID), data, c.ttl).Err()
}

func (c *redisRoleCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	return c.client.Del(ctx, roleKey(userID)).Err()
}

// Nop never caches. It is used when Redis is not configured.
type Nop struct{}

func (Nop) Get(context.Context, uuid.UUID) (*domain.RoleRecord, error) { return nil, ErrMiss }
func (Nop) Set(context.Context, *domain.RoleRecord) error { return nil }
func (Nop) Fill(context.Context, *domain.RoleRecord) error { return nil }
func (Nop) Invalidate(context.Context, uuid.UUID) error { return nil }
