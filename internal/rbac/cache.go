package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "rbac:version"

// Cache keeps resolved effective-permission sets in Redis. A single version
// counter covers all principals: any grant, revoke, binding or role change
// bumps it, so stale sets age out without per-principal bookkeeping.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// EffectivePermissions loads the cached set for a principal or populates it
// via the loader. Concurrent fills for the same key are collapsed.
func (c *Cache) EffectivePermissions(ctx context.Context, principalID int64, loader func(context.Context) ([]string, error)) ([]string, error) {
	if loader == nil {
		return nil, errors.New("rbac: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("rbac:perms:%d:%d", ver, principalID)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var perms []string
		if err := json.Unmarshal(payload, &perms); err != nil {
			return nil, err
		}
		return perms, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		perms, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(perms)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return perms, nil
	})
	if err != nil {
		return nil, err
	}
	perms, _ := value.([]string)
	return perms, nil
}

// Bump invalidates all cached permission sets by incrementing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, "rbac.bump", strconv.FormatInt(ver, 10)).Err()
}
