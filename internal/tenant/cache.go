package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"elearning/internal/model"
)

const cacheKeyPrefix = "tenant:domain:"

// CachedDirectory is a read-through cache of active tenants keyed by domain.
// Redis failures are logged and the lookup falls through to the wrapped
// directory.
type CachedDirectory struct {
	next   Directory
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedDirectory(next Directory, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedDirectory{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedDirectory) TenantByDomain(ctx context.Context, domain string) (model.Tenant, error) {
	key := cacheKeyPrefix + domain

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var t model.Tenant
		if jsonErr := json.Unmarshal(data, &t); jsonErr == nil {
			return t, nil
		}
		c.logger.Warn("discarding corrupt tenant cache entry", zap.String("domain", domain))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("tenant cache read failed", zap.String("domain", domain), zap.Error(err))
	}

	t, err := c.next.TenantByDomain(ctx, domain)
	if err != nil || !t.Active {
		return t, err
	}
	if data, err := json.Marshal(t); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("tenant cache write failed", zap.String("domain", domain), zap.Error(err))
		}
	}
	return t, nil
}

// Invalidate drops a cached domain, used after a tenant is modified.
func (c *CachedDirectory) Invalidate(ctx context.Context, domain string) {
	if err := c.rdb.Del(ctx, cacheKeyPrefix+domain).Err(); err != nil {
		c.logger.Warn("tenant cache invalidate failed", zap.String("domain", domain), zap.Error(err))
	}
}
