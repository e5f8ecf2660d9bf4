package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elearning/internal/apperr"
	"elearning/internal/model"
	"elearning/internal/repository"
)

type countingDirectory struct {
	Directory
	calls int
}

func (d *countingDirectory) TenantByDomain(ctx context.Context, domain string) (model.Tenant, error) {
	d.calls++
	return d.Directory.TenantByDomain(ctx, domain)
}

// mapRedis implements the string commands the cache issues. Any other
// command panics through the nil embedded interface.
type mapRedis struct {
	redis.Cmdable
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMapRedis() *mapRedis {
	return &mapRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *mapRedis) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (m *mapRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	}
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (m *mapRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, key := range keys {
		if _, ok := m.data[key]; ok {
			delete(m.data, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (m *mapRedis) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

func TestCachedDirectoryServesRepeatLookupsFromRedis(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	created, err := mem.CreateTenant(ctx, model.Tenant{Name: "CU", Code: "CU", Domain: "cu", Active: true})
	require.NoError(t, err)

	rdb := newMapRedis()
	dir := &countingDirectory{Directory: mem}
	cached := NewCachedDirectory(dir, rdb, time.Minute, nil)

	first, err := cached.TenantByDomain(ctx, "cu")
	require.NoError(t, err)
	second, err := cached.TenantByDomain(ctx, "cu")
	require.NoError(t, err)

	assert.Equal(t, created.ID, first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "CU", second.Name)
	assert.True(t, second.Active)
	assert.Equal(t, 1, dir.calls)
	assert.True(t, rdb.has(cacheKeyPrefix+"cu"))
	assert.Equal(t, time.Minute, rdb.ttls[cacheKeyPrefix+"cu"])
}

func TestCachedDirectoryNeverStoresInactiveOrMissingTenants(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	_, err := mem.CreateTenant(ctx, model.Tenant{Name: "Closed", Code: "CL", Domain: "closed", Active: false})
	require.NoError(t, err)

	rdb := newMapRedis()
	dir := &countingDirectory{Directory: mem}
	cached := NewCachedDirectory(dir, rdb, time.Minute, nil)

	for i := 0; i < 2; i++ {
		got, err := cached.TenantByDomain(ctx, "closed")
		require.NoError(t, err)
		assert.False(t, got.Active)

		_, err = cached.TenantByDomain(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	}
	assert.Equal(t, 4, dir.calls)
	assert.False(t, rdb.has(cacheKeyPrefix+"closed"))
	assert.False(t, rdb.has(cacheKeyPrefix+"missing"))
}

func TestInvalidateExposesDeactivation(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemory()
	created, err := mem.CreateTenant(ctx, model.Tenant{Name: "CU", Code: "CU", Domain: "cu", Active: true})
	require.NoError(t, err)

	rdb := newMapRedis()
	cached := NewCachedDirectory(mem, rdb, time.Minute, nil)
	resolver := NewResolver(cached, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil)
	req.Header.Set(HeaderDomain, "cu")
	got, err := resolver.Resolve(ctx, req, "")
	require.NoError(t, err)
	require.NotNil(t, got)

	mem.SetTenantActive(created.ID, false)
	_, err = resolver.Resolve(ctx, req, "")
	require.NoError(t, err, "cached entry is served until invalidated")

	cached.Invalidate(ctx, "cu")
	assert.False(t, rdb.has(cacheKeyPrefix+"cu"))
	_, err = resolver.Resolve(ctx, req, "")
	assert.Equal(t, apperr.KindTenantNotFound, apperr.KindOf(err))
}

func TestCachedDirectoryFallsThroughWhenRedisIsDown(t *testing.T) {
	mem := repository.NewMemory()
	created, err := mem.CreateTenant(context.Background(), model.Tenant{Name: "CU", Code: "CU", Domain: "cu", Active: true})
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	dir := &countingDirectory{Directory: mem}
	cached := NewCachedDirectory(dir, rdb, time.Minute, nil)

	got, err := cached.TenantByDomain(context.Background(), "cu")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	_, err = cached.TenantByDomain(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 2, dir.calls)

	cached.Invalidate(context.Background(), "cu")
}
