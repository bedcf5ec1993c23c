package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MorseWayne/storefront/internal/config"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var s string
	assert.ErrorIs(t, c.Get(ctx, "missing", &s), ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "k", []string{"RAM", "SSD"}, time.Minute))
	var got []string
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, []string{"RAM", "SSD"}, got)

	exists, _ := c.Exists(ctx, "k")
	assert.True(t, exists)

	require.NoError(t, c.Del(ctx, "k", "other"))
	exists, _ = c.Exists(ctx, "k")
	assert.False(t, exists)
}

func TestMemoryCache_Expiration(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "short", 1, time.Second))
	require.NoError(t, c.Set(ctx, "forever", 2, 0))

	now = now.Add(2 * time.Second)

	var v int
	assert.ErrorIs(t, c.Get(ctx, "short", &v), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "forever", &v))
	assert.Equal(t, 2, v)
}

func TestMemoryCache_Concurrent(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "shared", i*j, time.Minute)
				var v int
				_ = c.Get(ctx, "shared", &v)
				_ = c.Del(ctx, "shared")
			}
		}(i)
	}
	wg.Wait()
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	var v string
	assert.ErrorIs(t, c.Get(ctx, "k", &v), ErrCacheMiss)
	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestNew(t *testing.T) {
	assert.IsType(t, &NullCache{}, New(config.CacheConfig{Enabled: false}, nil))
	assert.IsType(t, &MemoryCache{}, New(config.CacheConfig{Enabled: true, Type: "memory"}, nil))
	// redis 类型但没有客户端时退化为内存缓存
	assert.IsType(t, &MemoryCache{}, New(config.CacheConfig{Enabled: true, Type: "redis"}, nil))
}
