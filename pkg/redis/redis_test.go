package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optionsdash/pkg/config"
)

func TestNew_Disabled(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
	assert.NoError(t, client.Close())
}

func TestRateLimiter_Disabled(t *testing.T) {
	limiter := NewRateLimiter(Disabled(), "test")

	allowed, remaining, err := limiter.Allow(context.Background(), SchwabRateLimit)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, SchwabRateLimit.Limit, remaining)

	assert.NoError(t, limiter.Wait(context.Background(), SchwabRateLimit))
}

func TestCache_Disabled(t *testing.T) {
	cache := NewCache(Disabled(), "test")
	ctx := context.Background()

	var result string
	found, err := cache.Get(ctx, "key", &result)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Set(ctx, "key", "value", time.Minute))
	assert.NoError(t, cache.Delete(ctx, "key"))
	assert.False(t, cache.Enabled())
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "snapshot:SPY:2024-01-15", SnapshotKey("SPY", "2024-01-15"))
	assert.Equal(t, "unusual:QQQ:2024-01-15", UnusualKey("QQQ", "2024-01-15"))
}
