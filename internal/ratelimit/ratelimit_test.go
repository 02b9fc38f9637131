package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowUnderLimit(t *testing.T) {
	srv := miniredis.RunT(t)

	limiter, err := NewRedisLimiter("redis://"+srv.Addr(), 3, time.Minute, false)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "source-a")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "source-a")
	require.NoError(t, err)
	assert.False(t, allowed, "request over the limit must be denied")
}

func TestAllowPerSource(t *testing.T) {
	srv := miniredis.RunT(t)

	limiter, err := NewRedisLimiter("redis://"+srv.Addr(), 1, time.Minute, false)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "source-a")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "source-b")
	require.NoError(t, err)
	assert.True(t, allowed, "limits are tracked per source")

	allowed, err = limiter.Allow(ctx, "source-a")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestWindowExpiry(t *testing.T) {
	srv := miniredis.RunT(t)

	limiter, err := NewRedisLimiter("redis://"+srv.Addr(), 1, time.Second, false)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()

	allowed, err := limiter.Allow(ctx, "source-a")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "source-a")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Old entries fall out of the window and requests are allowed again.
	srv.FastForward(2 * time.Second)
	time.Sleep(10 * time.Millisecond)

	allowed, err = limiter.Allow(ctx, "source-a")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDisabledAlwaysAllows(t *testing.T) {
	limiter, err := NewRedisLimiter("", 0, 0, true)
	require.NoError(t, err)
	defer limiter.Close()

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(context.Background(), "anything")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestInvalidURL(t *testing.T) {
	_, err := NewRedisLimiter("://not-a-url", 1, time.Minute, false)
	assert.Error(t, err)
}
