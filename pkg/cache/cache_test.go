package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTripAndMiss(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()

	var s string
	require.ErrorIs(t, mc.Get(ctx, "sound_enabled", &s), ErrCacheMiss)

	require.NoError(t, mc.Set(ctx, "sound_enabled", "false", 0))
	got, err := GetString(ctx, mc, "sound_enabled")
	require.NoError(t, err)
	require.Equal(t, "false", got)

	ok, err := mc.Exists(ctx, "sound_enabled")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	require.NoError(t, mc.Set(ctx, "k", "v", time.Second))
	now = now.Add(2 * time.Second)

	var s string
	require.ErrorIs(t, mc.Get(ctx, "k", &s), ErrCacheMiss)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { now = now.Add(time.Millisecond); return now }

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	require.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, mc.Get(ctx, "a", &s))
	require.NoError(t, mc.Get(ctx, "c", &s))
}

func TestLayeredCacheReadsThroughRemote(t *testing.T) {
	ctx := context.Background()
	remote := NewMemoryCache()
	require.NoError(t, remote.Set(ctx, "sound_enabled", "true", 0))

	lc := NewLayeredCache(remote)
	got, err := GetString(ctx, lc, "sound_enabled")
	require.NoError(t, err)
	require.Equal(t, "true", got)

	require.NoError(t, remote.Delete(ctx, "sound_enabled"))
	got, err = GetString(ctx, lc, "sound_enabled")
	require.NoError(t, err, "L1 keeps the value read from L2")
	require.Equal(t, "true", got)

	require.NoError(t, lc.Set(ctx, "sound_enabled", "false", 0))
	got, err = GetString(ctx, remote, "sound_enabled")
	require.NoError(t, err)
	require.Equal(t, "false", got)
}
