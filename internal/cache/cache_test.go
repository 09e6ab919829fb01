package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	c, err := New(16, rdb)
	require.NoError(t, err)
	return c, mr
}

func TestCache_SetGet_Tier1Hit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, "license:camera:cam-1", []byte("payload"), time.Hour)

	val, ok := c.Get(ctx, "license:camera:cam-1")
	require.True(t, ok)
	assert.Equal(t, "payload", string(val))
}

func TestCache_Get_PopulatesTier1FromTier2(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, mr.Set("entitlement:t1:analytics:zone", "remote-value"))
	mr.SetTTL("entitlement:t1:analytics:zone", 30*time.Second)

	val, ok := c.Get(ctx, "entitlement:t1:analytics:zone")
	require.True(t, ok)
	assert.Equal(t, "remote-value", string(val))

	// Now remove from Tier 2 only; Tier 1 should still serve the value.
	mr.Del("entitlement:t1:analytics:zone")
	val, ok = c.Get(ctx, "entitlement:t1:analytics:zone")
	require.True(t, ok)
	assert.Equal(t, "remote-value", string(val))
}

func TestCache_Get_Miss(t *testing.T) {
	c, _ := newTestCache(t)
	_, ok := c.Get(context.Background(), "nope")
	assert.False(t, ok)
}

func TestCache_Set_ZeroTTLIsNoop(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), 0)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, mr.Exists("k"))
}

func TestCache_Invalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	c.Invalidate(ctx, "k")

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, mr.Exists("k"))
}

func TestCache_InvalidateByPattern(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, "growth_packs:t1", []byte("a"), time.Minute)
	c.Set(ctx, "growth_packs:t2", []byte("b"), time.Minute)
	c.Set(ctx, "license:camera:cam-1", []byte("c"), time.Minute)

	c.InvalidateByPattern(ctx, "growth_packs:*")

	_, ok := c.Get(ctx, "growth_packs:t1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "license:camera:cam-1")
	assert.False(t, ok, "tier 1 is purged coarsely on pattern invalidate")
	assert.False(t, mr.Exists("growth_packs:t1"))
	assert.False(t, mr.Exists("growth_packs:t2"))
}

func TestCache_TolerantOfTier2Outage(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)

	mr.Close() // simulate Tier 2 outage
	val, ok := c.Get(ctx, "k")
	require.True(t, ok, "tier 1 still serves reads during a tier 2 outage")
	assert.Equal(t, "v", string(val))

	c.Set(ctx, "k2", []byte("v2"), time.Minute)
	val, ok = c.Get(ctx, "k2")
	require.True(t, ok, "tier 1 write succeeds even though tier 2 write is dropped")
	assert.Equal(t, "v2", string(val))
}
