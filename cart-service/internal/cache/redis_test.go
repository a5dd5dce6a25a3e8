package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/donpico/tienda/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisCache(client, 15*time.Minute), mr
}

func sampleCart(sessionID string) *domain.Cart {
	return &domain.Cart{
		SessionID: sessionID,
		Items: []domain.CartItem{
			{ProductID: "leche", Name: "Leche", UnitPrice: "4500", Quantity: 2},
			{ProductID: "pan", Name: "Pan", UnitPrice: "3200.50", Quantity: 1},
		},
		Version: 3,
	}
}

func TestGet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)

	data, err := json.Marshal(sampleCart("s1"))
	require.NoError(t, err)
	require.NoError(t, mr.Set(cacheKey("s1"), string(data)))

	result, err := cache.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", result.SessionID)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "3200.50", result.Items[1].UnitPrice)
	assert.Equal(t, int64(3), result.Version)
}

func TestGet_CacheMiss(t *testing.T) {
	cache, _ := setupTestRedis(t)

	result, err := cache.Get(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Nil(t, result)
}

func TestGet_InvalidJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("s1"), `{"session_id":`))

	_, err := cache.Get(context.Background(), "s1")
	require.ErrorContains(t, err, "unmarshal cart failed")
}

func TestGet_RedisDown(t *testing.T) {
	cache, mr := setupTestRedis(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestSet_Success(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set(context.Background(), "s2", sampleCart("s2")))

	stored, err := mr.Get(cacheKey("s2"))
	require.NoError(t, err)
	var got domain.Cart
	require.NoError(t, json.Unmarshal([]byte(stored), &got))
	assert.Equal(t, "s2", got.SessionID)
	assert.Len(t, got.Items, 2)
}

func TestSet_TTLHasJitter(t *testing.T) {
	cache, mr := setupTestRedis(t)

	for i := 0; i < 20; i++ {
		require.NoError(t, cache.Set(context.Background(), "s3", sampleCart("s3")))
		ttl := mr.TTL(cacheKey("s3"))
		assert.GreaterOrEqual(t, ttl, 15*time.Minute)
		assert.Less(t, ttl, 20*time.Minute)
	}
}

func TestInvalidate(t *testing.T) {
	cache, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(cacheKey("s4"), "{}"))

	require.NoError(t, cache.Invalidate(context.Background(), "s4", 2))
	assert.False(t, mr.Exists(cacheKey("s4")))

	floor, err := mr.Get(floorKey("s4"))
	require.NoError(t, err)
	assert.Equal(t, "2", floor)
	assert.Equal(t, floorTTL, mr.TTL(floorKey("s4")))

	assert.NoError(t, cache.Invalidate(context.Background(), "nonexistent", 1))
}

func TestInvalidate_FloorNeverMovesBack(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Invalidate(context.Background(), "s5", 7))
	require.NoError(t, cache.Invalidate(context.Background(), "s5", 3))

	floor, err := mr.Get(floorKey("s5"))
	require.NoError(t, err)
	assert.Equal(t, "7", floor)
}

func TestSet_RefusesVersionOlderThanInvalidation(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	// read of version 3 finishes after version 4 was saved and invalidated
	require.NoError(t, cache.Invalidate(ctx, "s6", 4))

	err := cache.Set(ctx, "s6", sampleCart("s6"))
	assert.ErrorIs(t, err, ErrStaleEntry)
	assert.False(t, mr.Exists(cacheKey("s6")))

	fresh := sampleCart("s6")
	fresh.Version = 4
	require.NoError(t, cache.Set(ctx, "s6", fresh))

	got, err := cache.Get(ctx, "s6")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Version)
}

func TestSet_AcceptsOnceFloorExpires(t *testing.T) {
	cache, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, cache.Invalidate(ctx, "s7", 9))
	mr.FastForward(floorTTL + time.Second)

	assert.NoError(t, cache.Set(ctx, "s7", sampleCart("s7")))
	assert.True(t, mr.Exists(cacheKey("s7")))
}

func TestCacheKey_Format(t *testing.T) {
	assert.Equal(t, "tienda:cart:{abc}", cacheKey("abc"))
	assert.Equal(t, "tienda:cart:{abc}:floor", floorKey("abc"))
}
