package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/donpico/tienda/cart-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "tienda:cart:"

// floorTTL bounds how long an invalidated version is remembered. It must
// outlive any read-through fill that started before the invalidation.
const floorTTL = time.Minute

// KEYS[1] entry, KEYS[2] floor. ARGV[1] payload, ARGV[2] version, ARGV[3] ttl ms.
var setScript = redis.NewScript(`
local floor = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[2]) < floor then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

// KEYS[1] entry, KEYS[2] floor. ARGV[1] version, ARGV[2] floor ttl ms.
var invalidateScript = redis.NewScript(`
local floor = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[1]) > floor then
	redis.call('SET', KEYS[2], ARGV[1], 'PX', ARGV[2])
end
redis.call('DEL', KEYS[1])
return 1
`)

type RedisCache struct {
	client    redis.UniversalClient
	baseTTL   time.Duration
	maxJitter time.Duration
}

// NewRedisCache expires entries after baseTTL plus up to baseTTL/3 of
// jitter so carts cached together do not expire together.
func NewRedisCache(client redis.UniversalClient, baseTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:    client,
		baseTTL:   baseTTL,
		maxJitter: baseTTL / 3,
	}
}

func (r *RedisCache) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

func (r *RedisCache) Set(ctx context.Context, sessionID string, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	keys := []string{cacheKey(sessionID), floorKey(sessionID)}
	stored, err := setScript.Run(ctx, r.client, keys, data, cart.Version, r.ttl().Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return fmt.Errorf("%w: session %s version %d", ErrStaleEntry, sessionID, cart.Version)
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, sessionID string, version int64) error {
	keys := []string{cacheKey(sessionID), floorKey(sessionID)}
	if err := invalidateScript.Run(ctx, r.client, keys, version, floorTTL.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func (r *RedisCache) ttl() time.Duration {
	if r.maxJitter <= 0 {
		return r.baseTTL
	}
	return r.baseTTL + rand.N(r.maxJitter)
}

// Both keys of a session share a hash tag so the scripts stay on one
// cluster slot.
func cacheKey(sessionID string) string {
	return keyPrefix + "{" + sessionID + "}"
}

func floorKey(sessionID string) string {
	return cacheKey(sessionID) + ":floor"
}
