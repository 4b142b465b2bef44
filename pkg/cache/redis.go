package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a minimal string cache. The M-PESA client uses it to reuse
// short-lived gateway access tokens across requests.
type Cache interface {
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get returns "" with a nil error on a cache miss.
	Get(ctx context.Context, key string) (string, error)
}

type redisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects a cache backed by the Redis instance at addr.
// Keys are namespaced under prefix.
func NewRedisCache(addr, prefix string) Cache {
	return &redisCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

func (r *redisCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.namespaced(key), value, ttl).Err()
}

func (r *redisCache) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, r.namespaced(key)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (r *redisCache) namespaced(key string) string {
	return fmt.Sprintf("%s:%s", r.prefix, key)
}
