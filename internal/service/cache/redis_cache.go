package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a BytesCache on a shared redis client, so cached API
// responses survive restarts and are visible to every instance.
type RedisCache struct {
	cli    *redis.Client
	prefix string
}

var _ BytesCache = (*RedisCache)(nil)

// NewRedisCache wraps an existing client. prefix namespaces the keys
// away from the queue and document caches on the same DB.
func NewRedisCache(cli *redis.Client, prefix string) *RedisCache {
	return &RedisCache{cli: cli, prefix: prefix}
}

func (r *RedisCache) GetBytes(key string) ([]byte, bool, error) {
	b, err := r.cli.Get(context.Background(), r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	return r.cli.Set(context.Background(), r.prefix+key, value, ttl).Err()
}
