package publisher

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker guards a submission against concurrent publish attempts across
// processes. Within a single process the status CAS already serializes
// attempts; the lock covers multi-instance deployments.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, "publish_lock:"+key, "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, "publish_lock:"+key).Err()
}
