package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mlb:cache"

// RedisBackend stores entries as strings with a server-side expiry equal to
// the kind's TTL. The Store still checks fetched_at itself.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend wraps an existing client
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func redisKey(kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", redisKeyPrefix, kind, key)
}

func (b *RedisBackend) Read(ctx context.Context, kind, key string) (*Entry, error) {
	data, err := b.client.Get(ctx, redisKey(kind, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return decodeEntry(data)
}

func (b *RedisBackend) Write(ctx context.Context, e *Entry, ttl time.Duration) error {
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}
	// SET replaces the value atomically
	return b.client.Set(ctx, redisKey(e.Kind, e.Key), data, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, kind, key string) error {
	n, err := b.client.Del(ctx, redisKey(kind, key)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if n == 0 {
		return ErrNotExist
	}
	return nil
}

func (b *RedisBackend) DeleteKind(ctx context.Context, kind string) error {
	iter := b.client.Scan(ctx, 0, redisKey(kind, "*"), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return b.client.Del(ctx, keys...).Err()
}

// Ping checks connectivity
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
