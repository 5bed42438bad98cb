package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisScanCount = 100

// RedisBackend stores keys as "<prefix>:<key>" strings in Redis.
type RedisBackend struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Backend = (*RedisBackend)(nil)

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithTTL expires keys ttl after their last write. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

// ConnectRedis opens a client and verifies the connection.
func ConnectRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: redis %s: %v", ErrBackendUnavailable, addr, err)
	}
	return rdb, nil
}

// NewRedisBackend creates a backend scoped to prefix.
func NewRedisBackend(client *redis.Client, prefix string, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{client: client, prefix: prefix}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBackend) key(k string) string { return b.prefix + ":" + k }

// Get implements Backend.
func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set implements Backend. SET ... GET returns the previous value atomically.
func (b *RedisBackend) Set(ctx context.Context, key, value string) (string, bool, error) {
	args := redis.SetArgs{Get: true}
	if b.ttl > 0 {
		args.TTL = b.ttl
	}
	old, err := b.client.SetArgs(ctx, b.key(key), value, args).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return old, true, nil
}

// Remove implements Backend.
func (b *RedisBackend) Remove(ctx context.Context, key string) (string, bool, error) {
	old, err := b.client.GetDel(ctx, b.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return old, true, nil
}

// Clear implements Backend by scanning the prefix.
func (b *RedisBackend) Clear(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := b.client.Scan(ctx, cursor, b.prefix+":*", redisScanCount).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := b.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// Kind implements Backend.
func (b *RedisBackend) Kind() string { return "redis" }
