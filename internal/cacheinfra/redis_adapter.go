package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/goliatone/go-entity-cache/cache"
)

// RedisBackend is the shared cache.Backend over a Redis instance. Values
// cross the wire as msgpack frames: Write accepts either pre-encoded bytes
// or any msgpack-encodable value, and Read always hands back raw bytes for
// the caller's codec to decode.
type RedisBackend struct {
	client   *redis.Client
	writeTTL time.Duration
}

var _ cache.Backend = (*RedisBackend)(nil)

// NewRedisBackend validates cfg, connects and pings the Redis instance.
func NewRedisBackend(ctx context.Context, cfg cache.RedisConfig) (*RedisBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBackend{client: client, writeTTL: cfg.TTL}, nil
}

// NewRedisBackendWithClient wraps an already-configured client. The caller
// keeps ownership of the client's lifecycle.
func NewRedisBackendWithClient(client *redis.Client, cfg cache.RedisConfig) *RedisBackend {
	return &RedisBackend{client: client, writeTTL: cfg.TTL}
}

// Read returns the raw bytes stored under key.
func (b *RedisBackend) Read(ctx context.Context, key string) (any, bool, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// ReadMulti issues a single MGET and returns the present subset as raw
// bytes. Partial presence is normal, not an error.
func (b *RedisBackend) ReadMulti(ctx context.Context, keys []string) (map[string]any, error) {
	if len(keys) == 0 {
		return map[string]any{}, nil
	}

	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	result := make(map[string]any, len(keys))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("redis mget: unexpected value type %T for key %s", v, keys[i])
		}
		result[keys[i]] = []byte(s)
	}
	return result, nil
}

// Write stores value under key with the configured TTL. Byte slices are
// stored as-is; anything else is msgpack-encoded first.
func (b *RedisBackend) Write(ctx context.Context, key string, value any) error {
	data, ok := value.([]byte)
	if !ok {
		var err error
		data, err = msgpack.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal cache value: %w", err)
		}
	}

	if err := b.client.Set(ctx, key, data, b.writeTTL).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key. Redis treats deleting an absent key as a no-op.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear flushes the configured database. Destructive; test and reset paths
// only.
func (b *RedisBackend) Clear(ctx context.Context) error {
	if err := b.client.FlushDB(ctx).Err(); err != nil {
		return fmt.Errorf("redis flushdb: %w", err)
	}
	return nil
}

// Close releases the underlying client when this backend owns it.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
