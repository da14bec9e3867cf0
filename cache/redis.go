package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultTimeout is the default per-command timeout for the Redis backend.
const DefaultTimeout = 5 * time.Second

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Timeout is the per-command timeout (default 5s).
	Timeout time.Duration
}

// RedisStore is a Store backed by a Redis server. TryAcquire maps to SET NX,
// which Redis executes atomically, so leases acquired through this backend are
// race-free across processes.
type RedisStore struct {
	config RedisConfig
	client *goredis.Client
}

// NewRedisStore creates a Redis-backed store from the given config.
// Returns an error if the URL is empty or invalid.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis store requires a URL")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &RedisStore{
		config: cfg,
		client: goredis.NewClient(opts),
	}, nil
}

// Get reads the value at key into dest.
func (r *RedisStore) Get(ctx context.Context, key string, dest any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache: redis get %s: %w", key, err)
	}
	if err := decodeValue(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set writes value at key, overwriting unconditionally.
// A zero ttl stores the entry without expiry.
func (r *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set %s: %w", key, err)
	}
	return nil
}

// TryAcquire stores value at key iff no live entry exists, via SET NX PX.
func (r *RedisStore) TryAcquire(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, errors.New("cache: TryAcquire requires a positive ttl")
	}

	data, err := encodeValue(value)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	acquired, err := r.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache: redis setnx %s: %w", key, err)
	}
	return acquired, nil
}

// Delete removes the entry at key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache: redis del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Verify RedisStore implements the Store interface.
var _ Store = (*RedisStore)(nil)
