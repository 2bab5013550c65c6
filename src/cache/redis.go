package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Cache over a shared Redis instance, for
// deployments running more than one SchedulerManager process that want
// the registry's entity cache to survive process restarts and be
// visible across instances.
type RedisCache struct {
	client *redis.Client
	config *Config
}

// NewRedisCache dials cfg.Address and verifies connectivity.
func NewRedisCache(cfg *Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis cache: connect to %s: %w", cfg.Address, err)
	}

	return &RedisCache{client: client, config: cfg}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("key not found: %s", key)
		}
		return nil, fmt.Errorf("redis cache: get %s: %w", key, err)
	}
	return data, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.config.TTL
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache: set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis cache: delete %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis cache: exists %s: %w", key, err)
	}
	return n > 0, nil
}

// Clear deletes keys matching prefix+"*" via SCAN, avoiding a blocking
// KEYS call on a shared instance.
func (c *RedisCache) Clear(ctx context.Context, prefix string) error {
	pattern := prefix
	if pattern == "" {
		pattern = "*"
	} else if !strings.HasSuffix(pattern, "*") {
		pattern += "*"
	}

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis cache: scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis cache: clear %s: %w", pattern, err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Stats(ctx context.Context) (*Stats, error) {
	poolStats := c.client.PoolStats()
	connected := c.Ping(ctx) == nil
	dbSize, err := c.client.DBSize(ctx).Result()
	if err != nil {
		dbSize = 0
	}
	return &Stats{
		Hits:      int64(poolStats.Hits),
		Misses:    int64(poolStats.Misses),
		Keys:      dbSize,
		Connected: connected,
		Backend:   "redis",
	}, nil
}
