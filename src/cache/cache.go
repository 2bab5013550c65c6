package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is the interface for distributed/byte-oriented cache
// implementations, separate from the in-process TypedLRU the registry
// uses directly. It exists for deployments that want the scheduler's
// task entities shared across instances: CachingRegistry uses it as a
// second tier for entities only, not for query results.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, prefix string) error
	Close() error
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (*Stats, error)
}

// Stats summarizes cache backend health.
type Stats struct {
	Hits      int64  `json:"hits"`
	Misses    int64  `json:"misses"`
	Keys      int64  `json:"keys"`
	Connected bool   `json:"connected"`
	Backend   string `json:"backend"`
}

// Config selects and tunes a Cache backend.
type Config struct {
	Backend  string        `yaml:"backend"` // "memory" or "redis"
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
	MaxSize  int           `yaml:"max_size"`
}

// DefaultConfig returns the in-process default.
func DefaultConfig() *Config {
	return &Config{
		Backend: "memory",
		Address: "localhost:6379",
		TTL:     5 * time.Minute,
		MaxSize: 10000,
	}
}

// New builds a Cache from cfg, defaulting to an in-process memory cache.
func New(cfg *Config) (Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	switch cfg.Backend {
	case "redis":
		return NewRedisCache(cfg)
	default:
		return NewMemoryCache(cfg.MaxSize, cfg.TTL), nil
	}
}

// GetJSON retrieves and unmarshals a JSON value.
func GetJSON(ctx context.Context, c Cache, key string, v any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// SetJSON marshals and stores a JSON value.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
