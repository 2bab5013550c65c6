// Package config is the SchedulerManager configuration layer: a
// mutex-guarded, YAML-backed struct, loaded and reloaded the same way
// as a typical server config.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/apimgr/tasksched/src/cache"
)

// Config is the complete, reloadable SchedulerManager configuration.
type Config struct {
	mu         sync.RWMutex
	configPath string

	Enabled                   bool  `yaml:"enabled"`
	EnableAutoScheduling      bool  `yaml:"enable_auto_scheduling"`
	EnableAutoPrune           bool  `yaml:"enable_auto_prune"`
	SchedulingIntervalMs      int   `yaml:"scheduling_interval_ms"`
	MaxConcurrentTasks        int   `yaml:"max_concurrent_tasks"`
	DefaultPriority           int   `yaml:"default_priority"`
	PriorityStrategyThreshold int   `yaml:"priority_strategy_threshold"`
	ShutdownGraceMs           int   `yaml:"shutdown_grace_ms"`
	DefaultHandlerTimeoutMs   int   `yaml:"default_handler_timeout_ms"`
	PruneRetentionHours       int   `yaml:"prune_retention_hours"`

	EntityCacheSize  int `yaml:"entity_cache_size"`
	EntityCacheTtlMs int `yaml:"entity_cache_ttl_ms"`
	QueryCacheSize   int `yaml:"query_cache_size"`
	QueryCacheTtlMs  int `yaml:"query_cache_ttl_ms"`

	Storage StorageConfig `yaml:"storage"`

	// DistributedCache is optional: when Backend is "redis", the
	// registry's entity cache gets a second tier shared across
	// instances. Left at the "memory" default, no second tier is wired.
	DistributedCache cache.Config `yaml:"distributed_cache"`
}

// StorageConfig selects and configures a storage.Backend binding.
type StorageConfig struct {
	Backend string `yaml:"backend"` // "memory", "qdrant", or "sqlite"

	SQLitePath string `yaml:"sqlite_path"`

	QdrantHost   string `yaml:"qdrant_host"`
	QdrantPort   int    `yaml:"qdrant_port"`
	QdrantAPIKey string `yaml:"qdrant_api_key"`
	QdrantUseTLS bool   `yaml:"qdrant_use_tls"`
}

// DefaultConfig returns the baseline configuration: auto-scheduling and
// auto-prune disabled, a 5s polling interval, and an in-memory backend.
func DefaultConfig() *Config {
	return &Config{
		Enabled:                   true,
		EnableAutoScheduling:      false,
		EnableAutoPrune:           false,
		SchedulingIntervalMs:      5000,
		MaxConcurrentTasks:        5,
		DefaultPriority:           5,
		PriorityStrategyThreshold: 7,
		ShutdownGraceMs:           30000,
		PruneRetentionHours:       24 * 7,
		EntityCacheSize:           500,
		EntityCacheTtlMs:          60000,
		QueryCacheSize:            50,
		QueryCacheTtlMs:           30000,
		Storage: StorageConfig{
			Backend: "memory",
		},
		DistributedCache: *cache.DefaultConfig(),
	}
}

// SchedulingInterval returns SchedulingIntervalMs as a time.Duration.
func (c *Config) SchedulingInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.SchedulingIntervalMs) * time.Millisecond
}

// ShutdownGrace returns ShutdownGraceMs as a time.Duration.
func (c *Config) ShutdownGrace() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.ShutdownGraceMs) * time.Millisecond
}

// SetPath records the file this config was loaded from, for Reload.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configPath = path
}

// GetPath returns the file this config was loaded from.
func (c *Config) GetPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configPath
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.configPath = path
	return cfg, nil
}

// Save writes cfg to path as YAML.
func (c *Config) Save(path string) error {
	c.mu.RLock()
	data, err := yaml.Marshal(c)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir for %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadOrCreate loads path if it exists, otherwise writes and returns
// DefaultConfig(). The second return value reports whether a new file
// was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, err
	}
	cfg = DefaultConfig()
	cfg.configPath = path
	if err := cfg.Save(path); err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Reload re-reads the file this config was loaded from and swaps in
// every field under lock. There are no listen-address-like settings
// that would require a process restart to take effect, so every field
// here is safely reloadable.
func (c *Config) Reload() error {
	path := c.GetPath()
	if path == "" {
		return fmt.Errorf("config: path not set, cannot reload")
	}
	fresh, err := Load(path)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.Enabled = fresh.Enabled
	c.EnableAutoScheduling = fresh.EnableAutoScheduling
	c.EnableAutoPrune = fresh.EnableAutoPrune
	c.SchedulingIntervalMs = fresh.SchedulingIntervalMs
	c.MaxConcurrentTasks = fresh.MaxConcurrentTasks
	c.DefaultPriority = fresh.DefaultPriority
	c.PriorityStrategyThreshold = fresh.PriorityStrategyThreshold
	c.ShutdownGraceMs = fresh.ShutdownGraceMs
	c.DefaultHandlerTimeoutMs = fresh.DefaultHandlerTimeoutMs
	c.PruneRetentionHours = fresh.PruneRetentionHours
	c.EntityCacheSize = fresh.EntityCacheSize
	c.EntityCacheTtlMs = fresh.EntityCacheTtlMs
	c.QueryCacheSize = fresh.QueryCacheSize
	c.QueryCacheTtlMs = fresh.QueryCacheTtlMs
	c.Storage = fresh.Storage
	c.DistributedCache = fresh.DistributedCache
	return nil
}
