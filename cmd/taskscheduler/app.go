package main

import (
	"fmt"
	"time"

	"github.com/apimgr/tasksched/src/cache"
	"github.com/apimgr/tasksched/src/config"
	"github.com/apimgr/tasksched/src/logging"
	"github.com/apimgr/tasksched/src/registry"
	"github.com/apimgr/tasksched/src/scheduler"
	"github.com/apimgr/tasksched/src/storage"
)

// app bundles the manager and its collaborators for the lifetime of
// one CLI invocation.
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	manager *scheduler.Manager
}

func newApp() (*app, error) {
	cfg, _, err := config.LoadOrCreate(configPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if backend != "" {
		cfg.Storage.Backend = backend
	}

	logCfg := logging.DefaultConfig()
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	if logFile != "" {
		logCfg.File = logFile
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	store, err := buildBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}

	base := registry.New(store)
	reg := registry.NewCaching(base, registry.CachingRegistryConfig{
		EntityCacheSize: cfg.EntityCacheSize,
		EntityCacheTTL:  time.Duration(cfg.EntityCacheTtlMs) * time.Millisecond,
		QueryCacheSize:  cfg.QueryCacheSize,
		QueryCacheTTL:   time.Duration(cfg.QueryCacheTtlMs) * time.Millisecond,
	})
	if cfg.DistributedCache.Backend == "redis" {
		dist, err := cache.New(&cfg.DistributedCache)
		if err != nil {
			return nil, fmt.Errorf("connect distributed cache: %w", err)
		}
		reg.SetDistributedCache(dist)
	}

	manager := scheduler.New(reg, logger)
	return &app{cfg: cfg, logger: logger, manager: manager}, nil
}

func (a *app) schedulerConfig() scheduler.Config {
	return scheduler.Config{
		SchedulingInterval:        a.cfg.SchedulingInterval(),
		MaxConcurrentTasks:        a.cfg.MaxConcurrentTasks,
		DefaultHandlerTimeout:     time.Duration(a.cfg.DefaultHandlerTimeoutMs) * time.Millisecond,
		PriorityStrategyThreshold: a.cfg.PriorityStrategyThreshold,
		ShutdownGrace:             a.cfg.ShutdownGrace(),
		EnableAutoScheduling:      a.cfg.EnableAutoScheduling,
		EnableAutoPrune:           a.cfg.EnableAutoPrune,
		PruneRetention:            time.Duration(a.cfg.PruneRetentionHours) * time.Hour,
	}
}

func buildBackend(cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewMemoryBackend(), nil
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "scheduler.db"
		}
		return storage.NewSQLiteBackend(path)
	case "qdrant":
		return storage.NewQdrantBackend(cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantAPIKey, cfg.QdrantUseTLS)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
