package registry

import (
	"context"
	"time"

	"github.com/apimgr/tasksched/src/cache"
	"github.com/apimgr/tasksched/src/model"
)

const distTaskKeyPrefix = "task:"

// CachingRegistryConfig tunes the entity/query cache sizes and TTLs.
type CachingRegistryConfig struct {
	EntityCacheSize int
	EntityCacheTTL  time.Duration
	QueryCacheSize  int
	QueryCacheTTL   time.Duration
}

// DefaultCachingRegistryConfig defaults to entity 500/60s, query 50/30s.
func DefaultCachingRegistryConfig() CachingRegistryConfig {
	return CachingRegistryConfig{
		EntityCacheSize: 500,
		EntityCacheTTL:  60 * time.Second,
		QueryCacheSize:  50,
		QueryCacheTTL:   30 * time.Second,
	}
}

// CachingRegistry decorates a Registry with entity/query LRU layers. It
// embeds *Registry so callers needing the uncached path for a specific
// call can still reach it.
type CachingRegistry struct {
	*Registry
	entities  *cache.TypedLRU[*model.Task]
	queries   *cache.TypedLRU[[]*model.Task]
	entityTTL time.Duration

	// dist is an optional second-tier cache shared across instances, for
	// multi-process deployments. nil unless SetDistributedCache is called.
	dist cache.Cache
}

// NewCaching wraps base with fresh entity/query caches.
func NewCaching(base *Registry, cfg CachingRegistryConfig) *CachingRegistry {
	return &CachingRegistry{
		Registry:  base,
		entities:  cache.NewTypedLRU[*model.Task](cfg.EntityCacheSize, cfg.EntityCacheTTL),
		queries:   cache.NewTypedLRU[[]*model.Task](cfg.QueryCacheSize, cfg.QueryCacheTTL),
		entityTTL: cfg.EntityCacheTTL,
	}
}

// SetDistributedCache wires a shared second tier behind the in-process
// LRU: a GetByID miss there is checked here before falling through to
// the backend, and every write populates it. Pass nil to disable.
func (c *CachingRegistry) SetDistributedCache(d cache.Cache) {
	c.dist = d
}

func (c *CachingRegistry) distKey(id string) string {
	return distTaskKeyPrefix + id
}

func (c *CachingRegistry) writeThrough(ctx context.Context, t *model.Task) {
	if c.dist == nil {
		return
	}
	_ = cache.SetJSON(ctx, c.dist, c.distKey(t.ID), t, c.entityTTL)
}

func (c *CachingRegistry) evictDistributed(ctx context.Context, id string) {
	if c.dist == nil {
		return
	}
	_ = c.dist.Delete(ctx, c.distKey(id))
}

// Store persists through the base registry, then invalidates both
// caches: every mutation invalidates rather than trying to patch them.
func (c *CachingRegistry) Store(ctx context.Context, t *model.Task) (*model.Task, error) {
	stored, err := c.Registry.Store(ctx, t)
	if err != nil {
		return nil, err
	}
	c.InvalidateCaches()
	c.entities.Set(stored.ID, stored.Clone())
	c.writeThrough(ctx, stored)
	return stored, nil
}

// GetByID is cache-first: in-process LRU, then the distributed tier if
// one is configured, then the backend.
func (c *CachingRegistry) GetByID(ctx context.Context, id string) (*model.Task, error) {
	if t, ok := c.entities.Get(id); ok {
		return t.Clone(), nil
	}
	if c.dist != nil {
		var t model.Task
		if err := cache.GetJSON(ctx, c.dist, c.distKey(id), &t); err == nil {
			c.Registry.rebindHandler(&t)
			c.entities.Set(id, t.Clone())
			return t.Clone(), nil
		}
	}
	t, err := c.Registry.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.entities.Set(id, t.Clone())
	c.writeThrough(ctx, t)
	return t, nil
}

func (c *CachingRegistry) Update(ctx context.Context, t *model.Task) (*model.Task, error) {
	updated, err := c.Registry.Update(ctx, t)
	if err != nil {
		return nil, err
	}
	c.InvalidateCaches()
	c.entities.Set(updated.ID, updated.Clone())
	c.writeThrough(ctx, updated)
	return updated, nil
}

func (c *CachingRegistry) CancelTask(ctx context.Context, id string, override bool) (*model.Task, error) {
	cancelled, err := c.Registry.CancelTask(ctx, id, override)
	if err != nil {
		return nil, err
	}
	c.InvalidateCaches()
	c.entities.Set(cancelled.ID, cancelled.Clone())
	c.writeThrough(ctx, cancelled)
	return cancelled, nil
}

func (c *CachingRegistry) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := c.Registry.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	c.InvalidateCaches()
	c.evictDistributed(ctx, id)
	return deleted, nil
}

// Find consults the query cache for "hot" filters (per model.Filter.IsHot),
// otherwise bypasses it entirely.
func (c *CachingRegistry) Find(ctx context.Context, f model.Filter) ([]*model.Task, error) {
	if !f.IsHot() {
		return c.Registry.Find(ctx, f)
	}
	key := f.CacheKey()
	if cached, ok := c.queries.Get(key); ok {
		return cloneAll(cached), nil
	}
	tasks, err := c.Registry.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	c.queries.Set(key, cloneAll(tasks))
	return tasks, nil
}

func (c *CachingRegistry) ClearAll(ctx context.Context) (bool, error) {
	cleared, err := c.Registry.ClearAll(ctx)
	if err != nil {
		return false, err
	}
	c.InvalidateCaches()
	return cleared, nil
}

// InvalidateCaches clears both the entity and query caches, and the
// distributed tier if one is configured. The distributed clear is
// best-effort: InvalidateCaches has no caller-supplied context because
// every mutation path triggers it internally, so it times out on its
// own rather than blocking the mutation that caused it.
func (c *CachingRegistry) InvalidateCaches() {
	c.entities.Clear()
	c.queries.Clear()
	if c.dist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = c.dist.Clear(ctx, distTaskKeyPrefix)
	}
}

func cloneAll(tasks []*model.Task) []*model.Task {
	out := make([]*model.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
