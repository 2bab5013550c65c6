package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryBackend is the required in-memory Backend binding, used in
// tests and local development. It stores payloads keyed by collection
// and point id and evaluates the filter DSL in-process.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]map[string]Point
}

// NewMemoryBackend returns an empty backend. No collections exist
// until EnsureCollection is called.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]map[string]Point)}
}

func (b *MemoryBackend) EnsureCollection(_ context.Context, name string, _ int, _ Distance) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[name]; !ok {
		b.collections[name] = make(map[string]Point)
	}
	return nil
}

func (b *MemoryBackend) Upsert(_ context.Context, collection string, points []Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	coll, ok := b.collections[collection]
	if !ok {
		return fmt.Errorf("storage: collection %q does not exist", collection)
	}
	for _, p := range points {
		coll[p.ID] = p
	}
	return nil
}

func (b *MemoryBackend) SetPayload(_ context.Context, collection string, ids []string, payload map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	coll, ok := b.collections[collection]
	if !ok {
		return fmt.Errorf("storage: collection %q does not exist", collection)
	}
	for _, id := range ids {
		p, ok := coll[id]
		if !ok {
			continue
		}
		merged := make(map[string]any, len(p.Payload)+len(payload))
		for k, v := range p.Payload {
			merged[k] = v
		}
		for k, v := range payload {
			merged[k] = v
		}
		p.Payload = merged
		coll[id] = p
	}
	return nil
}

func (b *MemoryBackend) Retrieve(_ context.Context, collection string, ids []string) ([]Point, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	coll, ok := b.collections[collection]
	if !ok {
		return nil, fmt.Errorf("storage: collection %q does not exist", collection)
	}
	out := make([]Point, 0, len(ids))
	for _, id := range ids {
		if p, ok := coll[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (b *MemoryBackend) Scroll(_ context.Context, collection string, params ScrollParams) ([]Point, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	coll, ok := b.collections[collection]
	if !ok {
		return nil, fmt.Errorf("storage: collection %q does not exist", collection)
	}

	matched := matchingPoints(coll, params.Filter)
	return paginate(matched, params.Offset, params.Limit), nil
}

func (b *MemoryBackend) Count(_ context.Context, collection string, params CountParams) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	coll, ok := b.collections[collection]
	if !ok {
		return 0, fmt.Errorf("storage: collection %q does not exist", collection)
	}
	return len(matchingPoints(coll, params.Filter)), nil
}

func (b *MemoryBackend) Delete(_ context.Context, collection string, params DeleteParams) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	coll, ok := b.collections[collection]
	if !ok {
		return fmt.Errorf("storage: collection %q does not exist", collection)
	}
	for _, id := range params.IDs {
		delete(coll, id)
	}
	if params.Filter != nil {
		for _, p := range matchingPoints(coll, params.Filter) {
			delete(coll, p.ID)
		}
	}
	return nil
}

func (b *MemoryBackend) CollectionExists(_ context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.collections[name]
	return ok, nil
}

func (b *MemoryBackend) GetCollections(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.collections))
	for name := range b.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func matchingPoints(coll map[string]Point, filter *Filter) []Point {
	out := make([]Point, 0, len(coll))
	for _, p := range coll {
		if matches(filter, p.ID, p.Payload) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func paginate(points []Point, offset, limit int) []Point {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(points) {
		return nil
	}
	end := len(points)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return points[offset:end]
}
