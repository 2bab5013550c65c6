// Package registry implements durable CRUD over a storage.Backend, the
// filter model, ULID->UUID key encoding, and a process-local handler
// registry for re-binding live callables to tasks loaded after a
// restart. Registry is the base, uncached implementation; CachingRegistry
// decorates it with entity/query LRU layers, composition over
// inheritance.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/apimgr/tasksched/src/model"
	"github.com/apimgr/tasksched/src/storage"
)

const collectionName = "scheduler_tasks"

// nowFunc is overridable in tests.
var nowFunc = time.Now

// Registry is the uncached TaskRegistry binding.
type Registry struct {
	backend storage.Backend

	mu       sync.RWMutex
	handlers map[string]model.HandlerFunc
	// live holds the closures of tasks created in this process, keyed by
	// task ID. Handlers cannot round-trip through storage, so reads
	// re-attach them from here; tasks that outlive the process instead
	// resolve through handlers via their stable HandlerID.
	live map[string]model.HandlerFunc
}

// New returns a Registry over backend. Call Initialize before use.
func New(backend storage.Backend) *Registry {
	return &Registry{
		backend:  backend,
		handlers: make(map[string]model.HandlerFunc),
		live:     make(map[string]model.HandlerFunc),
	}
}

// Initialize ensures the backing collection exists. Idempotent.
func (r *Registry) Initialize(ctx context.Context) error {
	if err := r.backend.EnsureCollection(ctx, collectionName, 1536, storage.DistanceDot); err != nil {
		return &model.StorageError{Op: "initialize", Err: err}
	}
	return nil
}

// RegisterHandler binds a live callable to handlerId so tasks loaded
// after a restart without their original closure can be re-armed.
func (r *Registry) RegisterHandler(handlerID string, fn model.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handlerID] = fn
}

// rebindHandler attaches a live callable to a task just loaded from
// storage: the closure it was stored with in this process, else the
// callable registered under its HandlerID. A task with neither keeps a
// nil Handler; the executor runs a no-op for it and logs at warn.
func (r *Registry) rebindHandler(t *model.Task) {
	if t.Handler != nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.live[t.ID]; ok {
		t.Handler = fn
		return
	}
	if t.HandlerID != "" {
		t.Handler = r.handlers[t.HandlerID]
	}
}

var offsetPattern = regexp.MustCompile(`^(\d+)([smhd])$`)

// NormalizeScheduledTime normalises scheduledTime on store: "^\d+[smhd]$"
// is an offset from now;
// other strings are ISO-parsed, falling back to now+60s on failure.
// Callers accepting raw string scheduling input (e.g. the CLI) use this
// before constructing a Task; Task.ScheduledTime itself is always a
// concrete *time.Time.
func NormalizeScheduledTime(raw string, now time.Time) time.Time {
	if m := offsetPattern.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "s":
			return now.Add(time.Duration(n) * time.Second)
		case "m":
			return now.Add(time.Duration(n) * time.Minute)
		case "h":
			return now.Add(time.Duration(n) * time.Hour)
		case "d":
			return now.AddDate(0, 0, n)
		}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	return now.Add(60 * time.Second)
}

// Store validates, assigns a ULID if missing, stamps timestamps, and
// persists t.
func (r *Registry) Store(ctx context.Context, t *model.Task) (*model.Task, error) {
	now := nowFunc()
	if t.ID == "" {
		t.ID = model.NewTaskID()
	}
	if t.Priority == 0 {
		t.Priority = model.DefaultPriority
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	point := storage.Point{ID: pointID(t.ID), Payload: taskToPayload(t)}
	if err := r.backend.Upsert(ctx, collectionName, []storage.Point{point}); err != nil {
		return nil, &model.StorageError{Op: "store", Err: err}
	}
	r.trackLiveHandler(t)
	return t.Clone(), nil
}

// trackLiveHandler remembers the closure a task was persisted with, so
// subsequent reads can re-attach it.
func (r *Registry) trackLiveHandler(t *model.Task) {
	if t.Handler == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[t.ID] = t.Handler
}

func (r *Registry) forgetLiveHandler(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, id)
}

// GetByID fetches a single task by its ULID.
func (r *Registry) GetByID(ctx context.Context, id string) (*model.Task, error) {
	points, err := r.backend.Retrieve(ctx, collectionName, []string{pointID(id)})
	if err != nil {
		return nil, &model.StorageError{Op: "getById", Err: err}
	}
	if len(points) == 0 {
		return nil, model.ErrTaskNotFound
	}
	t, err := payloadToTask(id, points[0].Payload)
	if err != nil {
		return nil, err
	}
	r.rebindHandler(t)
	return t, nil
}

// Update requires an existing id, bumps updatedAt, and patches the
// payload fully (whole-record replace, matching Store).
func (r *Registry) Update(ctx context.Context, t *model.Task) (*model.Task, error) {
	if t.ID == "" {
		return nil, fmt.Errorf("%w: id is required for update", model.ErrInvalidTask)
	}
	existing, err := r.GetByID(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if existing.Status != t.Status && !model.CanTransition(existing.Status, t.Status, false) {
		// RUNNING -> PENDING is the interval re-arm after a successful
		// run; everything else off the DAG is rejected. Tombstoning a
		// COMPLETED task goes through CancelTask with override set.
		if !(existing.Status == model.StatusRunning && t.Status == model.StatusPending) {
			return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidStatusTransition, existing.Status, t.Status)
		}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.UpdatedAt = nowFunc()

	point := storage.Point{ID: pointID(t.ID), Payload: taskToPayload(t)}
	if err := r.backend.Upsert(ctx, collectionName, []storage.Point{point}); err != nil {
		return nil, &model.StorageError{Op: "update", Err: err}
	}
	r.trackLiveHandler(t)
	return t.Clone(), nil
}

// CancelTask transitions a task to CANCELLED. A PENDING task cancels
// directly; a COMPLETED task can only be tombstoned with override set.
func (r *Registry) CancelTask(ctx context.Context, id string, override bool) (*model.Task, error) {
	t, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !model.CanTransition(t.Status, model.StatusCancelled, override) {
		return nil, fmt.Errorf("%w: %s -> %s", model.ErrInvalidStatusTransition, t.Status, model.StatusCancelled)
	}
	t.Status = model.StatusCancelled
	t.UpdatedAt = nowFunc()

	point := storage.Point{ID: pointID(t.ID), Payload: taskToPayload(t)}
	if err := r.backend.Upsert(ctx, collectionName, []storage.Point{point}); err != nil {
		return nil, &model.StorageError{Op: "cancel", Err: err}
	}
	return t.Clone(), nil
}

// Delete removes a task, returning false if it did not exist.
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		if err == model.ErrTaskNotFound {
			return false, nil
		}
		return false, err
	}
	if err := r.backend.Delete(ctx, collectionName, storage.DeleteParams{IDs: []string{pointID(id)}}); err != nil {
		return false, &model.StorageError{Op: "delete", Err: err}
	}
	r.forgetLiveHandler(id)
	return true, nil
}

// Find runs f against the registry, applying the full filter and
// sort/pagination in-process over whatever the backend's pushdown
// filter narrowed down.
func (r *Registry) Find(ctx context.Context, f model.Filter) ([]*model.Task, error) {
	tasks, err := r.fetchCandidates(ctx, f)
	if err != nil {
		return nil, err
	}
	sortTasks(tasks, f)
	return paginateTasks(tasks, f.Offset, f.Limit), nil
}

// Count is Find without materialising pagination.
func (r *Registry) Count(ctx context.Context, f model.Filter) (int, error) {
	tasks, err := r.fetchCandidates(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(tasks), nil
}

func (r *Registry) fetchCandidates(ctx context.Context, f model.Filter) ([]*model.Task, error) {
	points, err := r.backend.Scroll(ctx, collectionName, storage.ScrollParams{
		Filter:      buildPushdownFilter(f),
		WithPayload: true,
	})
	if err != nil {
		return nil, &model.StorageError{Op: "find", Err: err}
	}

	tasks := make([]*model.Task, 0, len(points))
	for _, p := range points {
		t, err := payloadToTask(p.ID, p.Payload)
		if err != nil {
			continue // CacheDeserializationError: skipped; neither returned nor logged
		}
		if matchesFilter(t, f, nowFunc) {
			r.rebindHandler(t)
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// ClearAll deletes every task in the collection.
func (r *Registry) ClearAll(ctx context.Context) (bool, error) {
	if err := r.backend.Delete(ctx, collectionName, storage.DeleteParams{Filter: &storage.Filter{}}); err != nil {
		return false, &model.StorageError{Op: "clearAll", Err: err}
	}
	r.mu.Lock()
	r.live = make(map[string]model.HandlerFunc)
	r.mu.Unlock()
	return true, nil
}

// InvalidateCaches is a no-op on the base Registry; CachingRegistry
// overrides it.
func (r *Registry) InvalidateCaches() {}

// Prune deletes COMPLETED/FAILED/CANCELLED tasks whose updatedAt is
// older than cutoff. It is never called from the polling loop unless
// enableAutoPrune is set.
func (r *Registry) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := nowFunc().Add(-olderThan)
	tasks, err := r.fetchCandidates(ctx, model.Filter{
		Status: []model.Status{model.StatusCompleted, model.StatusFailed, model.StatusCancelled},
	})
	if err != nil {
		return 0, err
	}

	var ids, taskIDs []string
	for _, t := range tasks {
		if t.UpdatedAt.Before(cutoff) {
			ids = append(ids, pointID(t.ID))
			taskIDs = append(taskIDs, t.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := r.backend.Delete(ctx, collectionName, storage.DeleteParams{IDs: ids}); err != nil {
		return 0, &model.StorageError{Op: "prune", Err: err}
	}
	for _, id := range taskIDs {
		r.forgetLiveHandler(id)
	}
	return len(ids), nil
}
