package scheduler

import (
	"context"
	"time"

	"github.com/apimgr/tasksched/src/model"
)

// TaskStore is the subset of registry.Registry / registry.CachingRegistry
// the manager depends on. Declaring it here, rather than importing the
// concrete type everywhere, keeps scheduler tests free to substitute a
// fake.
type TaskStore interface {
	Initialize(ctx context.Context) error
	RegisterHandler(handlerID string, fn model.HandlerFunc)
	Store(ctx context.Context, t *model.Task) (*model.Task, error)
	GetByID(ctx context.Context, id string) (*model.Task, error)
	Update(ctx context.Context, t *model.Task) (*model.Task, error)
	CancelTask(ctx context.Context, id string, override bool) (*model.Task, error)
	Delete(ctx context.Context, id string) (bool, error)
	Find(ctx context.Context, f model.Filter) ([]*model.Task, error)
	Count(ctx context.Context, f model.Filter) (int, error)
	ClearAll(ctx context.Context) (bool, error)
	InvalidateCaches()
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// Logger is the structured logging collaborator.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}
