// Package executor implements bounded-concurrency execution of a
// due-task batch, following a five-step per-task protocol and a
// never-lose-a-state-transition write-back guarantee.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/apimgr/tasksched/src/datetime"
	"github.com/apimgr/tasksched/src/model"
)

// Registry is the subset of the registry collaborator the executor
// needs: persisting status transitions as they happen.
type Registry interface {
	Update(ctx context.Context, t *model.Task) (*model.Task, error)
}

// Logger is the structured logging collaborator.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Config tunes the executor.
type Config struct {
	MaxConcurrentTasks    int
	DefaultHandlerTimeout time.Duration // zero means unset/infinite
}

// DefaultConfig caps concurrency at 5 with no handler timeout.
func DefaultConfig() Config {
	return Config{MaxConcurrentTasks: 5}
}

// Result is the per-task outcome of a batch run.
type Result struct {
	TaskID     string
	Successful bool
	Error      error
	DurationMs int64
}

// Executor runs batches of due tasks with a hard concurrency cap.
type Executor struct {
	registry Registry
	logger   Logger
	config   Config
	sem      *semaphore.Weighted
}

// New builds an Executor over the given registry and logger. A task
// arriving with a nil Handler runs a no-op and logs a warning.
func New(registry Registry, logger Logger, cfg Config) *Executor {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = DefaultConfig().MaxConcurrentTasks
	}
	return &Executor{
		registry: registry,
		logger:   logger,
		config:   cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
	}
}

// RunBatch executes at most maxConcurrentTasks of due concurrently and
// returns one Result per started task. Tasks beyond the cap are not
// started: they stay PENDING and are picked up again by the next tick
// with the same ordering keys. ctx cancellation propagates into every
// in-flight handler.
func (e *Executor) RunBatch(ctx context.Context, due []*model.Task) []Result {
	if len(due) > e.config.MaxConcurrentTasks {
		e.logger.Info("deferring excess due tasks to the next tick", map[string]any{
			"due":      len(due),
			"cap":      e.config.MaxConcurrentTasks,
			"deferred": len(due) - e.config.MaxConcurrentTasks,
		})
		due = due[:e.config.MaxConcurrentTasks]
	}

	results := make([]Result, len(due))
	var wg sync.WaitGroup

	for i, task := range due {
		i, task := i, task
		if err := e.sem.Acquire(ctx, 1); err != nil {
			results[i] = Result{TaskID: task.ID, Successful: false, Error: err}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.sem.Release(1)
			results[i] = e.runOne(ctx, task)
		}()
	}
	wg.Wait()
	return results
}

func (e *Executor) runOne(ctx context.Context, task *model.Task) Result {
	start := time.Now()

	task.Status = model.StatusRunning
	task.UpdatedAt = start
	if err := e.writeBackWithRetry(ctx, task); err != nil {
		e.logger.Error("failed to persist RUNNING transition", map[string]any{"taskId": task.ID, "error": err.Error()})
	}

	handlerCtx, cancel := e.contextForTask(ctx, task)
	defer cancel()

	handler := task.Handler
	if handler == nil {
		e.logger.Warn("task has no bound handler, running no-op", map[string]any{"taskId": task.ID, "handlerId": task.HandlerID})
		handler = noopHandler
	}

	err := runHandler(handlerCtx, handler)
	durationMs := time.Since(start).Milliseconds()

	now := time.Now()
	task.UpdatedAt = now
	if err != nil {
		task.Status = model.StatusFailed
		task.LastError = err.Error()
		task.FailCount++
		if writeErr := e.writeBackWithRetry(ctx, task); writeErr != nil {
			e.logger.Error("failed to persist FAILED transition", map[string]any{"taskId": task.ID, "error": writeErr.Error()})
		}
		timeout := handlerCtx.Err() == context.DeadlineExceeded
		return Result{TaskID: task.ID, Successful: false, Error: &model.HandlerError{TaskID: task.ID, Timeout: timeout, Err: err}, DurationMs: durationMs}
	}

	task.LastExecutedAt = &now
	task.RunCount++
	if task.ScheduleType == model.ScheduleInterval && task.Interval != nil {
		next, rearmErr := e.nextIntervalFire(now, task.Interval)
		if rearmErr == nil {
			task.Status = model.StatusPending
			task.ScheduledTime = &next
			task.Interval.ExecutionCount++
		} else {
			e.logger.Error("failed to compute next interval fire, leaving task COMPLETED", map[string]any{"taskId": task.ID, "error": rearmErr.Error()})
			task.Status = model.StatusCompleted
		}
	} else {
		task.Status = model.StatusCompleted
	}

	if writeErr := e.writeBackWithRetry(ctx, task); writeErr != nil {
		e.logger.Error("failed to persist completion transition", map[string]any{"taskId": task.ID, "error": writeErr.Error()})
		task.Status = model.StatusFailed
	}

	return Result{TaskID: task.ID, Successful: true, DurationMs: durationMs}
}

// contextForTask resolves the handler timeout: Task.Timeout overrides
// Config.DefaultHandlerTimeout, which overrides unset/infinite.
func (e *Executor) contextForTask(parent context.Context, task *model.Task) (context.Context, context.CancelFunc) {
	timeout := e.config.DefaultHandlerTimeout
	if task.Timeout > 0 {
		timeout = task.Timeout
	}
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

func (e *Executor) nextIntervalFire(now time.Time, interval *model.Interval) (time.Time, error) {
	if next, ok := datetime.GetNextExecutionFromCron(interval.Expression, now); ok {
		return next, nil
	}
	return datetime.CalculateInterval(now, interval.Expression)
}

// writeBackWithRetry persists a status transition, retrying once on
// failure per the "never lose a state transition" guarantee.
func (e *Executor) writeBackWithRetry(ctx context.Context, task *model.Task) error {
	_, err := e.registry.Update(ctx, task)
	if err == nil {
		return nil
	}
	_, err = e.registry.Update(ctx, task)
	return err
}

func runHandler(ctx context.Context, handler model.HandlerFunc) error {
	done := make(chan error, 1)
	go func() {
		done <- handler(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("handler cancelled: %w", ctx.Err())
	}
}

func noopHandler(_ context.Context) error { return nil }
