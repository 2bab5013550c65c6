package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apimgr/tasksched/src/model"
)

type fakeRegistry struct {
	mu      sync.Mutex
	updated []*model.Task
}

func (f *fakeRegistry) Update(_ context.Context, t *model.Task) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, t.Clone())
	return t, nil
}

type fakeLogger struct{}

func (fakeLogger) Info(string, map[string]any)  {}
func (fakeLogger) Warn(string, map[string]any)  {}
func (fakeLogger) Error(string, map[string]any) {}

func TestExecutorRunBatchSuccess(t *testing.T) {
	reg := &fakeRegistry{}
	exec := New(reg, fakeLogger{}, DefaultConfig())

	task := &model.Task{ID: "t1", Status: model.StatusPending, Handler: func(ctx context.Context) error { return nil }}
	results := exec.RunBatch(context.Background(), []*model.Task{task})

	if len(results) != 1 || !results[0].Successful {
		t.Fatalf("results = %+v, want successful", results)
	}
	if task.Status != model.StatusCompleted {
		t.Fatalf("Status = %v, want COMPLETED", task.Status)
	}
	if task.LastExecutedAt == nil {
		t.Fatal("expected LastExecutedAt to be set")
	}
}

func TestExecutorRunBatchFailure(t *testing.T) {
	reg := &fakeRegistry{}
	exec := New(reg, fakeLogger{}, DefaultConfig())

	task := &model.Task{ID: "t1", Status: model.StatusPending, Handler: func(ctx context.Context) error { return errors.New("boom") }}
	results := exec.RunBatch(context.Background(), []*model.Task{task})

	if len(results) != 1 || results[0].Successful {
		t.Fatalf("results = %+v, want unsuccessful", results)
	}
	if task.Status != model.StatusFailed {
		t.Fatalf("Status = %v, want FAILED", task.Status)
	}
	if task.LastError == "" {
		t.Fatal("expected LastError to be set")
	}
}

func TestExecutorIntervalTaskRearms(t *testing.T) {
	reg := &fakeRegistry{}
	exec := New(reg, fakeLogger{}, DefaultConfig())

	task := &model.Task{
		ID:           "t1",
		Status:       model.StatusPending,
		ScheduleType: model.ScheduleInterval,
		Interval:     &model.Interval{Expression: "1 hour"},
		Handler:      func(ctx context.Context) error { return nil },
	}
	exec.RunBatch(context.Background(), []*model.Task{task})

	if task.Status != model.StatusPending {
		t.Fatalf("Status = %v, want PENDING (re-armed)", task.Status)
	}
	if task.Interval.ExecutionCount != 1 {
		t.Fatalf("ExecutionCount = %d, want 1", task.Interval.ExecutionCount)
	}
	if task.ScheduledTime == nil || !task.ScheduledTime.After(time.Now()) {
		t.Fatal("expected ScheduledTime to be re-armed in the future")
	}
}

func TestExecutorConcurrencyCapDefersExcess(t *testing.T) {
	reg := &fakeRegistry{}
	cfg := Config{MaxConcurrentTasks: 2}
	exec := New(reg, fakeLogger{}, cfg)

	var inFlight, maxSeen int32
	release := make(chan struct{})
	tasks := make([]*model.Task, 5)
	for i := range tasks {
		tasks[i] = &model.Task{
			ID:     string(rune('a' + i)),
			Status: model.StatusPending,
			Handler: func(ctx context.Context) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					cur := atomic.LoadInt32(&maxSeen)
					if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
						break
					}
				}
				<-release
				atomic.AddInt32(&inFlight, -1)
				return nil
			},
		}
	}

	done := make(chan []Result, 1)
	go func() { done <- exec.RunBatch(context.Background(), tasks) }()

	time.Sleep(50 * time.Millisecond)
	close(release)
	results := <-done

	// Only the first MaxConcurrentTasks run; the rest wait for the next
	// tick untouched.
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (excess deferred)", len(results))
	}
	if atomic.LoadInt32(&maxSeen) > 2 {
		t.Fatalf("observed %d concurrent handlers, want <= 2", maxSeen)
	}
	for _, deferred := range tasks[2:] {
		if deferred.Status != model.StatusPending {
			t.Fatalf("deferred task %s has status %v, want PENDING", deferred.ID, deferred.Status)
		}
	}
}

func TestExecutorNoHandlerRunsNoop(t *testing.T) {
	reg := &fakeRegistry{}
	exec := New(reg, fakeLogger{}, DefaultConfig())

	task := &model.Task{ID: "t1", Status: model.StatusPending}
	results := exec.RunBatch(context.Background(), []*model.Task{task})

	if !results[0].Successful {
		t.Fatalf("results = %+v, want successful no-op", results)
	}
	if task.Status != model.StatusCompleted {
		t.Fatalf("Status = %v, want COMPLETED", task.Status)
	}
}

func TestExecutorHandlerTimeout(t *testing.T) {
	reg := &fakeRegistry{}
	exec := New(reg, fakeLogger{}, DefaultConfig())

	task := &model.Task{
		ID:      "t1",
		Status:  model.StatusPending,
		Timeout: 10 * time.Millisecond,
		Handler: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	results := exec.RunBatch(context.Background(), []*model.Task{task})

	if results[0].Successful {
		t.Fatal("expected timeout to fail the task")
	}
	var herr *model.HandlerError
	if !errors.As(results[0].Error, &herr) || !herr.Timeout {
		t.Fatalf("Error = %v, want HandlerError{Timeout: true}", results[0].Error)
	}
}
