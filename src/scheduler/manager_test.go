package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apimgr/tasksched/src/model"
)

// fakeStore is a minimal in-memory TaskStore for exercising the
// manager's lifecycle and execution paths without the registry's
// caching/storage machinery.
type fakeStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: make(map[string]*model.Task)}
}

func (f *fakeStore) Initialize(ctx context.Context) error { return nil }

func (f *fakeStore) RegisterHandler(handlerID string, fn model.HandlerFunc) {}

func (f *fakeStore) Store(ctx context.Context, t *model.Task) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.ID == "" {
		t.ID = model.NewTaskID()
	}
	if t.Status == "" {
		t.Status = model.StatusPending
	}
	f.tasks[t.ID] = t.Clone()
	return t.Clone(), nil
}

func (f *fakeStore) GetByID(ctx context.Context, id string) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, model.ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (f *fakeStore) Update(ctx context.Context, t *model.Task) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[t.ID]; !ok {
		return nil, model.ErrTaskNotFound
	}
	f.tasks[t.ID] = t.Clone()
	return t.Clone(), nil
}

func (f *fakeStore) CancelTask(ctx context.Context, id string, override bool) (*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, model.ErrTaskNotFound
	}
	if !model.CanTransition(t.Status, model.StatusCancelled, override) {
		return nil, model.ErrInvalidStatusTransition
	}
	t.Status = model.StatusCancelled
	return t.Clone(), nil
}

func (f *fakeStore) Delete(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[id]; !ok {
		return false, nil
	}
	delete(f.tasks, id)
	return true, nil
}

func (f *fakeStore) Find(ctx context.Context, filter model.Filter) ([]*model.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Task
	for _, t := range f.tasks {
		if matchesStatus(t, filter) && matchesAgent(t, filter) {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func matchesStatus(t *model.Task, filter model.Filter) bool {
	if len(filter.Status) == 0 {
		return true
	}
	for _, s := range filter.Status {
		if t.Status == s {
			return true
		}
	}
	return false
}

func matchesAgent(t *model.Task, filter model.Filter) bool {
	want, ok := filter.Metadata["agentId.id"]
	if !ok {
		return true
	}
	agent, has := t.AgentID()
	return has && agent.ID == want
}

func (f *fakeStore) Count(ctx context.Context, filter model.Filter) (int, error) {
	tasks, _ := f.Find(ctx, filter)
	return len(tasks), nil
}

func (f *fakeStore) ClearAll(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	had := len(f.tasks) > 0
	f.tasks = make(map[string]*model.Task)
	return had, nil
}

func (f *fakeStore) InvalidateCaches() {}

func (f *fakeStore) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

type fakeLogger struct{}

func (fakeLogger) Info(string, map[string]any)  {}
func (fakeLogger) Warn(string, map[string]any)  {}
func (fakeLogger) Error(string, map[string]any) {}
func (fakeLogger) Debug(string, map[string]any) {}

func testConfig() Config {
	return Config{
		SchedulingInterval:        20 * time.Millisecond,
		MaxConcurrentTasks:        5,
		DefaultHandlerTimeout:     time.Second,
		PriorityStrategyThreshold: 7,
		ShutdownGrace:             time.Second,
	}
}

func TestLifecycleRequiresInitialize(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if _, err := m.CreateTask(context.Background(), &model.Task{Name: "x"}); err != model.ErrSchedulerNotInitialized {
		t.Fatalf("err = %v, want ErrSchedulerNotInitialized", err)
	}
}

func TestCreateGetDeleteTask(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	created, err := m.CreateTask(context.Background(), &model.Task{Name: "a", ScheduleType: model.ScheduleExplicit})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}

	got, err := m.GetTask(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Name != "a" {
		t.Fatalf("Name = %q, want a", got.Name)
	}

	ok, err := m.DeleteTask(context.Background(), created.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteTask: ok=%v err=%v", ok, err)
	}
}

func TestCreateTaskForAgentAndFindTasksForAgent(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	_, err := m.CreateTaskForAgent(context.Background(), &model.Task{Name: "for-agent", ScheduleType: model.ScheduleExplicit}, "agent-7")
	if err != nil {
		t.Fatalf("CreateTaskForAgent: %v", err)
	}
	_, err = m.CreateTask(context.Background(), &model.Task{Name: "no-agent", ScheduleType: model.ScheduleExplicit})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	found, err := m.FindTasksForAgent(context.Background(), "agent-7", model.Filter{})
	if err != nil {
		t.Fatalf("FindTasksForAgent: %v", err)
	}
	if len(found) != 1 || found[0].Name != "for-agent" {
		t.Fatalf("found = %+v, want exactly the agent-scoped task", found)
	}
}

func TestExecuteDueTasksRunsExplicitPastDueTask(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ran := false
	past := time.Now().Add(-time.Minute)
	task := &model.Task{
		Name:          "due",
		ScheduleType:  model.ScheduleExplicit,
		ScheduledTime: &past,
		Handler:       func(ctx context.Context) error { ran = true; return nil },
	}
	if _, err := m.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	results, err := m.ExecuteDueTasks(context.Background())
	if err != nil {
		t.Fatalf("ExecuteDueTasks: %v", err)
	}
	if len(results) != 1 || !results[0].Successful {
		t.Fatalf("results = %+v, want one successful result", results)
	}
	if !ran {
		t.Fatal("handler did not run")
	}
}

func TestExecuteDueTasksSkipsFutureTask(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	future := time.Now().Add(time.Minute)
	created, err := m.CreateTask(context.Background(), &model.Task{
		Name:          "not yet",
		ScheduleType:  model.ScheduleExplicit,
		ScheduledTime: &future,
		Handler:       func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	results, err := m.ExecuteDueTasks(context.Background())
	if err != nil {
		t.Fatalf("ExecuteDueTasks: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %+v, want none", results)
	}
	got, err := m.GetTask(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("Status = %v, want PENDING", got.Status)
	}
}

func TestExecuteDueTasksPriorityOrderingMixedDueState(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	cfg := testConfig()
	cfg.MaxConcurrentTasks = 1 // serialise so start order is observable
	if err := m.Initialize(context.Background(), cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var mu sync.Mutex
	var order []string
	record := func(name string) model.HandlerFunc {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)
	for _, tc := range []struct {
		name     string
		priority int
		when     *time.Time
	}{
		{"low-past", 2, &past},
		{"high-future", 9, &future},
		{"medium-past", 5, &past},
	} {
		if _, err := m.CreateTask(context.Background(), &model.Task{
			Name:          tc.name,
			Priority:      tc.priority,
			ScheduleType:  model.ScheduleExplicit,
			ScheduledTime: tc.when,
			Handler:       record(tc.name),
		}); err != nil {
			t.Fatalf("CreateTask %s: %v", tc.name, err)
		}
	}

	// With the cap at 1, the first pass runs only the highest-ranked due
	// task and defers the other past-due task to the next pass; the
	// future task is never selected.
	first, err := m.ExecuteDueTasks(context.Background())
	if err != nil {
		t.Fatalf("ExecuteDueTasks: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first pass ran %d tasks, want 1 (excess deferred)", len(first))
	}
	second, err := m.ExecuteDueTasks(context.Background())
	if err != nil {
		t.Fatalf("ExecuteDueTasks (second pass): %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second pass ran %d tasks, want 1", len(second))
	}
	third, err := m.ExecuteDueTasks(context.Background())
	if err != nil {
		t.Fatalf("ExecuteDueTasks (third pass): %v", err)
	}
	if len(third) != 0 {
		t.Fatalf("third pass ran %d tasks, want 0", len(third))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "medium-past" || order[1] != "low-past" {
		t.Fatalf("execution order = %v, want [medium-past low-past]", order)
	}
}

func TestExecuteDueTasksIntervalRearm(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	past := time.Now().Add(-time.Second)
	created, err := m.CreateTask(context.Background(), &model.Task{
		Name:          "hourly",
		ScheduleType:  model.ScheduleInterval,
		ScheduledTime: &past,
		Interval:      &model.Interval{Expression: "1 hour"},
		Handler:       func(ctx context.Context) error { return nil },
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := m.ExecuteDueTasks(context.Background()); err != nil {
		t.Fatalf("ExecuteDueTasks: %v", err)
	}

	got, err := m.GetTask(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Fatalf("Status = %v, want PENDING (re-armed)", got.Status)
	}
	if got.Interval.ExecutionCount != 1 {
		t.Fatalf("ExecutionCount = %d, want 1", got.Interval.ExecutionCount)
	}
	if got.ScheduledTime == nil || !got.ScheduledTime.After(time.Now().Add(50*time.Minute)) {
		t.Fatalf("ScheduledTime = %v, want roughly an hour out", got.ScheduledTime)
	}
}

func TestExecuteTaskNowBypassesDueCheck(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	future := time.Now().Add(time.Hour)
	ran := false
	task := &model.Task{
		Name:          "future",
		ScheduleType:  model.ScheduleExplicit,
		ScheduledTime: &future,
		Handler:       func(ctx context.Context) error { ran = true; return nil },
	}
	created, err := m.CreateTask(context.Background(), task)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	result, err := m.ExecuteTaskNow(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("ExecuteTaskNow: %v", err)
	}
	if !result.Successful || !ran {
		t.Fatalf("result = %+v, ran=%v", result, ran)
	}
}

func TestStartStopSchedulerIdempotent(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if err := m.StartScheduler(); err != nil {
		t.Fatalf("StartScheduler: %v", err)
	}
	if err := m.StartScheduler(); err != nil {
		t.Fatalf("second StartScheduler: %v", err)
	}
	if !m.IsSchedulerRunning() {
		t.Fatal("expected running")
	}

	if err := m.StopScheduler(); err != nil {
		t.Fatalf("StopScheduler: %v", err)
	}
	if m.IsSchedulerRunning() {
		t.Fatal("expected stopped")
	}
	if err := m.StopScheduler(); err != nil {
		t.Fatalf("second StopScheduler: %v", err)
	}
}

func TestPollLoopExecutesDueTasks(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	cfg := testConfig()
	if err := m.Initialize(context.Background(), cfg); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	var mu sync.Mutex
	ran := 0
	past := time.Now().Add(-time.Minute)
	task := &model.Task{
		Name:          "polled",
		ScheduleType:  model.ScheduleExplicit,
		ScheduledTime: &past,
		Handler: func(ctx context.Context) error {
			mu.Lock()
			ran++
			mu.Unlock()
			return nil
		},
	}
	if _, err := m.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if err := m.StartScheduler(); err != nil {
		t.Fatalf("StartScheduler: %v", err)
	}
	defer m.StopScheduler()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := ran > 0
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if ran == 0 {
		t.Fatal("expected the polling loop to execute the due task at least once")
	}
}

func TestResetReturnsToInitialized(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := m.CreateTask(context.Background(), &model.Task{Name: "a", ScheduleType: model.ScheduleExplicit}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := m.StartScheduler(); err != nil {
		t.Fatalf("StartScheduler: %v", err)
	}

	if err := m.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if m.State() != StateInitialized {
		t.Fatalf("state = %v, want INITIALIZED", m.State())
	}
	tasks, err := m.FindTasks(context.Background(), model.Filter{})
	if err != nil {
		t.Fatalf("FindTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Fatalf("expected empty registry after reset, got %d tasks", len(tasks))
	}
}

func TestDisposeRejectsFurtherOperations(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if _, err := m.CreateTask(context.Background(), &model.Task{Name: "x"}); err != model.ErrSchedulerDisposed {
		t.Fatalf("err = %v, want ErrSchedulerDisposed", err)
	}
}

func TestResetRevivesDisposedManager(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}

	if err := m.Reset(context.Background()); err != nil {
		t.Fatalf("Reset from DISPOSED: %v", err)
	}
	if m.State() != StateInitialized {
		t.Fatalf("state = %v, want INITIALIZED", m.State())
	}
	if _, err := m.CreateTask(context.Background(), &model.Task{Name: "x", ScheduleType: model.ScheduleExplicit}); err != nil {
		t.Fatalf("CreateTask after reset: %v", err)
	}
}

func TestDisposeWhileRunningFails(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if err := m.StartScheduler(); err != nil {
		t.Fatalf("StartScheduler: %v", err)
	}
	defer m.StopScheduler()

	if err := m.Dispose(); err == nil {
		t.Fatal("expected Dispose to reject while RUNNING")
	}
}

func TestGetMetricsReflectsTaskCounts(t *testing.T) {
	m := New(newFakeStore(), fakeLogger{})
	if err := m.Initialize(context.Background(), testConfig()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := m.CreateTask(context.Background(), &model.Task{Name: "a", ScheduleType: model.ScheduleExplicit}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	metrics, err := m.GetMetrics(context.Background())
	if err != nil {
		t.Fatalf("GetMetrics: %v", err)
	}
	if metrics.TaskStatusCounts[model.StatusPending] != 1 {
		t.Fatalf("pending count = %d, want 1", metrics.TaskStatusCounts[model.StatusPending])
	}
	if metrics.IsRunning {
		t.Fatal("expected not running")
	}
}
