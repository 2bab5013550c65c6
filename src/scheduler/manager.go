// Package scheduler is the single public entry point composing a task
// store, a scheduling strategy, and an executor behind a lifecycle
// state machine and a serial polling loop.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/apimgr/tasksched/src/executor"
	"github.com/apimgr/tasksched/src/model"
	"github.com/apimgr/tasksched/src/strategy"
)

// State is a node in the SchedulerManager lifecycle state machine:
// UNINITIALIZED -> INITIALIZED -> RUNNING -> STOPPED -> (RUNNING|DISPOSED).
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateInitialized   State = "INITIALIZED"
	StateRunning       State = "RUNNING"
	StateStopped       State = "STOPPED"
	StateDisposed      State = "DISPOSED"
)

// Config carries the manager's tunables: polling interval, executor
// limits, priority strategy threshold, shutdown grace, and the
// auto-scheduling and auto-prune switches. The CLI fills it from the
// config package; collaborators are passed to New, not carried here.
type Config struct {
	SchedulingInterval        time.Duration
	MaxConcurrentTasks        int
	DefaultHandlerTimeout     time.Duration
	PriorityStrategyThreshold int
	ShutdownGrace             time.Duration
	EnableAutoScheduling      bool

	// EnableAutoPrune opts the polling loop into retention cleanup of
	// finished tasks older than PruneRetention. Off by default.
	EnableAutoPrune bool
	PruneRetention  time.Duration
}

// Metrics is the snapshot returned by Manager.GetMetrics.
type Metrics struct {
	TotalTasks         int
	TaskStatusCounts   map[model.Status]int
	IsRunning          bool
	LastTickAt         time.Time
	LastTickDurationMs int64
}

// Manager is the SchedulerManager facade.
type Manager struct {
	store  TaskStore
	logger Logger

	mu       sync.Mutex
	state    State
	cfg      Config
	exec     *executor.Executor
	sched    *strategy.TaskScheduler
	cancel   context.CancelFunc
	tickWg   sync.WaitGroup
	ticking  bool
	lastTick time.Time
	lastDur  int64
}

// New constructs a Manager in the UNINITIALIZED state.
func New(store TaskStore, logger Logger) *Manager {
	return &Manager{store: store, logger: logger, state: StateUninitialized}
}

// State reports the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize creates/verifies the backing collection, wires the
// strategy/executor collaborators, and transitions to INITIALIZED (or
// straight to RUNNING if EnableAutoScheduling is set). Initialization
// errors are fatal and propagate to the caller.
func (m *Manager) Initialize(ctx context.Context, cfg Config) error {
	m.mu.Lock()
	if m.state == StateDisposed {
		m.mu.Unlock()
		return model.ErrSchedulerDisposed
	}
	m.mu.Unlock()

	if err := m.store.Initialize(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.cfg = cfg
	m.sched = strategy.New(
		strategy.ExplicitTimeStrategy{},
		strategy.IntervalStrategy{},
		strategy.NewPriorityBasedStrategy(cfg.PriorityStrategyThreshold),
	)
	m.exec = executor.New(m.store, m.logger, executor.Config{
		MaxConcurrentTasks:    cfg.MaxConcurrentTasks,
		DefaultHandlerTimeout: cfg.DefaultHandlerTimeout,
	})
	m.state = StateInitialized
	m.mu.Unlock()

	if cfg.EnableAutoScheduling {
		return m.StartScheduler()
	}
	return nil
}

func (m *Manager) requireInitialized() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateUninitialized:
		return model.ErrSchedulerNotInitialized
	case StateDisposed:
		return model.ErrSchedulerDisposed
	default:
		return nil
	}
}

// CreateTask delegates to the registry.
func (m *Manager) CreateTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	return m.store.Store(ctx, t)
}

// CreateTaskForAgent injects metadata.agentId before delegating.
func (m *Manager) CreateTaskForAgent(ctx context.Context, t *model.Task, agentID string) (*model.Task, error) {
	t.SetAgentID(model.NewAgentID(agentID))
	return m.CreateTask(ctx, t)
}

func (m *Manager) UpdateTask(ctx context.Context, t *model.Task) (*model.Task, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	return m.store.Update(ctx, t)
}

// CancelTask moves a task to CANCELLED; override permits tombstoning an
// already-COMPLETED task.
func (m *Manager) CancelTask(ctx context.Context, id string, override bool) (*model.Task, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	return m.store.CancelTask(ctx, id, override)
}

func (m *Manager) DeleteTask(ctx context.Context, id string) (bool, error) {
	if err := m.requireInitialized(); err != nil {
		return false, err
	}
	return m.store.Delete(ctx, id)
}

func (m *Manager) GetTask(ctx context.Context, id string) (*model.Task, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	return m.store.GetByID(ctx, id)
}

func (m *Manager) FindTasks(ctx context.Context, f model.Filter) ([]*model.Task, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	return m.store.Find(ctx, f)
}

// FindTasksForAgent composes a metadata filter on agentId.id.
func (m *Manager) FindTasksForAgent(ctx context.Context, agentID string, f model.Filter) ([]*model.Task, error) {
	if f.Metadata == nil {
		f.Metadata = map[string]any{}
	}
	f.Metadata["agentId.id"] = agentID
	return m.FindTasks(ctx, f)
}

// ExecuteDueTasks runs one pass: due-selection then bounded execution.
// Safe to call when the scheduler is stopped.
func (m *Manager) ExecuteDueTasks(ctx context.Context) ([]executor.Result, error) {
	return m.executeDue(ctx, model.Filter{Status: []model.Status{model.StatusPending}})
}

// ExecuteDueTasksForAgent restricts ExecuteDueTasks to one agent's tasks.
func (m *Manager) ExecuteDueTasksForAgent(ctx context.Context, agentID string) ([]executor.Result, error) {
	return m.executeDue(ctx, model.Filter{
		Status:   []model.Status{model.StatusPending},
		Metadata: map[string]any{"agentId.id": agentID},
	})
}

func (m *Manager) executeDue(ctx context.Context, candidateFilter model.Filter) ([]executor.Result, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	candidates, err := m.store.Find(ctx, candidateFilter)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	sched, exec := m.sched, m.exec
	m.mu.Unlock()

	due := sched.Due(candidates, time.Now())
	return exec.RunBatch(ctx, due), nil
}

// ExecuteTaskNow bypasses the due-check but still respects the
// concurrency cap.
func (m *Manager) ExecuteTaskNow(ctx context.Context, id string) (*executor.Result, error) {
	if err := m.requireInitialized(); err != nil {
		return nil, err
	}
	task, err := m.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	exec := m.exec
	m.mu.Unlock()

	results := exec.RunBatch(ctx, []*model.Task{task})
	return &results[0], nil
}

// StartScheduler begins the polling loop. Idempotent: starting an
// already-running scheduler is a no-op returning nil.
func (m *Manager) StartScheduler() error {
	m.mu.Lock()
	if m.state == StateRunning {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateUninitialized {
		m.mu.Unlock()
		return model.ErrSchedulerNotInitialized
	}
	if m.state == StateDisposed {
		m.mu.Unlock()
		return model.ErrSchedulerDisposed
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = StateRunning
	interval := m.cfg.SchedulingInterval
	m.mu.Unlock()

	if interval <= 0 {
		interval = 5 * time.Second
	}
	m.tickWg.Add(1)
	go m.pollLoop(ctx, interval)
	return nil
}

func (m *Manager) pollLoop(ctx context.Context, interval time.Duration) {
	defer m.tickWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runTick(ctx)
		}
	}
}

// runTick is serial: a tick still running when the next would fire is
// skipped, not queued.
func (m *Manager) runTick(ctx context.Context) {
	m.mu.Lock()
	if m.ticking {
		m.mu.Unlock()
		return
	}
	m.ticking = true
	m.mu.Unlock()

	start := time.Now()
	results, err := m.ExecuteDueTasks(ctx)
	duration := time.Since(start).Milliseconds()

	m.mu.Lock()
	m.ticking = false
	m.lastTick = start
	m.lastDur = duration
	m.mu.Unlock()

	recordTick(duration, err, len(results))
	var successful, failed int
	for _, r := range results {
		if r.Successful {
			successful++
		} else {
			failed++
		}
	}
	recordExecutions(successful, failed)

	if err != nil {
		m.logger.Error("tick failed", map[string]any{"error": err.Error()})
		return
	}

	if m.cfg.EnableAutoPrune && m.cfg.PruneRetention > 0 {
		pruned, pruneErr := m.store.Prune(ctx, m.cfg.PruneRetention)
		if pruneErr != nil {
			m.logger.Error("retention prune failed", map[string]any{"error": pruneErr.Error()})
		} else if pruned > 0 {
			m.logger.Info("pruned finished tasks", map[string]any{"count": pruned})
		}
	}
}

// StopScheduler cancels the ticker and waits up to ShutdownGrace for
// in-flight handlers; handlers still running at the deadline are
// abandoned (their state transitions may be lost).
func (m *Manager) StopScheduler() error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	grace := m.cfg.ShutdownGrace
	m.state = StateStopped
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if grace <= 0 {
		grace = 30 * time.Second
	}

	done := make(chan struct{})
	go func() {
		m.tickWg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		m.logger.Warn("shutdown grace period elapsed with ticks still in flight", nil)
	}
	return nil
}

func (m *Manager) IsSchedulerRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateRunning
}

// GetMetrics returns the getMetrics() snapshot.
func (m *Manager) GetMetrics(ctx context.Context) (Metrics, error) {
	counts := make(map[model.Status]int)
	total := 0
	for _, status := range []model.Status{
		model.StatusPending, model.StatusRunning, model.StatusCompleted,
		model.StatusFailed, model.StatusCancelled,
	} {
		n, err := m.store.Count(ctx, model.Filter{Status: []model.Status{status}})
		if err != nil {
			return Metrics{}, err
		}
		counts[status] = n
		total += n
	}

	m.mu.Lock()
	snapshot := Metrics{
		TotalTasks:         total,
		TaskStatusCounts:   counts,
		IsRunning:          m.state == StateRunning,
		LastTickAt:         m.lastTick,
		LastTickDurationMs: m.lastDur,
	}
	m.mu.Unlock()

	publishMetrics(snapshot)
	return snapshot, nil
}

// Reset stops the ticker and clears the registry and caches, returning
// to INITIALIZED. Valid from any state, including DISPOSED: it is the
// one operation that revives a disposed manager.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	wasRunning := m.state == StateRunning
	m.mu.Unlock()

	if wasRunning {
		if err := m.StopScheduler(); err != nil {
			return err
		}
	}
	if _, err := m.store.ClearAll(ctx); err != nil {
		return err
	}
	m.store.InvalidateCaches()

	m.mu.Lock()
	m.state = StateInitialized
	m.lastTick = time.Time{}
	m.lastDur = 0
	m.mu.Unlock()
	return nil
}

// Dispose tears the manager down: valid from any state except RUNNING.
// Once disposed, Initialize, StartScheduler and the task operations
// return ErrSchedulerDisposed; Reset revives the manager.
func (m *Manager) Dispose() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateRunning {
		return fmt.Errorf("scheduler: call StopScheduler before Dispose")
	}
	m.state = StateDisposed
	return nil
}
