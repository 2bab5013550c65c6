// Package strategy implements pluggable predicate-plus-sort rules that
// decide which tasks are "due", and the TaskScheduler that composes them.
package strategy

import (
	"sort"
	"time"

	"github.com/apimgr/tasksched/src/model"
)

// Strategy selects and orders the subset of tasks it considers due.
type Strategy interface {
	Due(tasks []*model.Task, now time.Time) []*model.Task
	Name() string
}

// ExplicitTimeStrategy selects PENDING tasks whose scheduledTime has
// arrived, sorted by scheduledTime ascending then priority descending.
type ExplicitTimeStrategy struct{}

func (ExplicitTimeStrategy) Name() string { return "explicit" }

func (ExplicitTimeStrategy) Due(tasks []*model.Task, now time.Time) []*model.Task {
	var due []*model.Task
	for _, t := range tasks {
		if t.Status == model.StatusPending && t.ScheduledTime != nil && !t.ScheduledTime.After(now) {
			due = append(due, t)
		}
	}
	sortByScheduledTimeThenPriority(due)
	return due
}

// IntervalStrategy selects PENDING INTERVAL tasks whose next fire time
// has arrived. Same sort as ExplicitTimeStrategy.
type IntervalStrategy struct{}

func (IntervalStrategy) Name() string { return "interval" }

func (IntervalStrategy) Due(tasks []*model.Task, now time.Time) []*model.Task {
	var due []*model.Task
	for _, t := range tasks {
		if t.Status == model.StatusPending && t.ScheduleType == model.ScheduleInterval &&
			t.ScheduledTime != nil && !t.ScheduledTime.After(now) {
			due = append(due, t)
		}
	}
	sortByScheduledTimeThenPriority(due)
	return due
}

// PriorityBasedStrategy selects PENDING PRIORITY tasks at or above a
// configurable threshold (default 7), sorted by priority descending.
type PriorityBasedStrategy struct {
	Threshold int
}

// NewPriorityBasedStrategy applies the default threshold of 7 when t<=0.
func NewPriorityBasedStrategy(threshold int) PriorityBasedStrategy {
	if threshold <= 0 {
		threshold = 7
	}
	return PriorityBasedStrategy{Threshold: threshold}
}

func (PriorityBasedStrategy) Name() string { return "priority" }

func (s PriorityBasedStrategy) Due(tasks []*model.Task, now time.Time) []*model.Task {
	var due []*model.Task
	for _, t := range tasks {
		if t.Status == model.StatusPending && t.ScheduleType == model.SchedulePriority && t.Priority >= s.Threshold {
			due = append(due, t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool { return due[i].Priority > due[j].Priority })
	return due
}

func sortByScheduledTimeThenPriority(tasks []*model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if !a.ScheduledTime.Equal(*b.ScheduledTime) {
			return a.ScheduledTime.Before(*b.ScheduledTime)
		}
		return a.Priority > b.Priority
	})
}

// TaskScheduler composes strategies: iterate each in order, union
// results by task id (first strategy wins on duplicates), and return
// the combined list in strategy order.
type TaskScheduler struct {
	strategies []Strategy
}

// New builds a TaskScheduler over strategies, evaluated in the given order.
func New(strategies ...Strategy) *TaskScheduler {
	return &TaskScheduler{strategies: strategies}
}

// Due runs every strategy against candidates and unions the results.
func (s *TaskScheduler) Due(candidates []*model.Task, now time.Time) []*model.Task {
	seen := make(map[string]bool)
	var combined []*model.Task
	for _, strat := range s.strategies {
		for _, t := range strat.Due(candidates, now) {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			combined = append(combined, t)
		}
	}
	return combined
}
