package registry

import (
	"sort"
	"time"

	"github.com/apimgr/tasksched/src/model"
)

// sortTasks orders tasks by f.SortBy/f.SortDirection (ascending unless
// SortDesc), defaulting to createdAt for an empty sort key. Any other
// key not handled in sortLess sorts by the string value of that
// metadata key; non-string values compare as empty.
func sortTasks(tasks []*model.Task, f model.Filter) {
	less := sortLess(f.SortBy)
	desc := f.SortDirection == model.SortDesc
	sort.SliceStable(tasks, func(i, j int) bool {
		if desc {
			return less(tasks[j], tasks[i])
		}
		return less(tasks[i], tasks[j])
	})
}

func sortLess(sortBy string) func(a, b *model.Task) bool {
	switch sortBy {
	case "priority":
		return func(a, b *model.Task) bool { return a.Priority < b.Priority }
	case "scheduledTime":
		return func(a, b *model.Task) bool { return timeOrZero(a.ScheduledTime).Before(timeOrZero(b.ScheduledTime)) }
	case "lastExecutedAt":
		return func(a, b *model.Task) bool { return timeOrZero(a.LastExecutedAt).Before(timeOrZero(b.LastExecutedAt)) }
	case "createdAt", "":
		return func(a, b *model.Task) bool { return a.CreatedAt.Before(b.CreatedAt) }
	default:
		return func(a, b *model.Task) bool {
			av, _ := a.Metadata[sortBy]
			bv, _ := b.Metadata[sortBy]
			return fmtValue(av) < fmtValue(bv)
		}
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

func fmtValue(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func paginateTasks(tasks []*model.Task, offset, limit int) []*model.Task {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(tasks) {
		return nil
	}
	end := len(tasks)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return tasks[offset:end]
}
