package registry

import (
	"reflect"
	"strings"
	"time"

	"github.com/apimgr/tasksched/src/model"
	"github.com/apimgr/tasksched/src/storage"
)

// buildPushdownFilter translates the coarse, index-friendly parts of a
// model.Filter into the storage filter DSL. Everything else (name
// substring, tags, metadata paths, date ranges) is re-checked in-process
// by matchesFilter after fetch.
func buildPushdownFilter(f model.Filter) *storage.Filter {
	var must []storage.Condition

	if len(f.IDs) > 0 {
		// Point ids in the store are the derived UUIDs, not the ULIDs.
		pointIDs := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			pointIDs[i] = pointID(id)
		}
		must = append(must, storage.Condition{HasID: pointIDs})
	}
	if len(f.Status) > 0 {
		must = append(must, storage.Condition{Key: "status", Match: &storage.MatchClause{Any: statusesToAny(f.Status)}})
	}
	if len(must) == 0 {
		return nil
	}
	return &storage.Filter{Must: must}
}

func statusesToAny(statuses []model.Status) []any {
	out := make([]any, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// matchesFilter is the full, authoritative filter evaluation run
// in-process against a decoded Task, regardless of what the backing
// store already narrowed down.
func matchesFilter(t *model.Task, f model.Filter, now func() time.Time) bool {
	if len(f.IDs) > 0 && !containsString(f.IDs, t.ID) {
		return false
	}
	if f.Name != "" && t.Name != f.Name {
		return false
	}
	if f.NameContains != "" && !strings.Contains(t.Name, f.NameContains) {
		return false
	}
	if len(f.Status) > 0 && !containsStatus(f.Status, t.Status) {
		return false
	}
	if len(f.ScheduleType) > 0 && !containsScheduleType(f.ScheduleType, t.ScheduleType) {
		return false
	}
	if f.MinPriority != nil && t.Priority < *f.MinPriority {
		return false
	}
	if f.MaxPriority != nil && t.Priority > *f.MaxPriority {
		return false
	}
	if len(f.Tags) > 0 && !containsAll(t.Tags, f.Tags) {
		return false
	}
	if len(f.AnyTags) > 0 && !containsAny(t.Tags, f.AnyTags) {
		return false
	}
	if f.IsOverdue || f.IsDueNow {
		if t.Status != model.StatusPending {
			return false
		}
		if t.ScheduledTime == nil || t.ScheduledTime.After(now()) {
			return false
		}
	}
	if len(f.Metadata) > 0 && !matchesMetadata(t.Metadata, f.Metadata, "") {
		return false
	}
	if f.CreatedBetween != nil && !f.CreatedBetween.Contains(t.CreatedAt) {
		return false
	}
	if f.ScheduledBetween != nil {
		if t.ScheduledTime == nil || !f.ScheduledBetween.Contains(*t.ScheduledTime) {
			return false
		}
	}
	if f.LastExecutedBetween != nil {
		if t.LastExecutedAt == nil || !f.LastExecutedBetween.Contains(*t.LastExecutedAt) {
			return false
		}
	}
	return true
}

// matchesMetadata recursively flattens want (nested maps become dotted
// paths) and compares against the task's actual metadata tree.
func matchesMetadata(actual map[string]any, want map[string]any, prefix string) bool {
	for k, wantVal := range want {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if nested, ok := wantVal.(map[string]any); ok {
			actualNested, _ := lookupPath(actual, path).(map[string]any)
			if actualNested == nil || !matchesMetadata(actualNested, nested, "") {
				return false
			}
			continue
		}
		if got := lookupPath(actual, path); got == nil || !equalAny(got, wantVal) {
			return false
		}
	}
	return true
}

func lookupPath(m map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var current any = m
	for _, part := range parts {
		asMap, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = asMap[part]
		if !ok {
			return nil
		}
	}
	return current
}

// equalAny compares metadata values loosely: numbers compare across
// int/float representations (JSON decoding produces float64), everything
// else falls back to deep equality.
func equalAny(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsStatus(set []model.Status, v model.Status) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsScheduleType(set []model.ScheduleType, v model.ScheduleType) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsAll(have, want []string) bool {
	for _, w := range want {
		if !containsString(have, w) {
			return false
		}
	}
	return true
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		if containsString(have, w) {
			return true
		}
	}
	return false
}
