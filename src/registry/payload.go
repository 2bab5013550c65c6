package registry

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/apimgr/tasksched/src/model"
)

// ulidNamespace seeds the deterministic ULID->UUID derivation. Any
// fixed namespace works as long as it never changes across a
// deployment's lifetime.
var ulidNamespace = uuid.NewSHA1(uuid.Nil, []byte("apimgr/tasksched/task"))

// pointID deterministically derives a UUID from a task's ULID so it can
// be used as a point id in UUID-only backends. The original ULID is
// still stored in the payload and is authoritative on read.
func pointID(taskULID string) string {
	return uuid.NewSHA1(ulidNamespace, []byte(taskULID)).String()
}

// taskToPayload renders a Task into its persisted shape.
func taskToPayload(t *model.Task) map[string]any {
	payload := map[string]any{
		"id":           t.ID,
		"name":         t.Name,
		"description":  t.Description,
		"status":       string(t.Status),
		"scheduleType": string(t.ScheduleType),
		"priority":     t.Priority,
		"createdAt":    t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updatedAt":    t.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"tags":         t.Tags,
		"runCount":     t.RunCount,
		"failCount":    t.FailCount,
	}
	if t.ScheduledTime != nil {
		payload["scheduledTime"] = t.ScheduledTime.UTC().Format(time.RFC3339Nano)
	} else {
		payload["scheduledTime"] = nil
	}
	if t.Interval != nil {
		payload["interval"] = map[string]any{
			"expression":     t.Interval.Expression,
			"executionCount": t.Interval.ExecutionCount,
		}
	} else {
		payload["interval"] = nil
	}
	if t.LastExecutedAt != nil {
		payload["lastExecutedAt"] = t.LastExecutedAt.UTC().Format(time.RFC3339Nano)
	} else {
		payload["lastExecutedAt"] = nil
	}
	if t.Timeout > 0 {
		payload["timeoutMs"] = t.Timeout.Milliseconds()
	}
	if t.LastError != "" {
		payload["lastError"] = t.LastError
	}
	if t.HandlerID != "" {
		payload["handler"] = map[string]any{"type": "serialized_function", "handlerId": t.HandlerID}
	} else {
		payload["handler"] = "function_handler_placeholder"
	}
	if t.Metadata != nil {
		payload["metadata"] = t.Metadata
	} else {
		payload["metadata"] = map[string]any{}
	}
	return payload
}

// payloadToTask recovers a Task from a stored payload: a regular Task
// shape, or a "memory-task" shape with status recoverable from
// metadata.status. Returns CacheDeserializationError for anything else.
func payloadToTask(authoritativeID string, payload map[string]any) (*model.Task, error) {
	id, _ := payload["id"].(string)
	if id == "" {
		id = authoritativeID
	}
	if id == "" {
		return nil, &model.CacheDeserializationError{ID: authoritativeID, Err: fmt.Errorf("missing id")}
	}

	name, isRegularShape := payload["name"].(string)
	status, hasStatus := payload["status"].(string)
	scheduleType, _ := payload["scheduleType"].(string)

	if !hasStatus || status == "" {
		// Try the "memory-task" shape: type="task" or metadata.taskType,
		// with status recoverable from metadata.status.
		if !isMemoryTaskShape(payload) {
			return nil, &model.CacheDeserializationError{ID: id, Err: fmt.Errorf("no recognisable status")}
		}
		metadata, _ := payload["metadata"].(map[string]any)
		status, hasStatus = metadata["status"].(string)
		if !hasStatus || status == "" {
			return nil, &model.CacheDeserializationError{ID: id, Err: fmt.Errorf("memory-task payload missing metadata.status")}
		}
	}
	if !isRegularShape || name == "" {
		if n, ok := payload["name"].(string); ok {
			name = n
		}
	}

	t := &model.Task{
		ID:           id,
		Name:         name,
		Status:       model.Status(status),
		ScheduleType: model.ScheduleType(scheduleType),
	}
	if desc, ok := payload["description"].(string); ok {
		t.Description = desc
	}
	if p, ok := toInt(payload["priority"]); ok {
		t.Priority = p
	} else {
		t.Priority = model.DefaultPriority
	}
	switch tags := payload["tags"].(type) {
	case []any:
		for _, v := range tags {
			if s, ok := v.(string); ok {
				t.Tags = append(t.Tags, s)
			}
		}
	case []string:
		t.Tags = append([]string(nil), tags...)
	}
	if n, ok := toInt64(payload["runCount"]); ok {
		t.RunCount = n
	}
	if n, ok := toInt64(payload["failCount"]); ok {
		t.FailCount = n
	}
	if s, ok := payload["lastError"].(string); ok {
		t.LastError = s
	}
	if ms, ok := toInt64(payload["timeoutMs"]); ok {
		t.Timeout = time.Duration(ms) * time.Millisecond
	}

	if v, ok := parseHeuristicTime(payload["createdAt"]); ok {
		t.CreatedAt = v
	} else {
		t.CreatedAt = time.Now()
	}
	if v, ok := parseHeuristicTime(payload["updatedAt"]); ok {
		t.UpdatedAt = v
	} else {
		t.UpdatedAt = time.Now()
	}
	if v, ok := parseHeuristicTime(payload["scheduledTime"]); ok {
		t.ScheduledTime = &v
	}
	if v, ok := parseHeuristicTime(payload["lastExecutedAt"]); ok {
		t.LastExecutedAt = &v
	}

	if iv, ok := payload["interval"].(map[string]any); ok {
		interval := &model.Interval{}
		if expr, ok := iv["expression"].(string); ok {
			interval.Expression = expr
		}
		if n, ok := toInt(iv["executionCount"]); ok {
			interval.ExecutionCount = n
		}
		t.Interval = interval
	}

	if handler, ok := payload["handler"].(map[string]any); ok {
		if hid, ok := handler["handlerId"].(string); ok {
			t.HandlerID = hid
		}
	}

	if metadata, ok := payload["metadata"].(map[string]any); ok {
		t.Metadata = metadata
	}

	return t, nil
}

func isMemoryTaskShape(payload map[string]any) bool {
	if typ, ok := payload["type"].(string); ok && typ == "task" {
		return true
	}
	if metadata, ok := payload["metadata"].(map[string]any); ok {
		if _, ok := metadata["taskType"]; ok {
			return true
		}
	}
	return false
}

// parseHeuristicTime accepts ISO-8601 strings, epoch seconds, or epoch
// milliseconds (value > 1e12 implies milliseconds).
func parseHeuristicTime(raw any) (time.Time, bool) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, false
	case string:
		if v == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return epochToTime(n), true
		}
		return time.Time{}, false
	case float64:
		return epochToTime(v), true
	case int64:
		return epochToTime(float64(v)), true
	case int:
		return epochToTime(float64(v)), true
	default:
		return time.Time{}, false
	}
}

func epochToTime(v float64) time.Time {
	if v > 1e12 {
		return time.UnixMilli(int64(v))
	}
	return time.Unix(int64(v), 0)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
