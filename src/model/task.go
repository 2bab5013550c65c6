package model

import (
	"context"
	"crypto/rand"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the task lifecycle state. Transitions form a DAG:
// PENDING -> RUNNING -> (COMPLETED|FAILED); PENDING -> CANCELLED;
// COMPLETED -> CANCELLED only via explicit override (tombstoning).
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// validTransitions encodes the allowed status DAG. The bool value marks
// whether the transition requires an explicit override to be permitted.
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusRunning:   false,
		StatusCancelled: false,
	},
	StatusRunning: {
		StatusCompleted: false,
		StatusFailed:    false,
	},
	StatusCompleted: {
		StatusCancelled: true, // tombstoning, override required
	},
}

// CanTransition reports whether from -> to is allowed. override permits
// the COMPLETED -> CANCELLED tombstoning path.
func CanTransition(from, to Status, override bool) bool {
	if from == to {
		return false
	}
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	requiresOverride, ok := allowed[to]
	if !ok {
		return false
	}
	return !requiresOverride || override
}

// ScheduleType selects which SchedulingStrategy is eligible to select a task.
type ScheduleType string

const (
	ScheduleExplicit ScheduleType = "EXPLICIT"
	ScheduleInterval ScheduleType = "INTERVAL"
	SchedulePriority ScheduleType = "PRIORITY"
)

// Interval holds the recurrence expression and count for INTERVAL tasks.
type Interval struct {
	Expression     string `json:"expression"`
	ExecutionCount int    `json:"executionCount"`
}

// AgentID is a structured, opaque-at-the-API-boundary identifier embedded
// in task metadata under the "agentId" key. It is never flattened to a
// string at the API boundary; it is flattened to a dotted path only
// inside the storage filter DSL.
type AgentID struct {
	Namespace string `json:"namespace"`
	Type      string `json:"type"`
	ID        string `json:"id"`
}

// NewAgentID builds the canonical agent identifier used by
// createTaskForAgent / findTasksForAgent.
func NewAgentID(id string) AgentID {
	return AgentID{Namespace: "agent", Type: "agent", ID: id}
}

// HandlerFunc is the caller-supplied async callback a task runs. It may
// internally call into agents/LLMs; the scheduler does not care, and only
// records "successful: true" iff it returns without error.
type HandlerFunc func(ctx context.Context) error

// Task is the central scheduler entity.
type Task struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Status       Status       `json:"status"`
	ScheduleType ScheduleType `json:"scheduleType"`
	Priority     int          `json:"priority"`

	ScheduledTime *time.Time `json:"scheduledTime"`
	Interval      *Interval  `json:"interval"`

	// Handler is process-local and never serialised; see HandlerID.
	Handler   HandlerFunc `json:"-"`
	HandlerID string      `json:"handlerId,omitempty"`

	Tags      []string      `json:"tags,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	LastError string        `json:"lastError,omitempty"`
	RunCount  int64         `json:"runCount"`
	FailCount int64         `json:"failCount"`

	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	LastExecutedAt *time.Time `json:"lastExecutedAt,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// DefaultPriority is used when a caller omits Priority.
const DefaultPriority = 5

// entropySource backs ULID generation. ulid.Monotonic readers are not
// safe for concurrent use, so entropyMu serialises NewTaskID; concurrent
// Store calls must still receive distinct ids.
var (
	entropyMu     sync.Mutex
	entropySource = ulid.Monotonic(rand.Reader, 0)
)

// NewTaskID returns a new lexicographically-sortable ULID string.
func NewTaskID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropySource).String()
}

// Validate enforces the invariants store()/update() must check before
// persisting: name required, priority range, metadata serialisability.
func (t *Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTask)
	}
	if t.Priority < 0 || t.Priority > 10 {
		return fmt.Errorf("%w: priority must be 0-10, got %d", ErrInvalidTask, t.Priority)
	}
	if hasCycle(reflect.ValueOf(t.Metadata), make(map[uintptr]bool)) {
		return ErrCyclicMetadata
	}
	return nil
}

// AgentID extracts the structured agent identifier from metadata, if any.
func (t *Task) AgentID() (AgentID, bool) {
	if t.Metadata == nil {
		return AgentID{}, false
	}
	raw, ok := t.Metadata["agentId"]
	if !ok {
		return AgentID{}, false
	}
	switch v := raw.(type) {
	case AgentID:
		return v, true
	case map[string]any:
		a := AgentID{}
		if ns, ok := v["namespace"].(string); ok {
			a.Namespace = ns
		}
		if ty, ok := v["type"].(string); ok {
			a.Type = ty
		}
		if id, ok := v["id"].(string); ok {
			a.ID = id
		}
		return a, a.ID != ""
	case map[string]string:
		return AgentID{Namespace: v["namespace"], Type: v["type"], ID: v["id"]}, v["id"] != ""
	default:
		return AgentID{}, false
	}
}

// SetAgentID stores the structured identifier under metadata["agentId"],
// creating the metadata map if needed. It is stored as a plain nested
// map, not the AgentID struct: metadata must stay dotted-path
// addressable (agentId.id) on every backend, including ones that never
// JSON round-trip the payload.
func (t *Task) SetAgentID(a AgentID) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	t.Metadata["agentId"] = map[string]any{
		"namespace": a.Namespace,
		"type":      a.Type,
		"id":        a.ID,
	}
}

// Clone returns a deep-enough copy for safe handoff across goroutines
// within a single poll tick (registry owns the canonical copy; readers
// get their own struct, not shared pointers into mutable fields).
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.ScheduledTime != nil {
		st := *t.ScheduledTime
		clone.ScheduledTime = &st
	}
	if t.Interval != nil {
		iv := *t.Interval
		clone.Interval = &iv
	}
	if t.LastExecutedAt != nil {
		le := *t.LastExecutedAt
		clone.LastExecutedAt = &le
	}
	if t.Tags != nil {
		clone.Tags = append([]string(nil), t.Tags...)
	}
	if t.Metadata != nil {
		clone.Metadata = deepCopyMap(t.Metadata)
	}
	return &clone
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vv := v.(type) {
		case map[string]any:
			out[k] = deepCopyMap(vv)
		default:
			out[k] = vv
		}
	}
	return out
}

// hasCycle walks nested map/slice metadata looking for reference cycles.
// Go maps and slices are reference types, so metadata[k] = metadata is a
// real, detectable cycle; we guard on pointer identity via reflect.
func hasCycle(v reflect.Value, seen map[uintptr]bool) bool {
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return false
		}
		return hasCycle(v.Elem(), seen)
	case reflect.Map:
		if v.IsNil() {
			return false
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return true
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		iter := v.MapRange()
		for iter.Next() {
			if hasCycle(iter.Value(), seen) {
				return true
			}
		}
	case reflect.Slice:
		if v.IsNil() {
			return false
		}
		ptr := v.Pointer()
		if seen[ptr] {
			return true
		}
		seen[ptr] = true
		defer delete(seen, ptr)
		for i := 0; i < v.Len(); i++ {
			if hasCycle(v.Index(i), seen) {
				return true
			}
		}
	}
	return false
}
