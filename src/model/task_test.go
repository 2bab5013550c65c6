package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		override bool
		want     bool
	}{
		{StatusPending, StatusRunning, false, true},
		{StatusPending, StatusCancelled, false, true},
		{StatusRunning, StatusCompleted, false, true},
		{StatusRunning, StatusFailed, false, true},
		{StatusCompleted, StatusCancelled, false, false},
		{StatusCompleted, StatusCancelled, true, true},
		{StatusPending, StatusCompleted, false, false},
		{StatusFailed, StatusPending, false, false},
		{StatusCancelled, StatusPending, false, false},
		{StatusPending, StatusPending, false, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to, c.override); got != c.want {
			t.Fatalf("CanTransition(%s, %s, %v) = %v, want %v", c.from, c.to, c.override, got, c.want)
		}
	}
}

func TestValidateRequiresName(t *testing.T) {
	task := &Task{Priority: 5}
	if err := task.Validate(); err == nil {
		t.Fatal("expected validation failure for missing name")
	}
}

func TestValidatePriorityRange(t *testing.T) {
	task := &Task{Name: "x", Priority: 11}
	if err := task.Validate(); err == nil {
		t.Fatal("expected validation failure for priority > 10")
	}
}

func TestValidateRejectsCyclicMetadata(t *testing.T) {
	meta := map[string]any{}
	meta["self"] = meta

	task := &Task{Name: "x", Priority: 5, Metadata: meta}
	if err := task.Validate(); err != ErrCyclicMetadata {
		t.Fatalf("err = %v, want ErrCyclicMetadata", err)
	}
}

func TestValidateAcceptsSharedNonCyclicMetadata(t *testing.T) {
	shared := map[string]any{"k": "v"}
	task := &Task{Name: "x", Priority: 5, Metadata: map[string]any{
		"a": shared,
		"b": shared, // same map twice is sharing, not a cycle
	}}
	if err := task.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestNewTaskIDConcurrentDistinct(t *testing.T) {
	const n = 200
	ids := make(chan string, n)
	for i := 0; i < n; i++ {
		go func() { ids <- NewTaskID() }()
	}
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		id := <-ids
		if len(id) != 26 {
			t.Fatalf("ULID %q has length %d, want 26", id, len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate ULID %q", id)
		}
		seen[id] = true
	}
}

func TestCloneIsolation(t *testing.T) {
	scheduled := time.Now()
	task := &Task{
		Name:          "orig",
		ScheduledTime: &scheduled,
		Interval:      &Interval{Expression: "1 hour"},
		Tags:          []string{"a"},
		Metadata:      map[string]any{"nested": map[string]any{"k": "v"}},
	}

	clone := task.Clone()
	clone.Interval.Expression = "2 hours"
	clone.Tags[0] = "b"
	clone.Metadata["nested"].(map[string]any)["k"] = "mutated"
	*clone.ScheduledTime = scheduled.Add(time.Hour)

	if task.Interval.Expression != "1 hour" {
		t.Fatal("clone mutated the original interval")
	}
	if task.Tags[0] != "a" {
		t.Fatal("clone shares the tags slice")
	}
	if task.Metadata["nested"].(map[string]any)["k"] != "v" {
		t.Fatal("clone shares nested metadata")
	}
	if !task.ScheduledTime.Equal(scheduled) {
		t.Fatal("clone shares the scheduledTime pointer")
	}
}

func TestAgentIDRoundTrip(t *testing.T) {
	task := &Task{Name: "x"}
	task.SetAgentID(NewAgentID("agent-9"))

	agent, ok := task.AgentID()
	if !ok {
		t.Fatal("expected agent id present")
	}
	if agent.Namespace != "agent" || agent.Type != "agent" || agent.ID != "agent-9" {
		t.Fatalf("agent = %+v", agent)
	}
}
