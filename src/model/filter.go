package model

import (
	"strconv"
	"time"
)

// SortDirection controls Filter.SortDirection.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// TimeRange is a closed interval [From, To] used by the *Between filters.
// Either bound may be zero to mean "unbounded on that side".
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within the closed range, treating a
// zero bound as unbounded.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Filter composes conjunctively: every non-empty field narrows the
// result set further, there is no OR between fields.
type Filter struct {
	IDs []string

	Name         string
	NameContains string

	Status       []Status
	ScheduleType []ScheduleType

	MinPriority *int
	MaxPriority *int

	Tags    []string // all-of
	AnyTags []string // any-of

	IsOverdue bool
	IsDueNow  bool

	// Metadata is a recursive path match: nested keys flatten to dotted
	// paths, e.g. {"agentId.id": "agent-7"}.
	Metadata map[string]any

	CreatedBetween       *TimeRange
	ScheduledBetween      *TimeRange
	LastExecutedBetween   *TimeRange

	Limit  int
	Offset int

	SortBy        string
	SortDirection SortDirection
}

// IsHot reports whether f is eligible for the query cache: either a bare
// {status: PENDING} filter, or any filter carrying IsDueNow/IsOverdue.
// Complex filters bypass the query cache entirely.
func (f Filter) IsHot() bool {
	if f.IsDueNow || f.IsOverdue {
		return true
	}
	if len(f.Status) == 1 && f.Status[0] == StatusPending && f.isOtherwiseEmpty() {
		return true
	}
	return false
}

func (f Filter) isOtherwiseEmpty() bool {
	return len(f.IDs) == 0 && f.Name == "" && f.NameContains == "" &&
		len(f.ScheduleType) == 0 && f.MinPriority == nil && f.MaxPriority == nil &&
		len(f.Tags) == 0 && len(f.AnyTags) == 0 && !f.IsOverdue && !f.IsDueNow &&
		len(f.Metadata) == 0 && f.CreatedBetween == nil && f.ScheduledBetween == nil &&
		f.LastExecutedBetween == nil
}

// CacheKey returns a stable key for hot filters, used by the registry's
// query cache. Only called when IsHot() is true.
func (f Filter) CacheKey() string {
	key := "q:"
	if f.IsDueNow {
		key += "due:"
	}
	if f.IsOverdue {
		key += "overdue:"
	}
	for _, s := range f.Status {
		key += "s=" + string(s) + ";"
	}
	key += "limit=" + strconv.Itoa(f.Limit) + ";offset=" + strconv.Itoa(f.Offset)
	key += ";sort=" + f.SortBy + string(f.SortDirection)
	return key
}
