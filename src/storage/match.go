package storage

import (
	"fmt"
	"strings"
)

// matches evaluates f against a point's id/payload in-process. Memory
// and SQLite both fetch everything and filter here; Qdrant evaluates
// its filter DSL server-side instead.
func matches(f *Filter, id string, payload map[string]any) bool {
	if f == nil {
		return true
	}
	for _, c := range f.Must {
		if !matchCondition(c, id, payload) {
			return false
		}
	}
	for _, c := range f.MustNot {
		if matchCondition(c, id, payload) {
			return false
		}
	}
	return true
}

func matchCondition(c Condition, id string, payload map[string]any) bool {
	if len(c.HasID) > 0 {
		for _, want := range c.HasID {
			if want == id {
				return true
			}
		}
		return false
	}

	value, ok := lookupDotted(payload, c.Key)

	switch {
	case c.Match != nil:
		if !ok {
			return false
		}
		if c.Match.Any != nil {
			for _, want := range c.Match.Any {
				if equalLoose(value, want) {
					return true
				}
			}
			return false
		}
		return equalLoose(value, c.Match.Value)

	case c.Range != nil:
		if !ok {
			return false
		}
		return inRange(value, c.Range)

	case c.Text != nil:
		if !ok {
			return false
		}
		s, isStr := value.(string)
		return isStr && strings.Contains(s, c.Text.Contains)
	}
	return true
}

// lookupDotted resolves a dotted path like "agentId.id" through nested
// map[string]any payloads, mirroring the registry's flattened metadata
// filter keys.
func lookupDotted(payload map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = payload
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func equalLoose(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func inRange(value any, r *RangeClause) bool {
	v, ok := toFloat(value)
	if !ok {
		return false
	}
	if r.Gte != nil {
		gte, ok := toFloat(r.Gte)
		if ok && v < gte {
			return false
		}
	}
	if r.Lte != nil {
		lte, ok := toFloat(r.Lte)
		if ok && v > lte {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
