// Package datetime is a pure, stateless translator from human
// descriptions to concrete instants and priorities, used at
// task-creation time to normalise temporal input before storage. Every
// parser here returns ok=false on unrecognised input rather than
// erroring; CalculateInterval is the sole exception because it is only
// ever called from trusted paths.
package datetime

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidInterval is returned by CalculateInterval on malformed input.
var ErrInvalidInterval = errors.New("invalid interval expression")

// VagueResult is the outcome of TranslateVagueTerm.
type VagueResult struct {
	Date     time.Time
	Priority int
}

// vagueTerm is one row of the vague-phrase dictionary.
type vagueTerm struct {
	terms    []string
	priority int
	offset   func(reference time.Time) time.Time
}

var vagueDictionary = []vagueTerm{
	{
		terms:    []string{"urgent", "immediate", "immediately", "right away"},
		priority: 10,
		offset:   func(r time.Time) time.Time { return r },
	},
	{
		terms:    []string{"asap", "very soon"},
		priority: 9,
		offset:   func(r time.Time) time.Time { return r.Add(time.Hour) },
	},
	{
		terms:    []string{"soon", "shortly"},
		priority: 8,
		offset:   func(r time.Time) time.Time { return r.Add(4 * time.Hour) },
	},
	{
		terms:    []string{"today", "end of day", "by today"},
		priority: 7,
		offset:   endOfDay,
	},
	{
		terms:    []string{"by tomorrow"},
		priority: 6,
		offset:   func(r time.Time) time.Time { return endOfDay(r.AddDate(0, 0, 1)) },
	},
	{
		terms:    []string{"a couple of days", "a couple days", "a few days"},
		priority: 5,
		offset:   func(r time.Time) time.Time { return r.AddDate(0, 0, 2) },
	},
	{
		terms:    []string{"this week", "end of week"},
		priority: 4,
		offset:   nextSundayEndOfDay,
	},
	{
		terms:    []string{"this month", "end of month"},
		priority: 3,
		offset:   endOfMonth,
	},
	{
		terms:    []string{"low priority"},
		priority: 2,
		offset:   func(r time.Time) time.Time { return r.AddDate(0, 0, 7) },
	},
	{
		terms:    []string{"whenever"},
		priority: 1,
		offset:   func(r time.Time) time.Time { return r.AddDate(0, 0, 30) },
	},
}

func endOfDay(r time.Time) time.Time {
	return time.Date(r.Year(), r.Month(), r.Day(), 23, 59, 59, 999000000, r.Location())
}

func nextSundayEndOfDay(r time.Time) time.Time {
	daysUntilSunday := (7 - int(r.Weekday())) % 7
	if daysUntilSunday == 0 {
		daysUntilSunday = 7
	}
	return endOfDay(r.AddDate(0, 0, daysUntilSunday))
}

func endOfMonth(r time.Time) time.Time {
	firstOfNextMonth := time.Date(r.Year(), r.Month()+1, 1, 0, 0, 0, 0, r.Location())
	lastDay := firstOfNextMonth.AddDate(0, 0, -1)
	return endOfDay(lastDay)
}

// TranslateVagueTerm maps a fixed human phrase to a concrete instant and
// priority. Matching is case-insensitive, exact first, then substring
// containment.
func TranslateVagueTerm(expression string, reference time.Time) (VagueResult, bool) {
	normalized := strings.ToLower(strings.TrimSpace(expression))
	if normalized == "" {
		return VagueResult{}, false
	}

	// Exact match pass.
	for _, entry := range vagueDictionary {
		for _, term := range entry.terms {
			if normalized == term {
				return VagueResult{Date: entry.offset(reference), Priority: entry.priority}, true
			}
		}
	}
	// Substring containment pass, in dictionary order (highest priority
	// first), so "very soon" wins over the shorter "soon" it contains.
	for _, entry := range vagueDictionary {
		for _, term := range entry.terms {
			if strings.Contains(normalized, term) {
				return VagueResult{Date: entry.offset(reference), Priority: entry.priority}, true
			}
		}
	}
	return VagueResult{}, false
}

// IsSameDay reports whether a and b fall on the same calendar day in a's
// location.
func IsSameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
