package datetime

import (
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

var unitWords = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second, "sec": time.Second, "secs": time.Second,
	"minute": time.Minute, "minutes": time.Minute, "min": time.Minute, "mins": time.Minute,
	"hour": time.Hour, "hours": time.Hour, "hr": time.Hour, "hrs": time.Hour,
	"day": 24 * time.Hour, "days": 24 * time.Hour,
	"week": 7 * 24 * time.Hour, "weeks": 7 * 24 * time.Hour,
}

// ParseNaturalLanguage resolves common relative-date phrases against a
// reference instant. It returns ok=false for anything it doesn't
// recognise, leaving the caller to fall back to another parser.
func ParseNaturalLanguage(expression string, reference time.Time) (time.Time, bool) {
	normalized := strings.ToLower(strings.TrimSpace(expression))
	if normalized == "" {
		return time.Time{}, false
	}

	switch normalized {
	case "now":
		return reference, true
	case "today":
		return startOfDay(reference), true
	case "tomorrow":
		return startOfDay(reference.AddDate(0, 0, 1)), true
	case "yesterday":
		return startOfDay(reference.AddDate(0, 0, -1)), true
	case "day after tomorrow":
		return startOfDay(reference.AddDate(0, 0, 2)), true
	case "day before yesterday":
		return startOfDay(reference.AddDate(0, 0, -2)), true
	case "next week":
		return startOfDay(reference.AddDate(0, 0, 7)), true
	case "next month":
		return startOfDay(reference.AddDate(0, 1, 0)), true
	case "next year":
		return startOfDay(reference.AddDate(1, 0, 0)), true
	}

	if strings.HasPrefix(normalized, "next week ") {
		weekday := strings.TrimPrefix(normalized, "next week ")
		if wd, ok := weekdayNames[weekday]; ok {
			// The occurrence in calendar-week +1 (weeks starting Sunday),
			// not "the next occurrence after reference+7d": that would
			// overshoot by a week when reference already falls on wd.
			days := 7 - int(reference.Weekday()) + int(wd)
			return startOfDay(reference.AddDate(0, 0, days)), true
		}
	}

	if strings.HasPrefix(normalized, "next ") {
		name := strings.TrimPrefix(normalized, "next ")
		if wd, ok := weekdayNames[name]; ok {
			return nextOccurrence(reference, wd), true
		}
	}

	if strings.HasPrefix(normalized, "by the end of ") {
		switch strings.TrimPrefix(normalized, "by the end of ") {
		case "day":
			return endOfDay(reference), true
		case "week":
			return nextSundayEndOfDay(reference), true
		case "month":
			return endOfMonth(reference), true
		case "year":
			return endOfDay(time.Date(reference.Year(), time.December, 31, 0, 0, 0, 0, reference.Location())), true
		}
	}

	if t, ok := parseInPhrase(normalized, reference); ok {
		return t, true
	}
	if t, ok := parseFromNowPhrase(normalized, reference); ok {
		return t, true
	}

	if t, err := time.Parse(time.RFC3339, expression); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", strings.TrimSpace(expression)); err == nil {
		return t, true
	}

	return time.Time{}, false
}

func startOfDay(r time.Time) time.Time {
	return time.Date(r.Year(), r.Month(), r.Day(), 0, 0, 0, 0, r.Location())
}

// nextOccurrence returns the next date (strictly after reference) that
// falls on weekday wd. If reference already is wd, it rolls forward a
// full week: "next monday" said on a monday means in seven days, not
// today.
func nextOccurrence(reference time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(reference.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return startOfDay(reference.AddDate(0, 0, days))
}

// parseInPhrase handles "in N <unit>".
func parseInPhrase(normalized string, reference time.Time) (time.Time, bool) {
	if !strings.HasPrefix(normalized, "in ") {
		return time.Time{}, false
	}
	return parseQuantityUnit(strings.TrimPrefix(normalized, "in "), reference)
}

// parseFromNowPhrase handles "N <unit> from now".
func parseFromNowPhrase(normalized string, reference time.Time) (time.Time, bool) {
	const suffix = " from now"
	if !strings.HasSuffix(normalized, suffix) {
		return time.Time{}, false
	}
	return parseQuantityUnit(strings.TrimSuffix(normalized, suffix), reference)
}

func parseQuantityUnit(phrase string, reference time.Time) (time.Time, bool) {
	fields := strings.Fields(phrase)
	if len(fields) != 2 {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, false
	}
	switch fields[1] {
	case "month", "months":
		return reference.AddDate(0, n, 0), true
	case "year", "years":
		return reference.AddDate(n, 0, 0), true
	}
	unit, ok := unitWords[fields[1]]
	if !ok {
		return time.Time{}, false
	}
	return reference.Add(time.Duration(n) * unit), true
}
