package datetime

import (
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// GenerateCronExpression maps a small set of recurring-schedule phrases
// to standard five-field cron expressions. Input that already parses as
// a cron expression passes through unchanged; anything else falls back
// to daily-at-midnight.
func GenerateCronExpression(expression string) string {
	switch strings.ToLower(strings.TrimSpace(expression)) {
	case "every minute":
		return "* * * * *"
	case "every hour", "hourly":
		return "0 * * * *"
	case "every day", "daily":
		return "0 0 * * *"
	case "every week", "weekly":
		return "0 0 * * 0"
	case "every month", "monthly":
		return "0 0 1 * *"
	case "every year", "yearly", "annually":
		return "0 0 1 1 *"
	case "every weekday", "weekdays":
		return "0 0 * * 1-5"
	case "weekends", "every weekend":
		return "0 0 * * 0,6"
	case "every morning":
		return "0 9 * * *"
	case "every evening":
		return "0 18 * * *"
	case "twice daily":
		return "0 9,18 * * *"
	case "every hour during work hours":
		return "0 9-17 * * 1-5"
	}
	if _, err := cronParser.Parse(expression); err == nil {
		return expression
	}
	return "0 0 * * *"
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// GetNextExecutionFromCron resolves the next activation of a cron
// expression strictly after reference, using robfig/cron/v3's schedule
// parser. It returns ok=false for a malformed expression rather than
// erroring, matching the rest of this package's parser contract.
func GetNextExecutionFromCron(expr string, reference time.Time) (time.Time, bool) {
	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return time.Time{}, false
	}
	return schedule.Next(reference), true
}
