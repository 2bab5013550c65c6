package datetime

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize/english"
)

// FormatDate renders date using one of a small set of named formats.
// Unknown formats fall back to "datetime".
func FormatDate(date time.Time, format string) string {
	switch format {
	case "iso":
		return date.UTC().Format(time.RFC3339)
	case "short":
		return date.Format("2006-01-02")
	case "long":
		return date.Format("Monday, January 2, 2006")
	case "time":
		return date.Format("15:04:05")
	default: // "datetime" and anything unrecognised
		return date.Format("2006-01-02 15:04:05")
	}
}

// GetHumanReadableInterval describes the gap between start and end in
// the vein of humanize.RelTime, e.g. "2 days", "3 hours and 14 minutes",
// or "now" when the two instants coincide.
func GetHumanReadableInterval(start, end time.Time) string {
	d := end.Sub(start)
	suffix := ""
	if d < 0 {
		d = -d
		suffix = " ago"
	}
	if d < time.Second {
		return "now"
	}

	days := int(d.Hours() / 24)
	remainder := d - time.Duration(days)*24*time.Hour
	hours := int(remainder.Hours())
	remainder -= time.Duration(hours) * time.Hour
	minutes := int(remainder.Minutes())

	switch {
	case days > 0 && hours > 0:
		return fmt.Sprintf("%s and %s%s", pluralUnit(days, "day"), pluralUnit(hours, "hour"), suffix)
	case days > 0:
		return pluralUnit(days, "day") + suffix
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%s and %s%s", pluralUnit(hours, "hour"), pluralUnit(minutes, "minute"), suffix)
	case hours > 0:
		return pluralUnit(hours, "hour") + suffix
	case minutes > 0:
		return pluralUnit(minutes, "minute") + suffix
	default:
		return pluralUnit(int(d.Seconds()), "second") + suffix
	}
}

func pluralUnit(n int, unit string) string {
	return english.Plural(n, unit, unit+"s")
}
