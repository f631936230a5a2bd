package service

import (
	"strconv"
	"time"
)

// RelativeTime renders t relative to now: "Just now", "N minutes ago",
// "N hours ago", "N days ago", or an absolute short date after a week.
// Timestamps in the future count as just now.
func RelativeTime(now, t time.Time) string {
	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "Just now"
	case elapsed < time.Hour:
		return ago(int(elapsed/time.Minute), "minute")
	case elapsed < 24*time.Hour:
		return ago(int(elapsed/time.Hour), "hour")
	case elapsed < 7*24*time.Hour:
		return ago(int(elapsed/(24*time.Hour)), "day")
	default:
		return t.UTC().Format("Jan 2, 2006")
	}
}

func ago(n int, unit string) string {
	if n != 1 {
		unit += "s"
	}
	return strconv.Itoa(n) + " " + unit + " ago"
}
