package models

import "time"

// DateLayout is the durable date format: local time, second precision.
// Lexicographic order on these strings matches chronological order, which the
// next-task and cleanup queries rely on.
const DateLayout = "2006-01-02 15:04:05"

// FormatDate renders a time in the durable format, in local time.
func FormatDate(t time.Time) string {
	return t.Local().Format(DateLayout)
}

// ParseDate parses a durable date string in local time.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.Local)
}
