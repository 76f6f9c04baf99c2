// Package timeutil provides calendar-date helpers used by the streak,
// goal-period, and KPI logic. All arithmetic is done in UTC so that the
// same activity timestamp always maps to the same calendar day regardless
// of where a worker instance runs.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// Date formats used across the engine.
const (
	// DateFormat is the canonical YYYY-MM-DD day key.
	DateFormat = "2006-01-02"

	// DateTimeFormat is used in human-readable log output.
	DateTimeFormat = "2006-01-02 15:04:05"
)

// ToDay truncates a timestamp to its UTC calendar day.
func ToDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns 00:00:00 UTC of the given day.
func StartOfDay(t time.Time) time.Time {
	return ToDay(t)
}

// EndOfDay returns 23:59:59.999999999 UTC of the given day.
func EndOfDay(t time.Time) time.Time {
	return ToDay(t).Add(24*time.Hour - time.Nanosecond)
}

// StartOfWeek returns 00:00:00 UTC of the Monday of the given day's ISO week.
func StartOfWeek(t time.Time) time.Time {
	day := ToDay(t)
	weekday := int(day.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday belongs to the preceding Monday
	}
	return day.AddDate(0, 0, -(weekday - 1))
}

// EndOfWeek returns the last instant of the Sunday of the given day's ISO week.
func EndOfWeek(t time.Time) time.Time {
	return StartOfWeek(t).AddDate(0, 0, 7).Add(-time.Nanosecond)
}

// IsSameDay reports whether two timestamps fall on the same UTC calendar day.
func IsSameDay(a, b time.Time) bool {
	return ToDay(a).Equal(ToDay(b))
}

// IsNextDay reports whether b falls exactly one calendar day after a.
func IsNextDay(a, b time.Time) bool {
	return DaysBetween(a, b) == 1
}

// DaysBetween returns the signed number of whole calendar days from a to b.
// Positive when b is after a.
func DaysBetween(a, b time.Time) int {
	da := ToDay(a)
	db := ToDay(b)
	return int(db.Sub(da).Hours() / 24)
}

// DayKey formats a timestamp as its canonical YYYY-MM-DD day key.
func DayKey(t time.Time) string {
	return ToDay(t).Format(DateFormat)
}

// ParseDayKey parses a YYYY-MM-DD day key back into a UTC day.
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(DateFormat, key, time.UTC)
}

// DaysAgo returns the UTC day n days before today.
func DaysAgo(n int) time.Time {
	return ToDay(time.Now()).AddDate(0, 0, -n)
}

// Today returns the current UTC calendar day.
func Today() time.Time {
	return ToDay(time.Now())
}
