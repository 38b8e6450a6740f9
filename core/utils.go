package core

import (
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Clock returns the current time. Services take one so tests can move time around.
type Clock func() time.Time

// SystemClock is the wall clock, in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// StartOfDay returns midnight UTC of the day of t.
func StartOfDay(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// DaysFrom returns t shifted by n whole days.
func DaysFrom(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * 24 * time.Hour)
}
