package timeutil

import "time"

// Now returns the current time in UTC.
// Staleness math on risk verdicts compares against database timestamps,
// which are stored in UTC, so the clock must be too.
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time.Time to UTC if it isn't already
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}
