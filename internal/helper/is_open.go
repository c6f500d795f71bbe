package helper

import (
	"strings"
	"time"
)

// IsQueueOpen reports whether now falls inside the opening hours openAt to
// closeAt (HH:MM or HH:MM:SS) in the clinic's timezone. A closing time
// earlier than the opening time means the window crosses midnight.
func IsQueueOpen(now time.Time, openAt, closeAt, timezone string) bool {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return false
	}
	now = now.In(loc)

	openTime, ok := clockTime(now, openAt, loc)
	if !ok {
		return false
	}
	closeTime, ok := clockTime(now, closeAt, loc)
	if !ok {
		return false
	}

	if closeTime.Before(openTime) {
		closeTime = closeTime.Add(24 * time.Hour)

		// still inside yesterday's window
		if now.Before(openTime) {
			openTime = openTime.Add(-24 * time.Hour)
			closeTime = closeTime.Add(-24 * time.Hour)
		}
	}

	return !now.Before(openTime) && now.Before(closeTime)
}

// clockTime places an HH:MM[:SS] time of day on the date of now.
func clockTime(now time.Time, value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if strings.Count(value, ":") == 1 {
		value += ":00"
	}
	t, err := time.ParseInLocation("15:04:05", value, loc)
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), true
}
