package shared

import (
	"time"
)

// DateLayout is the ISO date format used for week_of values.
const DateLayout = "2006-01-02"

// RecentSunday returns the most recent Sunday on or before t, truncated to midnight in t's location.
func RecentSunday(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -int(day.Weekday()))
}

// CurrentWeek returns the week_of Sunday containing now. Weeks are reckoned in
// UTC so every module agrees regardless of the server's zone.
func CurrentWeek(now time.Time) time.Time {
	return RecentSunday(now.UTC())
}

// IsSunday reports whether t falls on a Sunday.
func IsSunday(t time.Time) bool {
	return t.Weekday() == time.Sunday
}

// ParseWeekOf parses an ISO date and requires it to be a Sunday.
func ParseWeekOf(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, Validation("week must be a date formatted as YYYY-MM-DD")
	}
	if !IsSunday(t) {
		return time.Time{}, Validation("week %s does not start on a Sunday", raw)
	}
	return t, nil
}

// ValidateWeekOf checks an already parsed week start.
func ValidateWeekOf(t time.Time) error {
	if t.IsZero() {
		return Validation("week is required")
	}
	if !IsSunday(t) {
		return Validation("week %s does not start on a Sunday", t.Format(DateLayout))
	}
	return nil
}
