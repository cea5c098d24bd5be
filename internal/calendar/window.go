// Package calendar holds the pure scheduling functions: day, week and month
// windows, event classification, availability and recurrence expansion.
package calendar

import (
	"strings"
	"time"

	"github.com/room-display/backend/internal/apperror"
)

// DateLayout is the calendar-date format used in requests and view keys.
const DateLayout = "2006-01-02"

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// DayRange returns [00:00, next 00:00) of day in loc.
// The range is 23 or 25 hours long on DST transition days.
func DayRange(day time.Time, loc *time.Location) (time.Time, time.Time) {
	start := StartOfDay(day, loc)
	return start, start.AddDate(0, 0, 1)
}

// WeekDays returns the seven consecutive days beginning with start's day.
func WeekDays(start time.Time, loc *time.Location) []time.Time {
	first := StartOfDay(start, loc)
	days := make([]time.Time, 7)
	for i := range days {
		days[i] = first.AddDate(0, 0, i)
	}
	return days
}

// MonthGrid returns every day of the displayed month grid: the month's days
// padded with days from adjacent months so the grid is whole weeks that
// begin on weekStart.
func MonthGrid(year int, month time.Month, loc *time.Location, weekStart time.Weekday) []time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)

	lead := (int(first.Weekday()) - int(weekStart) + 7) % 7
	trail := (int(weekStart) + 6 - int(last.Weekday()) + 7) % 7

	gridStart := first.AddDate(0, 0, -lead)
	total := lead + last.Day() + trail

	days := make([]time.Time, total)
	for i := range days {
		days[i] = gridStart.AddDate(0, 0, i)
	}
	return days
}

// DateKey formats t's calendar day as YYYY-MM-DD in t's own location.
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, apperror.Invalid("date", "expected YYYY-MM-DD")
	}
	return t, nil
}

// ParseWeekStart maps a weekday name ("sunday", "Mon", ...) to a time.Weekday.
// Unknown names fall back to Sunday.
func ParseWeekStart(name string) time.Weekday {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 3 {
		return time.Sunday
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.HasPrefix(strings.ToLower(d.String()), name[:3]) {
			return d
		}
	}
	return time.Sunday
}
