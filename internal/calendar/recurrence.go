package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/room-display/backend/internal/apperror"
)

// MaxRecurrenceSpan bounds the date range a single recurring booking may cover.
const MaxRecurrenceSpan = 366 * 24 * time.Hour

// MaxBookingMinutes is the longest single booking accepted.
const MaxBookingMinutes = 24 * 60

// Slot is one candidate booking interval.
type Slot struct {
	Start time.Time
	End   time.Time
}

// RecurrencePattern expands to one slot per matching weekday in
// [StartDate, EndDate], both inclusive calendar dates in Location.
type RecurrencePattern struct {
	Weekdays  []int // 0 = Sunday ... 6 = Saturday
	Hour      int
	Minute    int
	Duration  time.Duration
	StartDate time.Time
	EndDate   time.Time
	Location  *time.Location
}

var rruleWeekdays = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// Validate checks the pattern's fields.
func (p RecurrencePattern) Validate() error {
	if len(p.Weekdays) == 0 {
		return apperror.Invalid("days", "select at least one weekday")
	}
	for _, d := range p.Weekdays {
		if d < 0 || d > 6 {
			return apperror.Invalid("days", fmt.Sprintf("weekday %d out of range 0-6", d))
		}
	}
	if p.Hour < 0 || p.Hour > 23 {
		return apperror.Invalid("hour", "must be between 0 and 23")
	}
	if p.Minute < 0 || p.Minute > 59 {
		return apperror.Invalid("minute", "must be between 0 and 59")
	}
	if p.Duration < time.Minute || p.Duration > MaxBookingMinutes*time.Minute {
		return apperror.Invalid("duration", fmt.Sprintf("must be between 1 and %d minutes", MaxBookingMinutes))
	}
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return apperror.Invalid("start_date", "start and end dates are required")
	}
	if p.EndDate.Before(p.StartDate) {
		return apperror.Invalid("end_date", "must not precede start date")
	}
	if p.EndDate.Sub(p.StartDate) > MaxRecurrenceSpan {
		return apperror.Invalid("end_date", "range may span at most 366 days")
	}
	return nil
}

// Expand returns the pattern's slots in chronological order. Wall-clock
// time is preserved across DST changes.
func (p RecurrencePattern) Expand() ([]Slot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	loc := p.Location
	if loc == nil {
		loc = time.Local
	}

	first := StartOfDay(p.StartDate, loc)
	last := StartOfDay(p.EndDate, loc)
	dtstart := time.Date(first.Year(), first.Month(), first.Day(), p.Hour, p.Minute, 0, 0, loc)
	until := time.Date(last.Year(), last.Month(), last.Day(), 23, 59, 59, 0, loc)

	days := make([]rrule.Weekday, 0, len(p.Weekdays))
	seen := make(map[int]bool, len(p.Weekdays))
	for _, d := range p.Weekdays {
		if seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, rruleWeekdays[d])
	}

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   dtstart,
		Byweekday: days,
		Until:     until,
	})
	if err != nil {
		return nil, fmt.Errorf("building recurrence rule: %w", err)
	}

	starts := rule.All()
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })

	slots := make([]Slot, 0, len(starts))
	for _, s := range starts {
		s = s.In(loc)
		slots = append(slots, Slot{Start: s, End: s.Add(p.Duration)})
	}
	return slots, nil
}
