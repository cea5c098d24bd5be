package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/room-display/backend/internal/storage/models"
)

// FullDayThreshold is the minimum duration rendered with full-day styling.
const FullDayThreshold = 8 * time.Hour

// DisplayEvent is an event decorated for rendering.
type DisplayEvent struct {
	models.Event
	FullDay       bool   `json:"is_full_day"`
	DurationLabel string `json:"duration"`
}

// IsFullDay reports whether ev lasts at least FullDayThreshold.
func IsFullDay(ev models.Event) bool {
	return ev.Duration() >= FullDayThreshold
}

// FormatDuration renders d as "1h 30m", or "45m" when under an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	hours := minutes / 60
	minutes %= 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

// Classify decorates ev for display.
func Classify(ev models.Event) DisplayEvent {
	return DisplayEvent{
		Event:         ev,
		FullDay:       IsFullDay(ev),
		DurationLabel: FormatDuration(ev.Duration()),
	}
}

// ClassifyAll decorates events, preserving order.
func ClassifyAll(events []models.Event) []DisplayEvent {
	out := make([]DisplayEvent, 0, len(events))
	for _, ev := range events {
		out = append(out, Classify(ev))
	}
	return out
}

// SortEvents orders events by start, then end, then ID.
func SortEvents(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		if !a.End.Equal(b.End) {
			return a.End.Before(b.End)
		}
		return a.ID < b.ID
	})
}

// BucketByDay groups events under the DateKey of every day they overlap.
// Every day in days gets a key, empty or not. days must be local midnights
// in loc; an event spanning midnight appears in each day it touches.
func BucketByDay(events []models.Event, days []time.Time, loc *time.Location) map[string][]DisplayEvent {
	sorted := append([]models.Event(nil), events...)
	SortEvents(sorted)

	buckets := make(map[string][]DisplayEvent, len(days))
	for _, day := range days {
		start, end := DayRange(day, loc)
		key := DateKey(start)
		list := []DisplayEvent{}
		for _, ev := range sorted {
			if ev.Overlaps(start, end) {
				list = append(list, Classify(ev))
			}
		}
		buckets[key] = list
	}
	return buckets
}
