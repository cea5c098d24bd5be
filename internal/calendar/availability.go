package calendar

import (
	"time"

	"github.com/room-display/backend/internal/storage/models"
)

// Availability is a room's state at one instant.
type Availability struct {
	IsAvailable bool          `json:"is_available"`
	Current     *models.Event `json:"current_event"`
	Next        *models.Event `json:"next_event"`
	// BusyUntil is the end of the back-to-back run starting with Current.
	BusyUntil *time.Time `json:"busy_until,omitempty"`
	// FreeUntil is the start of Next while the room is free.
	FreeUntil *time.Time `json:"free_until,omitempty"`
}

// Evaluate computes availability at now from events sorted by start.
func Evaluate(events []models.Event, now time.Time) Availability {
	var a Availability

	for i := range events {
		ev := events[i]
		if a.Current == nil && ev.IsActive(now) {
			a.Current = &ev
			continue
		}
		if ev.Start.After(now) {
			a.Next = &ev
			break
		}
	}

	a.IsAvailable = a.Current == nil

	if a.Current != nil {
		until := a.Current.End
		for _, ev := range events {
			if ev.Start.After(until) || !ev.End.After(until) {
				continue
			}
			until = ev.End
		}
		a.BusyUntil = &until
	} else if a.Next != nil {
		until := a.Next.Start
		a.FreeUntil = &until
	}

	return a
}
