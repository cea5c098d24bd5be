package models

import (
	"time"
)

// Event is a single booking on a room's timeline.
// ID is the origin's native identifier (a local UUID, or the provider's event id),
// which is what update and delete calls round-trip.
type Event struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Organizer   string    `json:"organizer,omitempty"`
	Description string    `json:"description,omitempty"`
	Origin      string    `json:"provider"`
}

// Duration returns the length of the event.
func (e *Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// IsActive reports whether now falls inside [Start, End).
func (e *Event) IsActive(now time.Time) bool {
	return !now.Before(e.Start) && now.Before(e.End)
}

// Overlaps reports whether [start, end) strictly overlaps the event.
// Touching intervals (one ends exactly when the other starts) do not overlap.
func (e *Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && e.End.After(start)
}
