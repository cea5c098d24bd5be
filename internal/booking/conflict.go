package booking

import (
	"time"

	"github.com/room-display/backend/internal/storage/models"
)

// FindConflict returns the first event in existing that strictly overlaps
// [start, end), ignoring excludeID. Back-to-back events do not conflict.
func FindConflict(existing []models.Event, start, end time.Time, excludeID string) *models.Event {
	for i := range existing {
		ev := existing[i]
		if excludeID != "" && ev.ID == excludeID {
			continue
		}
		if ev.Overlaps(start, end) {
			return &ev
		}
	}
	return nil
}
