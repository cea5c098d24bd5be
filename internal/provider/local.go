package provider

import (
	"context"
	"time"

	"github.com/room-display/backend/internal/storage/models"
)

// EventStore is the persistence used by the local provider.
type EventStore interface {
	ListOverlapping(ctx context.Context, roomID string, start, end time.Time) ([]models.Event, error)
	Create(ctx context.Context, ev *models.Event) error
	UpdateEnd(ctx context.Context, roomID, id string, end time.Time) (*models.Event, error)
	Delete(ctx context.Context, roomID, id string) error
}

// Local keeps events in the service's own database.
type Local struct {
	store EventStore
}

// NewLocal creates a local provider over store.
func NewLocal(store EventStore) *Local {
	return &Local{store: store}
}

func (l *Local) Kind() string { return models.ProviderLocal }

func (l *Local) ListEvents(ctx context.Context, room models.Room, start, end time.Time) ([]models.Event, error) {
	return l.store.ListOverlapping(ctx, room.ID, start, end)
}

func (l *Local) CreateEvent(ctx context.Context, room models.Room, ev models.Event) (*models.Event, error) {
	ev.RoomID = room.ID
	if err := l.store.Create(ctx, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (l *Local) UpdateEventEnd(ctx context.Context, room models.Room, eventID string, end time.Time) (*models.Event, error) {
	return l.store.UpdateEnd(ctx, room.ID, eventID, end)
}

func (l *Local) DeleteEvent(ctx context.Context, room models.Room, eventID string) error {
	return l.store.Delete(ctx, room.ID, eventID)
}
