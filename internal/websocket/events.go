package websocket

import (
	"go.uber.org/zap"

	"github.com/room-display/backend/internal/storage/models"
)

// EventBroadcaster publishes typed room messages through a Hub.
// A nil broadcaster discards everything.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// BroadcastBookingCreated announces a committed booking.
func (b *EventBroadcaster) BroadcastBookingCreated(ev models.Event) {
	b.broadcast(NewMessage(TypeBookingCreated, ev.RoomID, BookingPayload{Event: ev}))
}

// BroadcastBookingUpdated announces an extended or early-ended booking.
func (b *EventBroadcaster) BroadcastBookingUpdated(ev models.Event) {
	b.broadcast(NewMessage(TypeBookingUpdated, ev.RoomID, BookingPayload{Event: ev}))
}

// BroadcastBookingCancelled announces a deleted booking.
func (b *EventBroadcaster) BroadcastBookingCancelled(roomID, eventID string) {
	b.broadcast(NewMessage(TypeBookingCancelled, roomID, BookingCancelledPayload{EventID: eventID}))
}

// BroadcastRecurringBooked summarizes a recurring booking batch.
func (b *EventBroadcaster) BroadcastRecurringBooked(roomID string, created, skipped int) {
	b.broadcast(NewMessage(TypeRecurringBooked, roomID, RecurringBookedPayload{
		Created: created,
		Skipped: skipped,
	}))
}

// BroadcastRoomStatus sends a room's availability.
func (b *EventBroadcaster) BroadcastRoomStatus(status RoomStatusPayload) {
	b.broadcast(NewMessage(TypeRoomStatusChanged, status.RoomID, status))
}

// BroadcastNotification sends a notification to every client.
func (b *EventBroadcaster) BroadcastNotification(level, title, message string, dismissible bool) {
	b.broadcast(NewMessage(TypeNotification, "", NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: dismissible,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	if b == nil || b.hub == nil {
		return
	}
	data, err := msg.JSON()
	if err != nil {
		b.hub.logger.Error("encoding websocket message", zap.String("type", string(msg.Type)), zap.Error(err))
		return
	}
	b.hub.BroadcastToRoom(msg.RoomID, data)
}
