package websocket

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/room-display/backend/internal/storage/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeRoomStatusChanged MessageType = "room.status_changed"
	TypeBookingCreated    MessageType = "booking.created"
	TypeBookingUpdated    MessageType = "booking.updated"
	TypeBookingCancelled  MessageType = "booking.cancelled"
	TypeRecurringBooked   MessageType = "booking.recurring_created"
	TypeNotification      MessageType = "notification"

	// Client -> Server command types
	TypeSubscribe   MessageType = "subscribe"
	TypeUnsubscribe MessageType = "unsubscribe"
	TypePing        MessageType = "ping"

	// Server -> Client response types
	TypeSubscribeAck MessageType = "subscribe.ack"
	TypePong         MessageType = "pong"
	TypeError        MessageType = "error"
)

// AllRooms subscribes a client to every room.
const AllRooms = "*"

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	RoomID    string      `json:"room_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, roomID string, payload any) Message {
	return Message{
		Type:      msgType,
		RoomID:    roomID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Command is a client -> server message.
type Command struct {
	Type    MessageType `json:"type"`
	RoomIDs []string    `json:"room_ids,omitempty"`
}

// RoomStatusPayload is the payload for room.status_changed events.
type RoomStatusPayload struct {
	RoomID       string        `json:"room_id"`
	RoomName     string        `json:"room_name"`
	IsAvailable  bool          `json:"is_available"`
	CurrentEvent *models.Event `json:"current_event"`
	NextEvent    *models.Event `json:"next_event"`
	BusyUntil    *time.Time    `json:"busy_until,omitempty"`
	FreeUntil    *time.Time    `json:"free_until,omitempty"`
}

// BookingPayload is the payload for booking.created and booking.updated events.
type BookingPayload struct {
	Event models.Event `json:"event"`
}

// BookingCancelledPayload is the payload for booking.cancelled events.
type BookingCancelledPayload struct {
	EventID string `json:"event_id"`
}

// RecurringBookedPayload is the payload for booking.recurring_created events.
type RecurringBookedPayload struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// SubscribeAckPayload lists a client's subscriptions after a command.
type SubscribeAckPayload struct {
	RoomIDs []string `json:"room_ids"`
	All     bool     `json:"all"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
