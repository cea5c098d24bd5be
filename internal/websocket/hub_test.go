package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/room-display/backend/internal/storage/models"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil)
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data, ok := <-c.Send():
		if !ok {
			t.Fatal("send channel closed")
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decoding %s: %v", data, err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send():
		t.Fatalf("unexpected message %s", data)
	case <-time.After(30 * time.Millisecond):
	}
}

func TestHubRoutesByRoom(t *testing.T) {
	h := startHub(t)
	b := NewEventBroadcaster(h)

	everything := NewClient(h)
	roomA := NewClient(h)
	roomA.Subscribe("a")
	roomB := NewClient(h)
	roomB.Subscribe("b")

	for _, c := range []*Client{everything, roomA, roomB} {
		h.Register(c)
	}

	b.BroadcastBookingCreated(models.Event{ID: "e1", RoomID: "a", Title: "Standup"})

	msg := receive(t, everything)
	if msg.Type != TypeBookingCreated || msg.RoomID != "a" {
		t.Errorf("unfiltered client got %+v", msg)
	}
	msg = receive(t, roomA)
	if msg.Type != TypeBookingCreated {
		t.Errorf("room a subscriber got %s", msg.Type)
	}
	expectNothing(t, roomB)

	b.BroadcastNotification("info", "Maintenance", "restart at 18:00", true)
	for _, c := range []*Client{everything, roomA, roomB} {
		if msg := receive(t, c); msg.Type != TypeNotification {
			t.Errorf("notification delivered as %s", msg.Type)
		}
	}
}

func TestHubUnregisterClosesClient(t *testing.T) {
	h := startHub(t)
	c := NewClient(h)
	h.Register(c)
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d", h.ClientCount())
		}
		time.Sleep(time.Millisecond)
	}

	h.Unregister(c)
	select {
	case _, ok := <-c.Send():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
	if n := h.ClientCount(); n != 0 {
		t.Errorf("ClientCount after unregister = %d", n)
	}
}

func TestHubStopDisconnectsClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := NewClient(h)
	h.Register(c)
	cancel()
	<-stopped

	if _, ok := <-c.Send(); ok {
		t.Error("client still open after hub stopped")
	}

	late := NewClient(h)
	h.Register(late)
	h.Unregister(late)
	if _, ok := <-late.Send(); ok {
		t.Error("late client not closed")
	}
}

func TestSubscriptions(t *testing.T) {
	c := NewClient(nil)
	if _, all := c.Subscriptions(); !all {
		t.Fatal("new client should receive every room")
	}

	c.Subscribe("b", "a")
	ids, all := c.Subscriptions()
	if all || len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("after subscribe: %v all=%v", ids, all)
	}
	if !c.wants("a") || c.wants("c") || !c.wants("") {
		t.Error("wants does not follow subscriptions")
	}

	c.Unsubscribe("a")
	if c.wants("a") {
		t.Error("still subscribed to a")
	}

	c.Subscribe(AllRooms)
	if !c.wants("c") {
		t.Error("AllRooms should restore every room")
	}

	c.Unsubscribe(AllRooms)
	if ids, all := c.Subscriptions(); all || len(ids) != 0 {
		t.Errorf("after unsubscribe all: %v all=%v", ids, all)
	}
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want MessageType
	}{
		{"subscribe", `{"type":"subscribe","room_ids":["r1"]}`, TypeSubscribeAck},
		{"unsubscribe", `{"type":"unsubscribe","room_ids":["r1"]}`, TypeSubscribeAck},
		{"ping", `{"type":"ping"}`, TypePong},
		{"unknown", `{"type":"dance"}`, TypeError},
		{"malformed", `{not json`, TypeError},
	}

	c := NewClient(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.HandleCommand([]byte(tt.raw))
			if msg := receive(t, c); msg.Type != tt.want {
				t.Errorf("reply = %s, want %s", msg.Type, tt.want)
			}
		})
	}
}

func TestSubscribeAckListsRooms(t *testing.T) {
	c := NewClient(nil)
	c.HandleCommand([]byte(`{"type":"subscribe","room_ids":["r2","r1"]}`))

	data := <-c.Send()
	var msg struct {
		Type    MessageType         `json:"type"`
		Payload SubscribeAckPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decoding ack: %v", err)
	}
	if msg.Payload.All || len(msg.Payload.RoomIDs) != 2 || msg.Payload.RoomIDs[0] != "r1" {
		t.Errorf("ack payload = %+v", msg.Payload)
	}
}

func TestNilBroadcasterIsSafe(t *testing.T) {
	var b *EventBroadcaster
	b.BroadcastBookingCancelled("r1", "e1")
	b.BroadcastRoomStatus(RoomStatusPayload{RoomID: "r1"})
}
