// Package websocket pushes room schedule changes to connected kiosks.
// Clients receive every room's messages until they subscribe to specific rooms.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/room-display/backend/internal/logging"
)

type outbound struct {
	roomID string
	data   []byte
}

// Hub maintains the set of active WebSocket clients and routes messages to
// the clients subscribed to each room.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logging.OrNop(logger),
	}
}

// Run starts the hub's main event loop and returns when ctx is done.
// Remaining clients are disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				client.close()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client connected", zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("websocket client disconnected", zap.Int("clients", n))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg.roomID) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// Slow consumer; drop it rather than stall every kiosk.
					client.close()
					delete(h.clients, client)
					h.logger.Warn("dropping slow websocket client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(message []byte) {
	h.BroadcastToRoom("", message)
}

// BroadcastToRoom sends a message to the clients subscribed to roomID.
// An empty roomID reaches every client.
func (h *Hub) BroadcastToRoom(roomID string, message []byte) {
	select {
	case h.broadcast <- outbound{roomID: roomID, data: message}:
	default:
		h.logger.Warn("broadcast channel full, dropping message", zap.String("room_id", roomID))
	}
}

// Register adds a client to the hub. A client registered after the hub
// stopped is closed immediately.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client represents a WebSocket client connection.
type Client struct {
	hub  *Hub
	send chan []byte

	mu     sync.RWMutex
	all    bool
	rooms  map[string]bool
	closed bool
}

// NewClient creates a new WebSocket client subscribed to every room.
func NewClient(hub *Hub) *Client {
	return &Client{
		hub:   hub,
		send:  make(chan []byte, 256),
		all:   true,
		rooms: make(map[string]bool),
	}
}

// Send returns the send channel for the client.
func (c *Client) Send() chan []byte {
	return c.send
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) wants(roomID string) bool {
	if roomID == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.all || c.rooms[roomID]
}

// Subscribe narrows the client to the given rooms, adding to any previous
// room subscriptions. AllRooms restores the unfiltered feed.
func (c *Client) Subscribe(roomIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range roomIDs {
		if id == AllRooms {
			c.all = true
			continue
		}
		if id != "" {
			c.rooms[id] = true
			c.all = false
		}
	}
}

// Unsubscribe removes room subscriptions. AllRooms clears every subscription.
func (c *Client) Unsubscribe(roomIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range roomIDs {
		if id == AllRooms {
			c.all = false
			c.rooms = make(map[string]bool)
			continue
		}
		delete(c.rooms, id)
	}
}

// Subscriptions returns the subscribed room ids in sorted order and whether
// the client receives every room.
func (c *Client) Subscriptions() ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, c.all
}

// HandleCommand applies a client command and queues the reply on the
// client's send channel.
func (c *Client) HandleCommand(raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		c.reply(NewMessage(TypeError, "", ErrorPayload{Code: "bad_request", Message: "malformed command"}))
		return
	}

	switch cmd.Type {
	case TypeSubscribe:
		c.Subscribe(cmd.RoomIDs...)
		c.ack()
	case TypeUnsubscribe:
		c.Unsubscribe(cmd.RoomIDs...)
		c.ack()
	case TypePing:
		c.reply(NewMessage(TypePong, "", nil))
	default:
		c.reply(NewMessage(TypeError, "", ErrorPayload{
			Code:         "unknown_command",
			Message:      "unsupported command type",
			OriginalType: string(cmd.Type),
		}))
	}
}

func (c *Client) ack() {
	ids, all := c.Subscriptions()
	c.reply(NewMessage(TypeSubscribeAck, "", SubscribeAckPayload{RoomIDs: ids, All: all}))
}

func (c *Client) reply(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		return
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
