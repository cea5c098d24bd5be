// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/room-display/backend/internal/api/middleware"
	"github.com/room-display/backend/internal/storage/models"
	"github.com/room-display/backend/internal/websocket"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody decodes a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
	return false
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// StatusRefresher re-evaluates and publishes a room's availability.
type StatusRefresher interface {
	Refresh(ctx context.Context, roomID string) (*websocket.RoomStatusPayload, error)
}

// Notifier pushes booking changes to kiosks. Either field may be nil.
type Notifier struct {
	Events *websocket.EventBroadcaster
	Status StatusRefresher
}

func (n *Notifier) created(ev models.Event) {
	if n == nil {
		return
	}
	n.Events.BroadcastBookingCreated(ev)
	n.refresh(ev.RoomID)
}

func (n *Notifier) updated(ev models.Event) {
	if n == nil {
		return
	}
	n.Events.BroadcastBookingUpdated(ev)
	n.refresh(ev.RoomID)
}

func (n *Notifier) cancelled(roomID, eventID string) {
	if n == nil {
		return
	}
	n.Events.BroadcastBookingCancelled(roomID, eventID)
	n.refresh(roomID)
}

func (n *Notifier) recurring(roomID string, created, skipped int) {
	if n == nil {
		return
	}
	n.Events.BroadcastRecurringBooked(roomID, created, skipped)
	n.refresh(roomID)
}

// refresh runs detached from the request so a slow provider does not delay
// the response.
func (n *Notifier) refresh(roomID string) {
	if n.Status == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		n.Status.Refresh(ctx, roomID)
	}()
}
