package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/room-display/backend/internal/api/middleware"
	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/storage/models"
)

// RoomStore persists rooms.
type RoomStore interface {
	ListActive(ctx context.Context) ([]models.Room, error)
	GetByID(ctx context.Context, id string) (*models.Room, error)
	Create(ctx context.Context, room *models.Room) error
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

// RoomRequest creates or updates a room. Omitted fields keep their value on update.
type RoomRequest struct {
	Name       *string `json:"name"`
	Provider   *string `json:"calendar_provider"`
	CalendarID *string `json:"calendar_id"`
	Timezone   *string `json:"timezone"`
	Active     *bool   `json:"is_active"`
}

func (req RoomRequest) apply(room *models.Room) error {
	if req.Name != nil {
		room.Name = strings.TrimSpace(*req.Name)
	}
	if req.Provider != nil {
		room.Provider = strings.ToLower(strings.TrimSpace(*req.Provider))
	}
	if req.CalendarID != nil {
		room.CalendarID = strings.TrimSpace(*req.CalendarID)
	}
	if req.Timezone != nil {
		room.Timezone = strings.TrimSpace(*req.Timezone)
	}
	if req.Active != nil {
		room.Active = *req.Active
	}

	if room.Name == "" {
		return apperror.Invalid("name", "is required")
	}
	if room.Timezone != "" {
		if _, err := time.LoadLocation(room.Timezone); err != nil {
			return apperror.Invalid("timezone", "unknown zone "+room.Timezone)
		}
	}
	return nil
}

// ListRooms returns all active rooms ordered by name.
func ListRooms(rooms RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := rooms.ListActive(r.Context())
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		if list == nil {
			list = []models.Room{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// CreateRoom adds a room.
func CreateRoom(rooms RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RoomRequest
		if !decodeBody(w, r, &req) {
			return
		}

		room := models.Room{}
		if err := req.apply(&room); err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		if err := rooms.Create(r.Context(), &room); err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		// Rooms are created active; an explicit is_active=false is applied after.
		if req.Active != nil && !*req.Active {
			room.Active = false
			if err := rooms.Update(r.Context(), &room); err != nil {
				middleware.WriteAppError(w, err)
				return
			}
		}

		writeJSON(w, http.StatusCreated, room)
	}
}

// GetRoom returns a single room by ID.
func GetRoom(rooms RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := rooms.GetByID(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

// UpdateRoom changes a room. The provider binding is fixed once the room has events.
func UpdateRoom(rooms RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		room, err := rooms.GetByID(ctx, mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		var req RoomRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := req.apply(room); err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		if err := rooms.Update(ctx, room); err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, room)
	}
}

// DeleteRoom removes a room and its local events.
func DeleteRoom(rooms RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := rooms.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
