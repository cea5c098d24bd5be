package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/room-display/backend/internal/api/middleware"
	"github.com/room-display/backend/internal/booking"
	"github.com/room-display/backend/internal/calendar"
	"github.com/room-display/backend/internal/query"
	"github.com/room-display/backend/internal/storage/models"
)

// Defaults used when the settings table has no value.
const (
	defaultBookingMinutes   = 30
	defaultExtendMinutes    = 15
	defaultRecurringDays    = 90
	defaultRecurringHour    = 9
	defaultRecurringMinutes = 540
)

// BookRequest books a single slot. Without date and hour the booking starts now.
type BookRequest struct {
	Date        string `json:"date"`
	Hour        *int   `json:"hour"`
	Minute      int    `json:"minute"`
	Duration    int    `json:"duration"`
	Title       string `json:"title"`
	BookerName  string `json:"booker_name"`
	Description string `json:"description"`
}

// RecurringBookRequest books a weekly pattern. Days are 0 (Sunday) to 6.
type RecurringBookRequest struct {
	Days        []int  `json:"days"`
	Hour        *int   `json:"hour"`
	Minute      int    `json:"minute"`
	Duration    int    `json:"duration"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Title       string `json:"title"`
	BookerName  string `json:"booker_name"`
	Description string `json:"description"`
}

// ExtendRequest extends the current meeting by Minutes.
type ExtendRequest struct {
	Minutes int `json:"minutes"`
}

// BookRoom commits a conflict-checked booking.
func BookRoom(engine *booking.Engine, settings Settings, notify *Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req BookRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Duration == 0 {
			req.Duration = settings.Int(ctx, models.SettingDefaultBookingMinutes, defaultBookingMinutes)
		}

		ev, err := engine.Book(ctx, booking.BookingRequest{
			RoomID:      mux.Vars(r)["id"],
			Date:        req.Date,
			Hour:        req.Hour,
			Minute:      req.Minute,
			Duration:    req.Duration,
			Title:       req.Title,
			BookerName:  req.BookerName,
			Description: req.Description,
		})
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		notify.created(*ev)
		writeJSON(w, http.StatusCreated, ev)
	}
}

// BookRecurring commits every non-conflicting occurrence of a weekly pattern
// and reports the skipped ones.
func BookRecurring(engine *booking.Engine, q *query.Service, rooms RoomStore, settings Settings, notify *Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		roomID := mux.Vars(r)["id"]

		var req RecurringBookRequest
		if !decodeBody(w, r, &req) {
			return
		}

		room, err := rooms.GetByID(ctx, roomID)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		hour := defaultRecurringHour
		if req.Hour != nil {
			hour = *req.Hour
		}
		if req.Duration == 0 {
			req.Duration = defaultRecurringMinutes
		}
		today := q.Today(*room)
		if req.StartDate == "" {
			req.StartDate = calendar.DateKey(today)
		}
		if req.EndDate == "" {
			start, err := calendar.ParseDate(req.StartDate, q.Location(*room))
			if err != nil {
				middleware.WriteAppError(w, err)
				return
			}
			days := settings.Int(ctx, models.SettingRecurringDefaultDays, defaultRecurringDays)
			req.EndDate = calendar.DateKey(start.AddDate(0, 0, days))
		}

		result, err := engine.BookRecurring(ctx, booking.RecurringRequest{
			RoomID:      roomID,
			Weekdays:    req.Days,
			Hour:        hour,
			Minute:      req.Minute,
			Duration:    req.Duration,
			StartDate:   req.StartDate,
			EndDate:     req.EndDate,
			Title:       req.Title,
			BookerName:  req.BookerName,
			Description: req.Description,
		})
		if result != nil && len(result.Created) > 0 {
			notify.recurring(roomID, len(result.Created), len(result.Skipped))
		}
		if err != nil {
			// Occurrences committed before the failure stay booked; report them.
			var partial any
			if result != nil {
				partial = result
			}
			middleware.WriteAppErrorWithDetails(w, err, partial)
			return
		}

		status := http.StatusOK
		if len(result.Created) > 0 {
			status = http.StatusCreated
		}
		writeJSON(w, status, result)
	}
}

// ExtendMeeting extends the room's current meeting.
func ExtendMeeting(engine *booking.Engine, settings Settings, notify *Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req ExtendRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Minutes == 0 {
			req.Minutes = settings.Int(ctx, models.SettingDefaultExtendMinutes, defaultExtendMinutes)
		}

		ev, err := engine.ExtendCurrent(ctx, mux.Vars(r)["id"], req.Minutes)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		notify.updated(*ev)
		writeJSON(w, http.StatusOK, ev)
	}
}

// EndMeeting ends the room's current meeting now.
func EndMeeting(engine *booking.Engine, notify *Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := engine.EndCurrent(r.Context(), mux.Vars(r)["id"])
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		if ev.End.After(ev.Start) {
			notify.updated(*ev)
		} else {
			notify.cancelled(ev.RoomID, ev.ID)
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

// CancelBooking deletes one of the room's events.
func CancelBooking(engine *booking.Engine, notify *Notifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		if err := engine.Cancel(r.Context(), vars["id"], vars["eventId"]); err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		notify.cancelled(vars["id"], vars["eventId"])
		w.WriteHeader(http.StatusNoContent)
	}
}
