package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/room-display/backend/internal/api/middleware"
	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/calendar"
	"github.com/room-display/backend/internal/query"
	"github.com/room-display/backend/internal/storage/models"
)

// Settings reads defaults for omitted request fields.
type Settings interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, key, value string) error
	Int(ctx context.Context, key string, def int) int
	String(ctx context.Context, key, def string) string
}

// maxExportDays bounds the ICS export window.
const maxExportDays = 366

// DayEvents returns a room's schedule for ?date=YYYY-MM-DD (default today)
// with its availability when the date is today.
func DayEvents(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := q.Day(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("date"))
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// WeekEvents returns seven days from ?start=YYYY-MM-DD (default today).
func WeekEvents(q *query.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := q.Week(r.Context(), mux.Vars(r)["id"], r.URL.Query().Get("start"))
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// MonthEvents returns the month grid for ?year=&month= (default current
// month). Weeks begin on ?week_start= or the week_start setting.
func MonthEvents(q *query.Service, settings Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		year, ok := queryInt(r, "year", 0)
		if !ok || year < 0 || year > 9999 {
			middleware.WriteAppError(w, apperror.Invalid("year", "must be a number"))
			return
		}
		month, ok := queryInt(r, "month", 0)
		if !ok {
			middleware.WriteAppError(w, apperror.Invalid("month", "must be a number"))
			return
		}

		weekStart := r.URL.Query().Get("week_start")
		if weekStart == "" {
			weekStart = settings.String(ctx, models.SettingWeekStart, "sunday")
		}

		view, err := q.MonthView(ctx, mux.Vars(r)["id"], year, time.Month(month), calendar.ParseWeekStart(weekStart))
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

// CalendarExport renders the room's events from today for ?days= days
// (default 30) as an iCalendar file.
func CalendarExport(q *query.Service, rooms RoomStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := mux.Vars(r)["id"]

		days, ok := queryInt(r, "days", 30)
		if !ok || days < 1 || days > maxExportDays {
			middleware.WriteAppError(w, apperror.Invalid("days", fmt.Sprintf("must be between 1 and %d", maxExportDays)))
			return
		}

		room, err := rooms.GetByID(ctx, id)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		start := q.Today(*room)
		end := start.AddDate(0, 0, days)

		_, events, err := q.Range(ctx, id, start, end)
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		var buf bytes.Buffer
		if err := calendar.WriteICS(&buf, *room, events, time.Now()); err != nil {
			middleware.WriteAppError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", room.Name+".ics"))
		w.Write(buf.Bytes())
	}
}
