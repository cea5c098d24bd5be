package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/room-display/backend/internal/api/middleware"
	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/calendar"
	"github.com/room-display/backend/internal/storage/models"
)

// SettingsResponse represents settings in API responses.
type SettingsResponse struct {
	DefaultBookingMinutes int    `json:"default_booking_minutes"`
	DefaultExtendMinutes  int    `json:"default_extend_minutes"`
	RecurringDefaultDays  int    `json:"recurring_default_days"`
	WeekStart             string `json:"week_start"`
}

// SettingsRequest updates the settings that are present.
type SettingsRequest struct {
	DefaultBookingMinutes *int    `json:"default_booking_minutes"`
	DefaultExtendMinutes  *int    `json:"default_extend_minutes"`
	RecurringDefaultDays  *int    `json:"recurring_default_days"`
	WeekStart             *string `json:"week_start"`
}

func (req SettingsRequest) values() (map[string]string, error) {
	values := make(map[string]string)
	minutes := func(key string, v *int) error {
		if v == nil {
			return nil
		}
		if *v < 1 || *v > calendar.MaxBookingMinutes {
			return apperror.Invalid(key, "must be between 1 and 1440")
		}
		values[key] = strconv.Itoa(*v)
		return nil
	}

	if err := minutes(models.SettingDefaultBookingMinutes, req.DefaultBookingMinutes); err != nil {
		return nil, err
	}
	if err := minutes(models.SettingDefaultExtendMinutes, req.DefaultExtendMinutes); err != nil {
		return nil, err
	}
	if req.RecurringDefaultDays != nil {
		if *req.RecurringDefaultDays < 0 || *req.RecurringDefaultDays > 366 {
			return nil, apperror.Invalid(models.SettingRecurringDefaultDays, "must be between 0 and 366")
		}
		values[models.SettingRecurringDefaultDays] = strconv.Itoa(*req.RecurringDefaultDays)
	}
	if req.WeekStart != nil {
		day := calendar.ParseWeekStart(*req.WeekStart)
		name := strings.ToLower(strings.TrimSpace(*req.WeekStart))
		if len(name) < 3 || !strings.HasPrefix(strings.ToLower(day.String()), name[:3]) {
			return nil, apperror.Invalid(models.SettingWeekStart, "must be a weekday name")
		}
		values[models.SettingWeekStart] = strings.ToLower(day.String())
	}
	return values, nil
}

func readSettings(r *http.Request, settings Settings) SettingsResponse {
	ctx := r.Context()
	return SettingsResponse{
		DefaultBookingMinutes: settings.Int(ctx, models.SettingDefaultBookingMinutes, defaultBookingMinutes),
		DefaultExtendMinutes:  settings.Int(ctx, models.SettingDefaultExtendMinutes, defaultExtendMinutes),
		RecurringDefaultDays:  settings.Int(ctx, models.SettingRecurringDefaultDays, defaultRecurringDays),
		WeekStart:             strings.ToLower(calendar.ParseWeekStart(settings.String(ctx, models.SettingWeekStart, time.Sunday.String())).String()),
	}
}

// GetSettings returns all settings.
func GetSettings(settings Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, readSettings(r, settings))
	}
}

// UpdateSettings updates settings.
func UpdateSettings(settings Settings) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SettingsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		values, err := req.values()
		if err != nil {
			middleware.WriteAppError(w, err)
			return
		}
		for key, value := range values {
			if err := settings.Set(r.Context(), key, value); err != nil {
				middleware.WriteAppError(w, err)
				return
			}
		}

		writeJSON(w, http.StatusOK, readSettings(r, settings))
	}
}
