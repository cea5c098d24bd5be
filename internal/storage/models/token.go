package models

import (
	"time"
)

// ProviderToken holds OAuth credentials for an external calendar provider.
// Tokens are obtained outside this service and refreshed before remote calls.
type ProviderToken struct {
	Provider     string     `json:"provider"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	TokenType    string     `json:"token_type"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        string     `json:"scope,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Setting keys
const (
	SettingDefaultBookingMinutes = "default_booking_minutes"
	SettingDefaultExtendMinutes  = "default_extend_minutes"
	SettingRecurringDefaultDays  = "recurring_default_days"
	SettingWeekStart             = "week_start"
)
