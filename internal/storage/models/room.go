// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Provider kinds a room can be bound to.
const (
	ProviderLocal     = "local"
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// Room is a bookable space with its own event timeline.
type Room struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Provider   string    `json:"calendar_provider"`
	CalendarID string    `json:"calendar_id,omitempty"`
	Timezone   string    `json:"timezone,omitempty"`
	Active     bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ProviderKind returns the room's provider binding, treating an empty value as local storage.
func (r *Room) ProviderKind() string {
	if r.Provider == "" {
		return ProviderLocal
	}
	return r.Provider
}

// IsExternal reports whether events live in an external calendar service.
func (r *Room) IsExternal() bool {
	return r.ProviderKind() != ProviderLocal
}

// Location returns the room's configured zone, falling back to fallback
// (or time.Local) when the zone is unset or unknown.
func (r *Room) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.Local
	}
	if r.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// ValidProvider reports whether kind names a supported provider.
func ValidProvider(kind string) bool {
	switch kind {
	case "", ProviderLocal, ProviderGoogle, ProviderMicrosoft:
		return true
	}
	return false
}
