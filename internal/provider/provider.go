// Package provider adapts the calendar backends a room can be bound to
// (local storage, Google Calendar, Microsoft Graph) behind one interface.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/storage/models"
)

// DefaultTitle is shown for provider events without a subject.
const DefaultTitle = "Busy"

// Provider is the capability set every calendar backend implements.
// ListEvents returns events intersecting [start, end) ordered by start.
// Errors are apperror types: NotFound for unknown events, Provider for
// unreachable or unauthorised backends.
type Provider interface {
	Kind() string
	ListEvents(ctx context.Context, room models.Room, start, end time.Time) ([]models.Event, error)
	CreateEvent(ctx context.Context, room models.Room, ev models.Event) (*models.Event, error)
	UpdateEventEnd(ctx context.Context, room models.Room, eventID string, end time.Time) (*models.Event, error)
	DeleteEvent(ctx context.Context, room models.Room, eventID string) error
}

var errNotConfigured = errors.New("provider not configured")

// Resolver picks the Provider for a room's binding.
type Resolver struct {
	providers map[string]Provider
}

// NewResolver registers providers by their Kind. Later registrations of the
// same kind replace earlier ones.
func NewResolver(providers ...Provider) *Resolver {
	r := &Resolver{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Kind()] = p
		}
	}
	return r
}

// For returns the provider bound to room. An external binding with no
// registered provider is a ProviderError; it never falls back to local storage.
func (r *Resolver) For(room models.Room) (Provider, error) {
	kind := room.ProviderKind()
	p, ok := r.providers[kind]
	if !ok {
		if !models.ValidProvider(kind) {
			return nil, apperror.Invalid("calendar_provider", fmt.Sprintf("unsupported provider %q", kind))
		}
		return nil, apperror.Provider(kind, "resolve", errNotConfigured)
	}
	return p, nil
}

// Kinds lists the registered provider kinds.
func (r *Resolver) Kinds() []string {
	kinds := make([]string, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	return kinds
}
