// Package apperror defines the error taxonomy surfaced by the scheduling core.
// Each type maps to a distinct caller-visible signal at the API boundary.
package apperror

import (
	"errors"
	"fmt"
	"time"

	"github.com/room-display/backend/internal/storage/models"
)

// ConflictError reports that a booking would overlap an existing event.
type ConflictError struct {
	Event models.Event
}

func (e *ConflictError) Error() string {
	title := e.Event.Title
	if title == "" {
		title = "Busy"
	}
	return fmt.Sprintf("conflicts with existing booking %q (%s - %s)",
		title, e.Event.Start.Format(time.RFC3339), e.Event.End.Format(time.RFC3339))
}

// NotFoundError reports an unknown room or event identifier.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ProviderError reports that an external calendar could not be reached or
// refused the request. It is never converted into a local-storage fallback.
type ProviderError struct {
	Provider     string
	Op           string
	Unauthorized bool
	Err          error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Provider, e.Op)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFound returns a NotFoundError for resource id.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Invalid returns a ValidationError for field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Provider wraps err as a ProviderError.
func Provider(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
