// Package middleware provides HTTP middleware and error responses for the API.
package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/logging"
)

// ErrorResponse represents a standardized API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Common error codes
const (
	ErrNotFound      = "not_found"
	ErrBadRequest    = "bad_request"
	ErrConflict      = "conflict"
	ErrInternalError = "internal_error"
	ErrValidation    = "validation_error"
	ErrProvider      = "provider_error"
	ErrUnauthorized  = "unauthorized"
	ErrRateLimited   = "rate_limited"
)

// WriteError writes a JSON error response with the given status code.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteErrorWithDetails(w, status, errCode, message, nil)
}

// WriteErrorWithDetails writes a JSON error response with additional details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, errCode, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
		Details: details,
	})
}

// ConflictDetails names the booking that blocked a request.
type ConflictDetails struct {
	ConflictingEvent any `json:"conflicting_event"`
}

// ProviderDetails describes a failed external calendar call.
type ProviderDetails struct {
	Provider     string `json:"provider"`
	Operation    string `json:"operation"`
	Unauthorized bool   `json:"unauthorized"`
}

// ValidationDetails names the rejected field.
type ValidationDetails struct {
	Field string `json:"field"`
}

// StatusFor maps an error to its HTTP status and error code.
func StatusFor(err error) (int, string) {
	var (
		conflict   *apperror.ConflictError
		notFound   *apperror.NotFoundError
		provider   *apperror.ProviderError
		validation *apperror.ValidationError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, ErrValidation
	case errors.As(err, &notFound):
		return http.StatusNotFound, ErrNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrConflict
	case errors.As(err, &provider):
		return http.StatusBadGateway, ErrProvider
	default:
		return http.StatusInternalServerError, ErrInternalError
	}
}

// WriteAppError writes err using the status and details of its type.
// Unclassified errors are logged and reported without their text.
func WriteAppError(w http.ResponseWriter, err error) {
	WriteAppErrorWithDetails(w, err, nil)
}

// WriteAppErrorWithDetails is WriteAppError with caller-supplied details for
// error types that carry none of their own.
func WriteAppErrorWithDetails(w http.ResponseWriter, err error, extra any) {
	status, code := StatusFor(err)

	var (
		conflict   *apperror.ConflictError
		provider   *apperror.ProviderError
		validation *apperror.ValidationError
	)
	details := extra
	switch {
	case errors.As(err, &conflict):
		details = ConflictDetails{ConflictingEvent: conflict.Event}
	case errors.As(err, &provider) && extra == nil:
		details = ProviderDetails{Provider: provider.Provider, Operation: provider.Op, Unauthorized: provider.Unauthorized}
	case errors.As(err, &validation):
		details = ValidationDetails{Field: validation.Field}
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.Error(err))
		message = "An unexpected error occurred"
	}
	WriteErrorWithDetails(w, status, code, message, details)
}

// ErrorRecovery is middleware that recovers from panics and returns a 500 error.
func ErrorRecovery(logger *zap.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						zap.Any("panic", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()),
					)
					WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
