package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/storage/models"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", apperror.Invalid("duration", "too long"), http.StatusBadRequest, ErrValidation},
		{"not found", apperror.NotFound("room", "r1"), http.StatusNotFound, ErrNotFound},
		{"conflict", &apperror.ConflictError{Event: models.Event{ID: "e1"}}, http.StatusConflict, ErrConflict},
		{"provider", apperror.Provider("google", "list", errors.New("boom")), http.StatusBadGateway, ErrProvider},
		{"wrapped conflict", fmt.Errorf("booking: %w", &apperror.ConflictError{}), http.StatusConflict, ErrConflict},
		{"unclassified", errors.New("disk full"), http.StatusInternalServerError, ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := StatusFor(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("StatusFor() = %d %s, want %d %s", status, code, tt.status, tt.code)
			}
		})
	}
}

func TestWriteAppErrorHidesInternalText(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAppError(rec, errors.New("secret path /var/db"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret") {
		t.Errorf("body leaks error text: %s", rec.Body.String())
	}
}

func TestErrorRecovery(t *testing.T) {
	h := ErrorRecovery(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "1.2.3.4:80", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": " 10.0.0.3 "}, "1.2.3.4:80", "10.0.0.3"},
		{"remote addr", nil, "1.2.3.4:80", "1.2.3.4"},
		{"remote without port", nil, "1.2.3.4", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(1, 2, nil)
	h := limiter.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(ip string) int {
		r := httptest.NewRequest("POST", "/book", nil)
		r.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec.Code
	}

	for i, want := range []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests} {
		if got := send("10.0.0.1"); got != want {
			t.Errorf("request %d: status = %d, want %d", i, got, want)
		}
	}
	// Addresses are limited independently.
	if got := send("10.0.0.2"); got != http.StatusNoContent {
		t.Errorf("other address: status = %d", got)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := NewRateLimiter(0, 0, nil)
	for i := 0; i < 100; i++ {
		if !limiter.get("10.0.0.1").Allow() {
			t.Fatalf("request %d limited", i)
		}
	}
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(60, 1, nil)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	limiter.get("10.0.0.1")
	now = now.Add(limiterIdle + time.Minute)
	limiter.get("10.0.0.2")

	if _, ok := limiter.limiters["10.0.0.1"]; ok {
		t.Error("idle limiter was not swept")
	}
	if len(limiter.limiters) != 1 {
		t.Errorf("limiters = %d", len(limiter.limiters))
	}
}
