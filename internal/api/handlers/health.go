package handlers

import (
	"context"
	"net/http"
)

// Pinger checks database connectivity.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status           string `json:"status"`
	DBConnected      bool   `json:"db_connected"`
	WebsocketClients int    `json:"websocket_clients"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db Pinger, hub ClientCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		code := http.StatusOK
		if !dbConnected {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		response := HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		}
		if hub != nil {
			response.WebsocketClients = hub.ClientCount()
		}

		writeJSON(w, code, response)
	}
}
