// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/room-display/backend/internal/api/handlers"
	"github.com/room-display/backend/internal/api/middleware"
	"github.com/room-display/backend/internal/booking"
	"github.com/room-display/backend/internal/config"
	"github.com/room-display/backend/internal/logging"
	"github.com/room-display/backend/internal/query"
	"github.com/room-display/backend/internal/storage"
	"github.com/room-display/backend/internal/websocket"
)

// Services are the dependencies the routes are built from. Hub and Status
// are optional.
type Services struct {
	DB        *storage.DB
	Rooms     *storage.RoomRepository
	Settings  *storage.SettingsRepository
	Tokens    *storage.TokenRepository
	Engine    *booking.Engine
	Query     *query.Service
	Hub       *websocket.Hub
	Status    handlers.StatusRefresher
	StaticDir string
	RateLimit config.RateLimitConfig
	Logger    *zap.Logger
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(s Services) *mux.Router {
	logger := logging.OrNop(s.Logger)

	r := mux.NewRouter()
	r.Use(middleware.Logging(logger))
	r.Use(middleware.ErrorRecovery(logger))

	notify := &handlers.Notifier{Status: s.Status}
	var clients handlers.ClientCounter
	if s.Hub != nil {
		notify.Events = websocket.NewEventBroadcaster(s.Hub)
		clients = s.Hub
	}

	api := r.PathPrefix("/api").Subrouter()

	// Health
	api.HandleFunc("/health", handlers.HealthCheck(s.DB, clients)).Methods("GET")

	// WebSocket endpoint
	if s.Hub != nil {
		api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, logger)).Methods("GET")
	}

	// Room endpoints
	api.HandleFunc("/rooms", handlers.ListRooms(s.Rooms)).Methods("GET")
	api.HandleFunc("/rooms", handlers.CreateRoom(s.Rooms)).Methods("POST")
	api.HandleFunc("/rooms/{id}", handlers.GetRoom(s.Rooms)).Methods("GET")
	api.HandleFunc("/rooms/{id}", handlers.UpdateRoom(s.Rooms)).Methods("PUT")
	api.HandleFunc("/rooms/{id}", handlers.DeleteRoom(s.Rooms)).Methods("DELETE")

	// Schedule views
	api.HandleFunc("/rooms/{id}/events", handlers.DayEvents(s.Query)).Methods("GET")
	api.HandleFunc("/rooms/{id}/week", handlers.WeekEvents(s.Query)).Methods("GET")
	api.HandleFunc("/rooms/{id}/month", handlers.MonthEvents(s.Query, s.Settings)).Methods("GET")
	api.HandleFunc("/rooms/{id}/calendar.ics", handlers.CalendarExport(s.Query, s.Rooms)).Methods("GET")

	// Booking mutations are rate limited per client address
	limiter := middleware.NewRateLimiter(s.RateLimit.PerMinute, s.RateLimit.Burst, logger)
	mutations := api.PathPrefix("/rooms/{id}").Subrouter()
	mutations.Use(limiter.Limit)
	mutations.HandleFunc("/book", handlers.BookRoom(s.Engine, s.Settings, notify)).Methods("POST")
	mutations.HandleFunc("/book-recurring", handlers.BookRecurring(s.Engine, s.Query, s.Rooms, s.Settings, notify)).Methods("POST")
	mutations.HandleFunc("/extend", handlers.ExtendMeeting(s.Engine, s.Settings, notify)).Methods("POST")
	mutations.HandleFunc("/end", handlers.EndMeeting(s.Engine, notify)).Methods("POST")
	mutations.HandleFunc("/events/{eventId}", handlers.CancelBooking(s.Engine, notify)).Methods("DELETE")

	// Settings endpoints
	api.HandleFunc("/settings", handlers.GetSettings(s.Settings)).Methods("GET")
	api.HandleFunc("/settings", handlers.UpdateSettings(s.Settings)).Methods("PUT")

	// Provider credentials
	api.HandleFunc("/providers/{kind}/token", handlers.SaveProviderToken(s.Tokens)).Methods("PUT")

	// Serve static frontend files
	if s.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.StaticDir)))
	}

	return r
}
