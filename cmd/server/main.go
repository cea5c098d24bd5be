// Package main is the entry point for the room display server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/room-display/backend/internal/api"
	"github.com/room-display/backend/internal/booking"
	"github.com/room-display/backend/internal/config"
	"github.com/room-display/backend/internal/logging"
	"github.com/room-display/backend/internal/provider"
	"github.com/room-display/backend/internal/query"
	"github.com/room-display/backend/internal/status"
	"github.com/room-display/backend/internal/storage"
	"github.com/room-display/backend/internal/storage/models"
	"github.com/room-display/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting room display server", zap.String("version", version))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory %q: %w", cfg.DataDir, err)
	}
	db, err := storage.NewDB(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Initialize repositories
	rooms := storage.NewRoomRepository(db)
	events := storage.NewEventRepository(db)
	tokens := storage.NewTokenRepository(db)
	settings := storage.NewSettingsRepository(db)

	if err := seedRooms(ctx, rooms, cfg.RoomsFile, logger); err != nil {
		return err
	}

	// Calendar providers
	stored := provider.NewStoredTokens(tokens, logger)
	if cfg.Google.Enabled() {
		stored.WithOAuthClient(models.ProviderGoogle, provider.GoogleOAuth(cfg.Google.ClientID, cfg.Google.ClientSecret))
	}
	if cfg.Microsoft.Enabled() {
		stored.WithOAuthClient(models.ProviderMicrosoft, provider.MicrosoftOAuth(cfg.Microsoft.ClientID, cfg.Microsoft.ClientSecret, cfg.Microsoft.Tenant))
	}
	resolver := provider.NewResolver(
		provider.NewLocal(events),
		provider.NewGoogle(stored, cfg.Google.BaseURL).WithLocation(loc),
		provider.NewMicrosoft(stored, cfg.Microsoft.BaseURL),
	)

	locker, closeLocker := newLocker(cfg.Redis, logger)
	defer closeLocker()

	engine := booking.NewEngine(rooms, resolver, locker,
		booking.WithLocation(loc),
		booking.WithLogger(logger),
	)
	queries := query.NewService(rooms, resolver, query.WithLocation(loc))

	// Initialize WebSocket hub
	hub := websocket.NewHub(logger)
	go hub.Run(ctx)

	statusScheduler := status.NewScheduler(rooms, resolver, websocket.NewEventBroadcaster(hub), cfg.StatusInterval, loc, logger)
	if err := statusScheduler.Start(ctx); err != nil {
		logger.Warn("failed to start status scheduler", zap.Error(err))
	}

	router := api.NewRouter(api.Services{
		DB:        db,
		Rooms:     rooms,
		Settings:  settings,
		Tokens:    tokens,
		Engine:    engine,
		Query:     queries,
		Hub:       hub,
		Status:    statusScheduler,
		StaticDir: cfg.StaticDir,
		RateLimit: cfg.RateLimit,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	statusScheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	cancel()

	logger.Info("server stopped")
	return nil
}

// seedRooms creates rooms listed in the rooms file that do not exist yet.
func seedRooms(ctx context.Context, rooms *storage.RoomRepository, path string, logger *zap.Logger) error {
	seeds, err := config.LoadRoomSeeds(path)
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		existing, err := rooms.FindByName(ctx, seed.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		room := models.Room{
			Name:       seed.Name,
			Provider:   seed.Provider,
			CalendarID: seed.CalendarID,
			Timezone:   seed.Timezone,
		}
		if err := rooms.Create(ctx, &room); err != nil {
			return fmt.Errorf("seeding room %q: %w", seed.Name, err)
		}
		logger.Info("seeded room", zap.String("room_id", room.ID), zap.String("name", room.Name))
	}
	return nil
}

// newLocker uses Redis when configured so several server processes can
// share one database without double-booking.
func newLocker(cfg config.RedisConfig, logger *zap.Logger) (booking.Locker, func()) {
	if cfg.Addr == "" {
		return booking.NewMemoryLocker(), func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	logger.Info("using redis room lock", zap.String("addr", cfg.Addr))
	return booking.NewRedisLocker(client, cfg.LockTTL, logger), func() { client.Close() }
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
