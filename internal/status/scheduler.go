// Package status periodically evaluates every active room and pushes
// availability changes to kiosks.
package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/room-display/backend/internal/calendar"
	"github.com/room-display/backend/internal/logging"
	"github.com/room-display/backend/internal/provider"
	"github.com/room-display/backend/internal/storage/models"
	"github.com/room-display/backend/internal/websocket"
)

// RoomLister lists the rooms to watch.
type RoomLister interface {
	ListActive(ctx context.Context) ([]models.Room, error)
	GetByID(ctx context.Context, id string) (*models.Room, error)
}

// ProviderResolver selects the provider bound to a room.
type ProviderResolver interface {
	For(room models.Room) (provider.Provider, error)
}

// Publisher receives room status changes.
type Publisher interface {
	BroadcastRoomStatus(status websocket.RoomStatusPayload)
}

// Scheduler re-evaluates room availability on a fixed interval and publishes
// a room's status only when it differs from the last one published.
type Scheduler struct {
	cron      *cron.Cron
	rooms     RoomLister
	providers ProviderResolver
	publisher Publisher
	interval  time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
	cancel    context.CancelFunc

	mu   sync.Mutex
	last map[string]string
}

// NewScheduler creates a status scheduler.
func NewScheduler(rooms RoomLister, providers ProviderResolver, publisher Publisher, interval time.Duration, loc *time.Location, logger *zap.Logger) *Scheduler {
	if interval < time.Second {
		interval = 30 * time.Second
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:      cron.New(),
		rooms:     rooms,
		providers: providers,
		publisher: publisher,
		interval:  interval,
		loc:       loc,
		now:       time.Now,
		logger:    logging.OrNop(logger),
		last:      make(map[string]string),
	}
}

// Start schedules the periodic evaluation and runs one immediately.
// Evaluations use ctx and are cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	spec := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("scheduling status job: %w", err)
	}
	s.cancel = cancel
	s.cron.Start()
	s.logger.Info("status scheduler started", zap.Duration("interval", s.interval))

	go s.RunOnce(ctx)
	return nil
}

// Stop cancels in-flight evaluations and waits for a running job to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("status scheduler stopped")
}

// RunOnce evaluates every active room. A failing room is logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context) {
	rooms, err := s.rooms.ListActive(ctx)
	if err != nil {
		s.logger.Error("listing rooms for status", zap.Error(err))
		return
	}

	seen := make(map[string]bool, len(rooms))
	for _, room := range rooms {
		seen[room.ID] = true
		if _, err := s.evaluate(ctx, room, false); err != nil {
			s.logger.Warn("evaluating room status", zap.String("room_id", room.ID), zap.Error(err))
		}
	}

	s.mu.Lock()
	for id := range s.last {
		if !seen[id] {
			delete(s.last, id)
		}
	}
	s.mu.Unlock()
}

// Refresh re-evaluates one room right away and publishes its status even if
// unchanged. Handlers call it after a booking mutation.
func (s *Scheduler) Refresh(ctx context.Context, roomID string) (*websocket.RoomStatusPayload, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, *room, true)
}

func (s *Scheduler) evaluate(ctx context.Context, room models.Room, force bool) (*websocket.RoomStatusPayload, error) {
	p, err := s.providers.For(room)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start, end := calendar.DayRange(now, room.Location(s.loc))
	events, err := p.ListEvents(ctx, room, start, end)
	if err != nil {
		return nil, err
	}
	calendar.SortEvents(events)

	a := calendar.Evaluate(events, now)
	status := websocket.RoomStatusPayload{
		RoomID:       room.ID,
		RoomName:     room.Name,
		IsAvailable:  a.IsAvailable,
		CurrentEvent: a.Current,
		NextEvent:    a.Next,
		BusyUntil:    a.BusyUntil,
		FreeUntil:    a.FreeUntil,
	}

	sig := signature(status)
	s.mu.Lock()
	changed := s.last[room.ID] != sig
	s.last[room.ID] = sig
	s.mu.Unlock()

	if (changed || force) && s.publisher != nil {
		s.publisher.BroadcastRoomStatus(status)
	}
	return &status, nil
}

func signature(st websocket.RoomStatusPayload) string {
	sig := fmt.Sprintf("%s|%t", st.RoomName, st.IsAvailable)
	if st.CurrentEvent != nil {
		sig += fmt.Sprintf("|c:%s:%d", st.CurrentEvent.ID, st.CurrentEvent.End.Unix())
	}
	if st.NextEvent != nil {
		sig += fmt.Sprintf("|n:%s:%d:%d", st.NextEvent.ID, st.NextEvent.Start.Unix(), st.NextEvent.End.Unix())
	}
	if st.BusyUntil != nil {
		sig += fmt.Sprintf("|b:%d", st.BusyUntil.Unix())
	}
	return sig
}
