// Package query assembles day, week and month schedules for a room.
// Each view fetches its whole range from the room's provider in one call;
// a provider failure fails the view.
package query

import (
	"context"
	"time"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/calendar"
	"github.com/room-display/backend/internal/provider"
	"github.com/room-display/backend/internal/storage/models"
)

// RoomLookup loads rooms by ID.
type RoomLookup interface {
	GetByID(ctx context.Context, id string) (*models.Room, error)
}

// ProviderResolver selects the provider bound to a room.
type ProviderResolver interface {
	For(room models.Room) (provider.Provider, error)
}

// DayView is one room's schedule for a calendar day. Availability fields are
// only computed when Date is today in the room's zone.
type DayView struct {
	Room    models.Room             `json:"room"`
	Date    string                  `json:"date"`
	IsToday bool                    `json:"is_today"`
	Events  []calendar.DisplayEvent `json:"events"`
	calendar.Availability
}

// WeekView maps seven consecutive dates to their events.
type WeekView struct {
	Room   models.Room                        `json:"room"`
	Start  string                             `json:"start"`
	Days   []string                           `json:"days"`
	Events map[string][]calendar.DisplayEvent `json:"events"`
}

// MonthView maps every date of a padded month grid to its events.
type MonthView struct {
	Room      models.Room                        `json:"room"`
	Year      int                                `json:"year"`
	Month     int                                `json:"month"`
	WeekStart string                             `json:"week_start"`
	Days      []string                           `json:"days"`
	Events    map[string][]calendar.DisplayEvent `json:"events"`
}

// Service composes providers with the calendar functions.
type Service struct {
	rooms     RoomLookup
	providers ProviderResolver
	loc       *time.Location
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the service's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the zone used for rooms without their own timezone.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewService creates a query service.
func NewService(rooms RoomLookup, providers ProviderResolver, opts ...Option) *Service {
	s := &Service{
		rooms:     rooms,
		providers: providers,
		loc:       time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the zone views for room are computed in.
func (s *Service) Location(room models.Room) *time.Location {
	return room.Location(s.loc)
}

// Today returns the current calendar day in the room's zone.
func (s *Service) Today(room models.Room) time.Time {
	return calendar.StartOfDay(s.now(), s.Location(room))
}

func (s *Service) load(ctx context.Context, roomID string) (*models.Room, provider.Provider, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.providers.For(*room)
	if err != nil {
		return nil, nil, err
	}
	return room, p, nil
}

// fetch lists the events touching the days first through last.
func (s *Service) fetch(ctx context.Context, room models.Room, p provider.Provider, first, last time.Time) ([]models.Event, error) {
	loc := s.Location(room)
	start, _ := calendar.DayRange(first, loc)
	_, end := calendar.DayRange(last, loc)
	events, err := p.ListEvents(ctx, room, start, end)
	if err != nil {
		return nil, err
	}
	calendar.SortEvents(events)
	return events, nil
}

// Day returns the schedule for date, a YYYY-MM-DD string; empty means today.
func (s *Service) Day(ctx context.Context, roomID, date string) (*DayView, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	day, err := s.resolveDate(*room, date)
	if err != nil {
		return nil, err
	}
	return s.DayView(ctx, roomID, day)
}

// DayView returns the schedule for the calendar day containing day.
func (s *Service) DayView(ctx context.Context, roomID string, day time.Time) (*DayView, error) {
	room, p, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	events, err := s.fetch(ctx, *room, p, day, day)
	if err != nil {
		return nil, err
	}

	loc := s.Location(*room)
	start := calendar.StartOfDay(day, loc)
	now := s.now()
	view := &DayView{
		Room:    *room,
		Date:    calendar.DateKey(start),
		IsToday: start.Equal(calendar.StartOfDay(now, loc)),
		Events:  calendar.ClassifyAll(events),
	}
	if view.IsToday {
		view.Availability = calendar.Evaluate(events, now)
	} else {
		view.IsAvailable = true
	}
	return view, nil
}

// Week returns the seven days from start, a YYYY-MM-DD string; empty means today.
func (s *Service) Week(ctx context.Context, roomID, start string) (*WeekView, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	day, err := s.resolveDate(*room, start)
	if err != nil {
		return nil, err
	}
	return s.WeekView(ctx, roomID, day)
}

// WeekView returns seven consecutive days beginning with start's day.
// Every day is present in Events, empty or not.
func (s *Service) WeekView(ctx context.Context, roomID string, start time.Time) (*WeekView, error) {
	room, p, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	loc := s.Location(*room)
	days := calendar.WeekDays(start, loc)

	events, err := s.fetch(ctx, *room, p, days[0], days[len(days)-1])
	if err != nil {
		return nil, err
	}

	return &WeekView{
		Room:   *room,
		Start:  calendar.DateKey(days[0]),
		Days:   dateKeys(days),
		Events: calendar.BucketByDay(events, days, loc),
	}, nil
}

// MonthView returns the month grid for year and month with weeks beginning
// on weekStart. A zero year or month means the current one. Padding days
// from adjacent months are keyed like any other day.
func (s *Service) MonthView(ctx context.Context, roomID string, year int, month time.Month, weekStart time.Weekday) (*MonthView, error) {
	if month < 0 || month > time.December {
		return nil, apperror.Invalid("month", "must be between 1 and 12")
	}
	room, p, err := s.load(ctx, roomID)
	if err != nil {
		return nil, err
	}
	loc := s.Location(*room)

	today := s.Today(*room)
	if year == 0 {
		year = today.Year()
	}
	if month == 0 {
		month = today.Month()
	}
	days := calendar.MonthGrid(year, month, loc, weekStart)
	events, err := s.fetch(ctx, *room, p, days[0], days[len(days)-1])
	if err != nil {
		return nil, err
	}

	return &MonthView{
		Room:      *room,
		Year:      year,
		Month:     int(month),
		WeekStart: weekStart.String(),
		Days:      dateKeys(days),
		Events:    calendar.BucketByDay(events, days, loc),
	}, nil
}

// Range returns the room's events in [start, end), sorted.
func (s *Service) Range(ctx context.Context, roomID string, start, end time.Time) (*models.Room, []models.Event, error) {
	room, p, err := s.load(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	events, err := p.ListEvents(ctx, *room, start, end)
	if err != nil {
		return nil, nil, err
	}
	calendar.SortEvents(events)
	return room, events, nil
}

func (s *Service) resolveDate(room models.Room, date string) (time.Time, error) {
	if date == "" {
		return s.Today(room), nil
	}
	return calendar.ParseDate(date, s.Location(room))
}

func dateKeys(days []time.Time) []string {
	keys := make([]string, len(days))
	for i, d := range days {
		keys[i] = calendar.DateKey(d)
	}
	return keys
}
