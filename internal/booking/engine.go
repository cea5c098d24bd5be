// Package booking commits conflict-checked bookings. Every check-then-commit
// sequence runs under the room's lock so concurrent requests for one room
// cannot both pass the overlap check.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/calendar"
	"github.com/room-display/backend/internal/logging"
	"github.com/room-display/backend/internal/provider"
	"github.com/room-display/backend/internal/storage/models"
)

// Default titles for bookings submitted without one.
const (
	DefaultTitle          = "Quick Booking"
	DefaultRecurringTitle = "Recurring Booking"
)

// RoomLookup loads rooms by ID.
type RoomLookup interface {
	GetByID(ctx context.Context, id string) (*models.Room, error)
}

// ProviderResolver selects the provider bound to a room.
type ProviderResolver interface {
	For(room models.Room) (provider.Provider, error)
}

// BookingRequest is a single booking. An empty Date with a nil Hour starts
// now; a nil Hour with a Date is rejected.
type BookingRequest struct {
	RoomID      string
	Date        string
	Hour        *int
	Minute      int
	Duration    int // minutes
	Title       string
	BookerName  string
	Description string
}

// RecurringRequest books Duration minutes at Hour:Minute on each selected
// weekday between StartDate and EndDate inclusive.
type RecurringRequest struct {
	RoomID      string
	Weekdays    []int
	Hour        int
	Minute      int
	Duration    int // minutes
	StartDate   string
	EndDate     string
	Title       string
	BookerName  string
	Description string
}

// SkippedSlot is a recurring candidate that was not committed.
type SkippedSlot struct {
	Date        string        `json:"date"`
	Start       time.Time     `json:"start"`
	Reason      string        `json:"reason"`
	Conflicting *models.Event `json:"conflicting_event,omitempty"`
}

// RecurringResult reports partial success of a recurring booking.
type RecurringResult struct {
	Created []models.Event `json:"created"`
	Skipped []SkippedSlot  `json:"skipped"`
}

// Engine executes bookings, extensions, early ends and cancellations.
type Engine struct {
	rooms     RoomLookup
	providers ProviderResolver
	locker    Locker
	loc       *time.Location
	now       func() time.Time
	logger    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(l) }
}

// WithLocation sets the zone used for rooms without their own timezone.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// NewEngine creates a booking engine. A nil locker means an in-process one.
func NewEngine(rooms RoomLookup, providers ProviderResolver, locker Locker, opts ...Option) *Engine {
	if locker == nil {
		locker = NewMemoryLocker()
	}
	e := &Engine{
		rooms:     rooms,
		providers: providers,
		locker:    locker,
		loc:       time.Local,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) resolve(ctx context.Context, roomID string) (*models.Room, provider.Provider, error) {
	room, err := e.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, nil, err
	}
	p, err := e.providers.For(*room)
	if err != nil {
		return nil, nil, err
	}
	return room, p, nil
}

func validDuration(minutes int) error {
	if minutes < 1 || minutes > calendar.MaxBookingMinutes {
		return apperror.Invalid("duration", fmt.Sprintf("must be between 1 and %d minutes", calendar.MaxBookingMinutes))
	}
	return nil
}

func titleOr(title, def string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return def
}

// resolveStart turns a request's slot into an absolute instant in loc.
func (e *Engine) resolveStart(req BookingRequest, loc *time.Location) (time.Time, error) {
	if req.Date == "" && req.Hour == nil {
		return e.now().In(loc).Truncate(time.Second), nil
	}
	if req.Hour == nil {
		return time.Time{}, apperror.Invalid("hour", "required when a date is given")
	}
	if *req.Hour < 0 || *req.Hour > 23 {
		return time.Time{}, apperror.Invalid("hour", "must be between 0 and 23")
	}
	if req.Minute < 0 || req.Minute > 59 {
		return time.Time{}, apperror.Invalid("minute", "must be between 0 and 59")
	}

	day := calendar.StartOfDay(e.now(), loc)
	if req.Date != "" {
		var err error
		if day, err = calendar.ParseDate(req.Date, loc); err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), *req.Hour, req.Minute, 0, 0, loc), nil
}

// Book commits a single booking or fails with a ConflictError naming the
// colliding event.
func (e *Engine) Book(ctx context.Context, req BookingRequest) (*models.Event, error) {
	if err := validDuration(req.Duration); err != nil {
		return nil, err
	}

	room, p, err := e.resolve(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}

	start, err := e.resolveStart(req, room.Location(e.loc))
	if err != nil {
		return nil, err
	}

	candidate := models.Event{
		RoomID:      room.ID,
		Title:       titleOr(req.Title, DefaultTitle),
		Start:       start,
		End:         start.Add(time.Duration(req.Duration) * time.Minute),
		Organizer:   strings.TrimSpace(req.BookerName),
		Description: req.Description,
	}

	created, err := e.commit(ctx, *room, p, candidate)
	if err != nil {
		return nil, err
	}

	e.logger.Info("booking created",
		zap.String("room_id", room.ID),
		zap.String("event_id", created.ID),
		zap.Time("start", created.Start),
		zap.Time("end", created.End),
	)
	return created, nil
}

// commit runs the overlap check and the create under the room lock.
func (e *Engine) commit(ctx context.Context, room models.Room, p provider.Provider, candidate models.Event) (*models.Event, error) {
	unlock, err := e.locker.Lock(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := p.ListEvents(ctx, room, candidate.Start, candidate.End)
	if err != nil {
		return nil, err
	}
	if c := FindConflict(existing, candidate.Start, candidate.End, ""); c != nil {
		return nil, &apperror.ConflictError{Event: *c}
	}

	return p.CreateEvent(ctx, room, candidate)
}

// BookRecurring commits each expanded candidate independently. Conflicting
// candidates are skipped and reported. The room lock is taken once per
// candidate, so other bookings can interleave with a long batch. A provider
// failure stops the batch and returns what was committed so far with the error.
func (e *Engine) BookRecurring(ctx context.Context, req RecurringRequest) (*RecurringResult, error) {
	if err := validDuration(req.Duration); err != nil {
		return nil, err
	}

	room, p, err := e.resolve(ctx, req.RoomID)
	if err != nil {
		return nil, err
	}
	loc := room.Location(e.loc)

	startDate, err := calendar.ParseDate(req.StartDate, loc)
	if err != nil {
		return nil, apperror.Invalid("start_date", "expected YYYY-MM-DD")
	}
	endDate, err := calendar.ParseDate(req.EndDate, loc)
	if err != nil {
		return nil, apperror.Invalid("end_date", "expected YYYY-MM-DD")
	}

	pattern := calendar.RecurrencePattern{
		Weekdays:  req.Weekdays,
		Hour:      req.Hour,
		Minute:    req.Minute,
		Duration:  time.Duration(req.Duration) * time.Minute,
		StartDate: startDate,
		EndDate:   endDate,
		Location:  loc,
	}
	slots, err := pattern.Expand()
	if err != nil {
		return nil, err
	}

	result := &RecurringResult{Created: []models.Event{}, Skipped: []SkippedSlot{}}
	title := titleOr(req.Title, DefaultRecurringTitle)

	for _, slot := range slots {
		candidate := models.Event{
			RoomID:      room.ID,
			Title:       title,
			Start:       slot.Start,
			End:         slot.End,
			Organizer:   strings.TrimSpace(req.BookerName),
			Description: req.Description,
		}

		created, err := e.commit(ctx, *room, p, candidate)
		var conflict *apperror.ConflictError
		switch {
		case err == nil:
			result.Created = append(result.Created, *created)
		case errors.As(err, &conflict):
			ev := conflict.Event
			result.Skipped = append(result.Skipped, SkippedSlot{
				Date:        calendar.DateKey(slot.Start),
				Start:       slot.Start,
				Reason:      conflict.Error(),
				Conflicting: &ev,
			})
		default:
			e.logger.Warn("recurring booking stopped",
				zap.String("room_id", room.ID),
				zap.Int("created", len(result.Created)),
				zap.Error(err),
			)
			return result, err
		}
	}

	e.logger.Info("recurring booking committed",
		zap.String("room_id", room.ID),
		zap.Int("created", len(result.Created)),
		zap.Int("skipped", len(result.Skipped)),
	)
	return result, nil
}

// CurrentEvent returns the event in progress in the room, or nil.
func (e *Engine) CurrentEvent(ctx context.Context, roomID string) (*models.Event, error) {
	room, p, err := e.resolve(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return e.current(ctx, *room, p)
}

func (e *Engine) current(ctx context.Context, room models.Room, p provider.Provider) (*models.Event, error) {
	now := e.now()
	start, end := calendar.DayRange(now, room.Location(e.loc))
	events, err := p.ListEvents(ctx, room, start, end)
	if err != nil {
		return nil, err
	}
	return calendar.Evaluate(events, now).Current, nil
}

// Extend moves target's end by minutes, failing with a ConflictError if the
// new end would overlap another event.
func (e *Engine) Extend(ctx context.Context, roomID string, target models.Event, minutes int) (*models.Event, error) {
	if err := validDuration(minutes); err != nil {
		return nil, err
	}

	room, p, err := e.resolve(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return e.extend(ctx, *room, p, target, minutes)
}

// ExtendCurrent extends the room's event in progress.
func (e *Engine) ExtendCurrent(ctx context.Context, roomID string, minutes int) (*models.Event, error) {
	if err := validDuration(minutes); err != nil {
		return nil, err
	}

	room, p, err := e.resolve(ctx, roomID)
	if err != nil {
		return nil, err
	}
	cur, err := e.current(ctx, *room, p)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, apperror.Invalid("event", "no meeting is in progress")
	}
	return e.extend(ctx, *room, p, *cur, minutes)
}

func (e *Engine) extend(ctx context.Context, room models.Room, p provider.Provider, target models.Event, minutes int) (*models.Event, error) {
	unlock, err := e.locker.Lock(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	delta := time.Duration(minutes) * time.Minute
	windowEnd := target.End.Add(delta)

	existing, err := p.ListEvents(ctx, room, target.Start, windowEnd)
	if err != nil {
		return nil, err
	}

	// Re-read the target under the lock; it may have changed since the caller saw it.
	fresh := FindByID(existing, target.ID)
	if fresh == nil {
		return nil, apperror.NotFound("event", target.ID)
	}
	newEnd := fresh.End.Add(delta)
	if newEnd.After(windowEnd) {
		if existing, err = p.ListEvents(ctx, room, fresh.Start, newEnd); err != nil {
			return nil, err
		}
	}

	if c := FindConflict(existing, fresh.Start, newEnd, fresh.ID); c != nil {
		return nil, &apperror.ConflictError{Event: *c}
	}

	updated, err := p.UpdateEventEnd(ctx, room, fresh.ID, newEnd)
	if err != nil {
		return nil, err
	}

	e.logger.Info("booking extended",
		zap.String("room_id", room.ID),
		zap.String("event_id", updated.ID),
		zap.Time("end", updated.End),
	)
	return updated, nil
}

// EndNow ends target at the current instant. An event that has not been
// running for a full second is removed instead, since end must follow start.
func (e *Engine) EndNow(ctx context.Context, roomID string, target models.Event) (*models.Event, error) {
	room, p, err := e.resolve(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return e.endNow(ctx, *room, p, target)
}

// EndCurrent ends the room's event in progress.
func (e *Engine) EndCurrent(ctx context.Context, roomID string) (*models.Event, error) {
	room, p, err := e.resolve(ctx, roomID)
	if err != nil {
		return nil, err
	}
	cur, err := e.current(ctx, *room, p)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, apperror.Invalid("event", "no meeting is in progress")
	}
	return e.endNow(ctx, *room, p, *cur)
}

func (e *Engine) endNow(ctx context.Context, room models.Room, p provider.Provider, target models.Event) (*models.Event, error) {
	now := e.now().Truncate(time.Second)
	if !target.IsActive(now) {
		return nil, apperror.Invalid("event", "meeting is not in progress")
	}

	unlock, err := e.locker.Lock(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !now.After(target.Start) {
		if err := p.DeleteEvent(ctx, room, target.ID); err != nil {
			return nil, err
		}
		target.End = now
		return &target, nil
	}

	updated, err := p.UpdateEventEnd(ctx, room, target.ID, now)
	if err != nil {
		return nil, err
	}

	e.logger.Info("booking ended early",
		zap.String("room_id", room.ID),
		zap.String("event_id", updated.ID),
	)
	return updated, nil
}

// Cancel deletes one of the room's events.
func (e *Engine) Cancel(ctx context.Context, roomID, eventID string) error {
	room, p, err := e.resolve(ctx, roomID)
	if err != nil {
		return err
	}
	if err := p.DeleteEvent(ctx, *room, eventID); err != nil {
		return err
	}

	e.logger.Info("booking cancelled", zap.String("room_id", room.ID), zap.String("event_id", eventID))
	return nil
}

// FindByID returns the event with id, or nil.
func FindByID(events []models.Event, id string) *models.Event {
	for i := range events {
		if events[i].ID == id {
			ev := events[i]
			return &ev
		}
	}
	return nil
}
