package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/provider"
	"github.com/room-display/backend/internal/storage/models"
)

// fakeProvider is an in-memory calendar. listDelay widens the window
// between the overlap check and the commit.
type fakeProvider struct {
	mu        sync.Mutex
	events    []models.Event
	nextID    int
	listDelay time.Duration
	createErr func(n int) error
	creates   int
}

func (f *fakeProvider) Kind() string { return models.ProviderLocal }

func (f *fakeProvider) ListEvents(ctx context.Context, room models.Room, start, end time.Time) ([]models.Event, error) {
	f.mu.Lock()
	var out []models.Event
	for _, ev := range f.events {
		if ev.RoomID == room.ID && ev.Overlaps(start, end) {
			out = append(out, ev)
		}
	}
	f.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if f.listDelay > 0 {
		time.Sleep(f.listDelay)
	}
	return out, nil
}

func (f *fakeProvider) CreateEvent(ctx context.Context, room models.Room, ev models.Event) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates++
	if f.createErr != nil {
		if err := f.createErr(f.creates); err != nil {
			return nil, err
		}
	}
	f.nextID++
	ev.ID = fmt.Sprintf("ev-%d", f.nextID)
	ev.RoomID = room.ID
	ev.Origin = models.ProviderLocal
	f.events = append(f.events, ev)
	return &ev, nil
}

func (f *fakeProvider) UpdateEventEnd(ctx context.Context, room models.Room, id string, end time.Time) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].ID == id && f.events[i].RoomID == room.ID {
			f.events[i].End = end
			ev := f.events[i]
			return &ev, nil
		}
	}
	return nil, apperror.NotFound("event", id)
}

func (f *fakeProvider) DeleteEvent(ctx context.Context, room models.Room, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].ID == id && f.events[i].RoomID == room.ID {
			f.events = append(f.events[:i], f.events[i+1:]...)
			return nil
		}
	}
	return apperror.NotFound("event", id)
}

func (f *fakeProvider) seed(roomID, id string, start, end time.Time) models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev := models.Event{ID: id, RoomID: roomID, Title: id, Start: start, End: end, Origin: models.ProviderLocal}
	f.events = append(f.events, ev)
	return ev
}

func (f *fakeProvider) snapshot(roomID string) []models.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Event
	for _, ev := range f.events {
		if ev.RoomID == roomID {
			out = append(out, ev)
		}
	}
	return out
}

type fakeRooms map[string]*models.Room

func (r fakeRooms) GetByID(ctx context.Context, id string) (*models.Room, error) {
	room, ok := r[id]
	if !ok {
		return nil, apperror.NotFound("room", id)
	}
	return room, nil
}

// monday 2025-03-10
var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func intp(v int) *int { return &v }

func newTestEngine(p provider.Provider, now time.Time) *Engine {
	rooms := fakeRooms{
		"a": {ID: "a", Name: "Alpha", Timezone: "UTC", Active: true},
		"b": {ID: "b", Name: "Beta", Timezone: "UTC", Active: true},
	}
	return NewEngine(rooms, provider.NewResolver(p), NewMemoryLocker(),
		WithClock(func() time.Time { return now }),
		WithLocation(time.UTC),
	)
}

func assertNoOverlap(t *testing.T, events []models.Event) {
	t.Helper()
	for i := range events {
		for j := i + 1; j < len(events); j++ {
			a, b := events[i], events[j]
			if a.Start.Before(b.End) && b.Start.Before(a.End) {
				t.Errorf("events %s [%v-%v] and %s [%v-%v] overlap", a.ID, a.Start, a.End, b.ID, b.Start, b.End)
			}
		}
	}
}

func TestBookConflictsAndBackToBack(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	e := newTestEngine(p, at(8, 0))
	existing := p.seed("a", "standup", at(9, 0), at(10, 0))

	tests := []struct {
		name     string
		hour     int
		minute   int
		duration int
		conflict bool
	}{
		{"starts at previous end", 10, 0, 30, false},
		{"ends at next start", 8, 0, 60, false},
		{"overlaps start", 8, 30, 60, true},
		{"inside existing", 9, 15, 15, true},
		{"covers existing", 8, 45, 120, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := e.Book(ctx, BookingRequest{
				RoomID: "a", Date: "2025-03-10", Hour: intp(tt.hour), Minute: tt.minute,
				Duration: tt.duration, Title: tt.name, BookerName: "Ana",
			})
			if !tt.conflict {
				if err != nil {
					t.Fatalf("Book: %v", err)
				}
				// undo so cases stay independent
				if err := e.Cancel(ctx, "a", ev.ID); err != nil {
					t.Fatalf("Cancel: %v", err)
				}
				return
			}

			var ce *apperror.ConflictError
			if !errors.As(err, &ce) {
				t.Fatalf("Book error = %v, want ConflictError", err)
			}
			if ce.Event.ID != existing.ID {
				t.Errorf("conflict names %q, want %q", ce.Event.ID, existing.ID)
			}
		})
	}
}

func TestBookDefaults(t *testing.T) {
	ctx := context.Background()
	now := at(14, 7).Add(500 * time.Millisecond)
	e := newTestEngine(&fakeProvider{}, now)

	ev, err := e.Book(ctx, BookingRequest{RoomID: "a", Duration: 30, Title: "   ", BookerName: "  Lee "})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if !ev.Start.Equal(now.Truncate(time.Second)) || ev.Duration() != 30*time.Minute {
		t.Errorf("slot = %v - %v", ev.Start, ev.End)
	}
	if ev.Title != DefaultTitle || ev.Organizer != "Lee" {
		t.Errorf("title/organizer = %q / %q", ev.Title, ev.Organizer)
	}

	// hour without date books today
	ev, err = e.Book(ctx, BookingRequest{RoomID: "a", Hour: intp(16), Duration: 15})
	if err != nil {
		t.Fatalf("Book today: %v", err)
	}
	if !ev.Start.Equal(at(16, 0)) {
		t.Errorf("start = %v, want 16:00 today", ev.Start)
	}
}

func TestBookValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(&fakeProvider{}, at(8, 0))

	tests := []struct {
		name  string
		req   BookingRequest
		field string
	}{
		{"zero duration", BookingRequest{RoomID: "a", Duration: 0}, "duration"},
		{"over a day", BookingRequest{RoomID: "a", Duration: 1441}, "duration"},
		{"date without hour", BookingRequest{RoomID: "a", Date: "2025-03-10", Duration: 30}, "hour"},
		{"bad hour", BookingRequest{RoomID: "a", Date: "2025-03-10", Hour: intp(24), Duration: 30}, "hour"},
		{"bad minute", BookingRequest{RoomID: "a", Date: "2025-03-10", Hour: intp(9), Minute: 60, Duration: 30}, "minute"},
		{"bad date", BookingRequest{RoomID: "a", Date: "March 10", Hour: intp(9), Duration: 30}, "date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Book(ctx, tt.req)
			var ve *apperror.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("Book error = %v, want ValidationError on %s", err, tt.field)
			}
		})
	}

	if _, err := e.Book(ctx, BookingRequest{RoomID: "missing", Duration: 30}); !apperror.IsNotFound(err) {
		t.Errorf("unknown room error = %v, want NotFound", err)
	}
}

func TestBookRecurringPartialSuccess(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	e := newTestEngine(p, at(8, 0))
	blocker := p.seed("a", "offsite", time.Date(2025, 3, 17, 9, 30, 0, 0, time.UTC), time.Date(2025, 3, 17, 11, 0, 0, 0, time.UTC))

	res, err := e.BookRecurring(ctx, RecurringRequest{
		RoomID:     "a",
		Weekdays:   []int{1},
		Hour:       9,
		Duration:   60,
		StartDate:  "2025-03-03",
		EndDate:    "2025-03-24",
		BookerName: "Team",
	})
	if err != nil {
		t.Fatalf("BookRecurring: %v", err)
	}

	if len(res.Created) != 3 {
		t.Errorf("created %d, want 3", len(res.Created))
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("skipped %d, want 1", len(res.Skipped))
	}
	skip := res.Skipped[0]
	if skip.Date != "2025-03-17" || skip.Conflicting == nil || skip.Conflicting.ID != blocker.ID {
		t.Errorf("skipped = %+v", skip)
	}
	for _, ev := range res.Created {
		if ev.Title != DefaultRecurringTitle || ev.Start.Weekday() != time.Monday {
			t.Errorf("created event = %+v", ev)
		}
	}
	assertNoOverlap(t, p.snapshot("a"))
}

func TestBookRecurringStopsOnProviderError(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{createErr: func(n int) error {
		if n == 2 {
			return apperror.Provider(models.ProviderGoogle, "create event", errors.New("unavailable"))
		}
		return nil
	}}
	e := newTestEngine(p, at(8, 0))

	res, err := e.BookRecurring(ctx, RecurringRequest{
		RoomID: "a", Weekdays: []int{1, 2, 3}, Hour: 9, Duration: 30,
		StartDate: "2025-03-10", EndDate: "2025-03-14",
	})
	var pe *apperror.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if res == nil || len(res.Created) != 1 {
		t.Fatalf("partial result = %+v", res)
	}
}

func TestBookRecurringValidation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(&fakeProvider{}, at(8, 0))

	tests := []struct {
		name  string
		req   RecurringRequest
		field string
	}{
		{"no days", RecurringRequest{RoomID: "a", Hour: 9, Duration: 30, StartDate: "2025-03-10", EndDate: "2025-03-20"}, "days"},
		{"bad start", RecurringRequest{RoomID: "a", Weekdays: []int{1}, Hour: 9, Duration: 30, StartDate: "x", EndDate: "2025-03-20"}, "start_date"},
		{"reversed", RecurringRequest{RoomID: "a", Weekdays: []int{1}, Hour: 9, Duration: 30, StartDate: "2025-03-20", EndDate: "2025-03-10"}, "end_date"},
		{"bad duration", RecurringRequest{RoomID: "a", Weekdays: []int{1}, Hour: 9, Duration: 0, StartDate: "2025-03-10", EndDate: "2025-03-20"}, "duration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.BookRecurring(ctx, tt.req)
			var ve *apperror.ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Errorf("error = %v, want ValidationError on %s", err, tt.field)
			}
		})
	}
}

func TestExtendRejectsOverlap(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	e := newTestEngine(p, at(9, 30))
	active := p.seed("a", "active", at(9, 0), at(10, 0))
	next := p.seed("a", "next", at(10, 15), at(11, 0))

	_, err := e.Extend(ctx, "a", active, 20)
	var ce *apperror.ConflictError
	if !errors.As(err, &ce) || ce.Event.ID != next.ID {
		t.Fatalf("Extend 20m error = %v, want conflict with next", err)
	}

	ev, err := e.Extend(ctx, "a", active, 10)
	if err != nil {
		t.Fatalf("Extend 10m: %v", err)
	}
	if !ev.End.Equal(at(10, 10)) {
		t.Errorf("end = %v, want 10:10", ev.End)
	}

	// target end already moved: the fresh end is used, reaching 10:15 exactly
	ev, err = e.Extend(ctx, "a", active, 5)
	if err != nil {
		t.Fatalf("Extend stale target: %v", err)
	}
	if !ev.End.Equal(at(10, 15)) {
		t.Errorf("end = %v, want 10:15", ev.End)
	}
	assertNoOverlap(t, p.snapshot("a"))
}

func TestExtendCurrent(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	e := newTestEngine(p, at(9, 30))

	_, err := e.ExtendCurrent(ctx, "a", 15)
	var ve *apperror.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("ExtendCurrent with no meeting = %v, want ValidationError", err)
	}

	p.seed("a", "active", at(9, 0), at(10, 0))
	ev, err := e.ExtendCurrent(ctx, "a", 15)
	if err != nil || !ev.End.Equal(at(10, 15)) {
		t.Fatalf("ExtendCurrent = %+v, %v", ev, err)
	}

	if _, err := e.Extend(ctx, "a", models.Event{ID: "ghost", Start: at(9, 0), End: at(9, 30)}, 5); !apperror.IsNotFound(err) {
		t.Errorf("Extend unknown event = %v, want NotFound", err)
	}
}

func TestEndNow(t *testing.T) {
	ctx := context.Background()

	t.Run("shortens active event", func(t *testing.T) {
		p := &fakeProvider{}
		e := newTestEngine(p, at(9, 30))
		p.seed("a", "active", at(9, 0), at(10, 0))

		ev, err := e.EndCurrent(ctx, "a")
		if err != nil {
			t.Fatalf("EndCurrent: %v", err)
		}
		if !ev.End.Equal(at(9, 30)) {
			t.Errorf("end = %v", ev.End)
		}
	})

	t.Run("event starting now is removed", func(t *testing.T) {
		p := &fakeProvider{}
		e := newTestEngine(p, at(9, 0))
		active := p.seed("a", "active", at(9, 0), at(10, 0))

		if _, err := e.EndNow(ctx, "a", active); err != nil {
			t.Fatalf("EndNow: %v", err)
		}
		if got := p.snapshot("a"); len(got) != 0 {
			t.Errorf("events after EndNow = %+v", got)
		}
	})

	t.Run("inactive event rejected", func(t *testing.T) {
		p := &fakeProvider{}
		e := newTestEngine(p, at(8, 0))
		future := p.seed("a", "future", at(9, 0), at(10, 0))

		_, err := e.EndNow(ctx, "a", future)
		var ve *apperror.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("EndNow = %v, want ValidationError", err)
		}
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{}
	e := newTestEngine(p, at(8, 0))
	ev := p.seed("a", "x", at(9, 0), at(10, 0))

	if err := e.Cancel(ctx, "a", ev.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := e.Cancel(ctx, "a", ev.ID); !apperror.IsNotFound(err) {
		t.Errorf("second Cancel = %v, want NotFound", err)
	}
}

func TestConcurrentSameRoomBookings(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{listDelay: 20 * time.Millisecond}
	e := newTestEngine(p, at(8, 0))

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// overlapping but not identical slots
			_, errs[i] = e.Book(ctx, BookingRequest{
				RoomID: "a", Date: "2025-03-10", Hour: intp(9), Minute: i, Duration: 30,
			})
		}(i)
	}
	wg.Wait()

	success, conflicts := 0, 0
	for _, err := range errs {
		var ce *apperror.ConflictError
		switch {
		case err == nil:
			success++
		case errors.As(err, &ce):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if success != 1 || conflicts != n-1 {
		t.Errorf("success = %d, conflicts = %d", success, conflicts)
	}
	assertNoOverlap(t, p.snapshot("a"))
}

func TestConcurrentDifferentRooms(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{listDelay: 10 * time.Millisecond}
	e := newTestEngine(p, at(8, 0))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, room := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, room string) {
			defer wg.Done()
			_, errs[i] = e.Book(ctx, BookingRequest{RoomID: room, Date: "2025-03-10", Hour: intp(9), Duration: 60})
		}(i, room)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("room %d: %v", i, err)
		}
	}
}
