package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/storage/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := RunMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	return db
}

func createRoom(t *testing.T, db *DB, name string) *models.Room {
	t.Helper()

	room := &models.Room{Name: name}
	if err := NewRoomRepository(db).Create(context.Background(), room); err != nil {
		t.Fatalf("creating room: %v", err)
	}
	return room
}

func TestRunMigrationsIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := RunMigrations(context.Background(), db, nil); err != nil {
		t.Fatalf("second RunMigrations: %v", err)
	}
}

func TestRoomRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewRoomRepository(db)

	room := createRoom(t, db, "Boardroom")
	if room.Provider != models.ProviderLocal {
		t.Errorf("Provider = %q, want local", room.Provider)
	}

	got, err := repo.GetByID(ctx, room.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Boardroom" || !got.Active {
		t.Errorf("GetByID = %+v", got)
	}

	if _, err := repo.GetByID(ctx, "missing"); !apperror.IsNotFound(err) {
		t.Errorf("GetByID(missing) error = %v, want NotFound", err)
	}

	createRoom(t, db, "Annex")
	rooms, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(rooms) != 2 || rooms[0].Name != "Annex" {
		t.Errorf("ListActive = %+v, want Annex first", rooms)
	}

	found, err := repo.FindByName(ctx, "Boardroom")
	if err != nil || found == nil || found.ID != room.ID {
		t.Errorf("FindByName = %+v, %v", found, err)
	}

	if err := repo.Delete(ctx, room.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, room.ID); !apperror.IsNotFound(err) {
		t.Errorf("second Delete error = %v, want NotFound", err)
	}
}

func TestRoomRepositoryRejectsUnknownProvider(t *testing.T) {
	db := openTestDB(t)

	err := NewRoomRepository(db).Create(context.Background(), &models.Room{Name: "X", Provider: "exchange"})
	var ve *apperror.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Create error = %v, want ValidationError", err)
	}
}

func TestRoomProviderBindingFixedOnceEventsExist(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	rooms := NewRoomRepository(db)
	events := NewEventRepository(db)

	room := createRoom(t, db, "Focus")

	room.Provider = models.ProviderGoogle
	room.CalendarID = "focus@example.com"
	if err := rooms.Update(ctx, room); err != nil {
		t.Fatalf("Update without events: %v", err)
	}

	room.Provider = models.ProviderLocal
	room.CalendarID = ""
	if err := rooms.Update(ctx, room); err != nil {
		t.Fatalf("Update back to local: %v", err)
	}

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if err := events.Create(ctx, &models.Event{RoomID: room.ID, Title: "Sync", Start: start, End: start.Add(time.Hour)}); err != nil {
		t.Fatalf("Create event: %v", err)
	}

	room.Provider = models.ProviderMicrosoft
	err := rooms.Update(ctx, room)
	var ve *apperror.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Update with events error = %v, want ValidationError", err)
	}

	room.Provider = models.ProviderLocal
	room.Name = "Focus 2"
	if err := rooms.Update(ctx, room); err != nil {
		t.Fatalf("renaming room: %v", err)
	}
}

func TestEventRepositoryListOverlapping(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)
	room := createRoom(t, db, "Room A")
	other := createRoom(t, db, "Room B")

	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute) }

	for _, ev := range []models.Event{
		{RoomID: room.ID, Title: "late", Start: at(11, 0), End: at(12, 0)},
		{RoomID: room.ID, Title: "early", Start: at(9, 0), End: at(10, 0)},
		{RoomID: room.ID, Title: "overnight", Start: at(-2, 0), End: at(1, 0)},
		{RoomID: other.ID, Title: "elsewhere", Start: at(9, 0), End: at(10, 0)},
	} {
		ev := ev
		if err := repo.Create(ctx, &ev); err != nil {
			t.Fatalf("Create %s: %v", ev.Title, err)
		}
	}

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  []string
	}{
		{"whole day", at(0, 0), at(24, 0), []string{"overnight", "early", "late"}},
		{"touching end excluded", at(10, 0), at(11, 0), nil},
		{"partial overlap", at(9, 30), at(11, 30), []string{"early", "late"}},
		{"previous day tail", at(-1, 0), at(0, 30), []string{"overnight"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListOverlapping(ctx, room.ID, tt.start, tt.end)
			if err != nil {
				t.Fatalf("ListOverlapping: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d events, want %d", len(got), len(tt.want))
			}
			for i, ev := range got {
				if ev.Title != tt.want[i] {
					t.Errorf("event %d = %q, want %q", i, ev.Title, tt.want[i])
				}
				if ev.Origin != models.ProviderLocal {
					t.Errorf("event %d origin = %q", i, ev.Origin)
				}
			}
		})
	}
}

func TestEventRepositoryUpdateEndAndDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewEventRepository(db)
	room := createRoom(t, db, "Room A")

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	ev := &models.Event{RoomID: room.ID, Title: "Standup", Start: start, End: start.Add(30 * time.Minute)}
	if err := repo.Create(ctx, ev); err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := repo.UpdateEnd(ctx, room.ID, ev.ID, start.Add(45*time.Minute))
	if err != nil {
		t.Fatalf("UpdateEnd: %v", err)
	}
	if !updated.End.Equal(start.Add(45 * time.Minute)) {
		t.Errorf("End = %v", updated.End)
	}

	if _, err := repo.UpdateEnd(ctx, room.ID, ev.ID, start); err == nil {
		t.Error("UpdateEnd to start: expected error")
	}
	if _, err := repo.UpdateEnd(ctx, "other-room", ev.ID, start.Add(time.Hour)); !apperror.IsNotFound(err) {
		t.Errorf("UpdateEnd wrong room error = %v, want NotFound", err)
	}

	count, err := repo.CountByRoom(ctx, room.ID)
	if err != nil || count != 1 {
		t.Errorf("CountByRoom = %d, %v", count, err)
	}

	if err := repo.Delete(ctx, room.ID, ev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := repo.Delete(ctx, room.ID, ev.ID); !apperror.IsNotFound(err) {
		t.Errorf("second Delete error = %v, want NotFound", err)
	}
}

func TestRoomDeleteCascadesEvents(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	events := NewEventRepository(db)
	room := createRoom(t, db, "Temp")

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if err := events.Create(ctx, &models.Event{RoomID: room.ID, Title: "x", Start: start, End: start.Add(time.Hour)}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := NewRoomRepository(db).Delete(ctx, room.ID); err != nil {
		t.Fatalf("Delete room: %v", err)
	}

	count, err := events.CountByRoom(ctx, room.ID)
	if err != nil || count != 0 {
		t.Errorf("CountByRoom after delete = %d, %v", count, err)
	}
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewTokenRepository(openTestDB(t))

	tok, err := repo.Get(ctx, models.ProviderGoogle)
	if err != nil || tok != nil {
		t.Fatalf("Get before save = %+v, %v", tok, err)
	}

	expiry := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	if err := repo.Save(ctx, &models.ProviderToken{
		Provider:     models.ProviderGoogle,
		AccessToken:  "a1",
		RefreshToken: "r1",
		ExpiresAt:    &expiry,
	}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := repo.Save(ctx, &models.ProviderToken{
		Provider:     models.ProviderGoogle,
		AccessToken:  "a2",
		RefreshToken: "r1",
		ExpiresAt:    &expiry,
	}); err != nil {
		t.Fatalf("Save upsert: %v", err)
	}

	tok, err = repo.Get(ctx, models.ProviderGoogle)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tok.AccessToken != "a2" || tok.TokenType != "Bearer" || tok.ExpiresAt == nil || !tok.ExpiresAt.Equal(expiry) {
		t.Errorf("Get = %+v", tok)
	}
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingsRepository(openTestDB(t))

	if got := repo.Int(ctx, models.SettingDefaultBookingMinutes, 0); got != 30 {
		t.Errorf("default booking minutes = %d, want 30", got)
	}
	if got := repo.Int(ctx, "missing", 7); got != 7 {
		t.Errorf("missing key = %d, want fallback 7", got)
	}

	if err := repo.Set(ctx, models.SettingDefaultExtendMinutes, "20"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := repo.Set(ctx, models.SettingWeekStart, "monday"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if all[models.SettingDefaultExtendMinutes] != "20" || all[models.SettingWeekStart] != "monday" {
		t.Errorf("All = %v", all)
	}
	if got := repo.String(ctx, models.SettingWeekStart, "sunday"); got != "monday" {
		t.Errorf("week start = %q", got)
	}
}
