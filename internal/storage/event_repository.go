package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/storage/models"
)

// EventRepository provides data access for events of locally-stored rooms.
type EventRepository struct {
	BaseRepository
}

// NewEventRepository creates a new local event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const eventColumns = `id, room_id, title, description, organizer, start_time, end_time`

// ListOverlapping returns the room's events intersecting [start, end), ordered by start.
func (r *EventRepository) ListOverlapping(ctx context.Context, roomID string, start, end time.Time) ([]models.Event, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM local_events
		WHERE room_id = ?
		  AND start_time < ?
		  AND end_time > ?
		ORDER BY start_time, end_time
	`, roomID, formatTime(end), formatTime(start))
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *ev)
	}

	return events, rows.Err()
}

// GetByID retrieves one of the room's events.
func (r *EventRepository) GetByID(ctx context.Context, roomID, id string) (*models.Event, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM local_events WHERE id = ? AND room_id = ?
	`, id, roomID)

	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("event", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}

	return ev, nil
}

// Create inserts ev, assigning its ID. Times are stored at second precision.
func (r *EventRepository) Create(ctx context.Context, ev *models.Event) error {
	ev.ID = GenerateID()
	ev.Origin = models.ProviderLocal
	ev.Start = ev.Start.Truncate(time.Second)
	ev.End = ev.End.Truncate(time.Second)
	if !ev.End.After(ev.Start) {
		return apperror.Invalid("end", "must be after start")
	}
	now := r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO local_events (`+eventColumns+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.ID, ev.RoomID, ev.Title, ev.Description, ev.Organizer,
		formatTime(ev.Start), formatTime(ev.End), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	return nil
}

// UpdateEnd moves an event's end and returns the updated event.
func (r *EventRepository) UpdateEnd(ctx context.Context, roomID, id string, end time.Time) (*models.Event, error) {
	var updated *models.Event

	err := r.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+eventColumns+` FROM local_events WHERE id = ? AND room_id = ?
		`, id, roomID)
		ev, err := scanEvent(row)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("event", id)
		}
		if err != nil {
			return fmt.Errorf("querying event: %w", err)
		}

		ev.End = end.Truncate(time.Second)
		if !ev.End.After(ev.Start) {
			return apperror.Invalid("end", "must be after start")
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE local_events SET end_time = ?, updated_at = ? WHERE id = ?
		`, formatTime(ev.End), formatTime(r.Now()), id); err != nil {
			return fmt.Errorf("updating event end: %w", err)
		}

		updated = ev
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete removes one of the room's events.
func (r *EventRepository) Delete(ctx context.Context, roomID, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM local_events WHERE id = ? AND room_id = ?", id, roomID)
	if err != nil {
		return fmt.Errorf("deleting event: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperror.NotFound("event", id)
	}

	return nil
}

// CountByRoom returns how many local events a room has.
func (r *EventRepository) CountByRoom(ctx context.Context, roomID string) (int, error) {
	var count int
	if err := r.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM local_events WHERE room_id = ?", roomID,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var ev models.Event
	var start, end string

	if err := row.Scan(
		&ev.ID, &ev.RoomID, &ev.Title, &ev.Description, &ev.Organizer, &start, &end,
	); err != nil {
		return nil, err
	}

	var err error
	if ev.Start, err = parseTime(start); err != nil {
		return nil, err
	}
	if ev.End, err = parseTime(end); err != nil {
		return nil, err
	}
	ev.Origin = models.ProviderLocal

	return &ev, nil
}
