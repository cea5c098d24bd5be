package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/room-display/backend/internal/apperror"
	"github.com/room-display/backend/internal/storage/models"
)

// RoomRepository provides data access for rooms.
type RoomRepository struct {
	BaseRepository
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *DB) *RoomRepository {
	return &RoomRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const roomColumns = `id, name, calendar_provider, calendar_id, timezone, is_active, created_at, updated_at`

// Create inserts a new room.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room) error {
	if !models.ValidProvider(room.Provider) {
		return apperror.Invalid("calendar_provider", fmt.Sprintf("unsupported provider %q", room.Provider))
	}

	room.ID = GenerateID()
	room.Provider = room.ProviderKind()
	room.Active = true
	room.CreatedAt = r.Now()
	room.UpdatedAt = room.CreatedAt

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		room.ID, room.Name, room.Provider, room.CalendarID, room.Timezone,
		room.Active, formatTime(room.CreatedAt), formatTime(room.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting room: %w", err)
	}

	return nil
}

// GetByID retrieves a room by its ID.
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*models.Room, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("room", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying room: %w", err)
	}

	return room, nil
}

// FindByName returns the first room with the given name, or nil.
func (r *RoomRepository) FindByName(ctx context.Context, name string) (*models.Room, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE name = ? LIMIT 1`, name)

	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying room by name: %w", err)
	}

	return room, nil
}

// ListActive retrieves all active rooms ordered by name.
func (r *RoomRepository) ListActive(ctx context.Context) ([]models.Room, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE is_active = 1 ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, *room)
	}

	return rooms, rows.Err()
}

// Update saves name, timezone, active flag and provider binding.
// The provider binding cannot change once the room has local events,
// since switching providers does not migrate history.
func (r *RoomRepository) Update(ctx context.Context, room *models.Room) error {
	if !models.ValidProvider(room.Provider) {
		return apperror.Invalid("calendar_provider", fmt.Sprintf("unsupported provider %q", room.Provider))
	}
	room.Provider = room.ProviderKind()
	room.UpdatedAt = r.Now()

	return r.Transaction(func(tx *sql.Tx) error {
		var provider, calendarID string
		err := tx.QueryRowContext(ctx,
			"SELECT calendar_provider, calendar_id FROM rooms WHERE id = ?", room.ID,
		).Scan(&provider, &calendarID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("room", room.ID)
		}
		if err != nil {
			return fmt.Errorf("querying room binding: %w", err)
		}

		if provider != room.Provider || calendarID != room.CalendarID {
			var count int
			if err := tx.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM local_events WHERE room_id = ?", room.ID,
			).Scan(&count); err != nil {
				return fmt.Errorf("counting room events: %w", err)
			}
			if count > 0 {
				return apperror.Invalid("calendar_provider", "provider binding is fixed once the room has events")
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE rooms SET
				name = ?, calendar_provider = ?, calendar_id = ?, timezone = ?, is_active = ?, updated_at = ?
			WHERE id = ?
		`,
			room.Name, room.Provider, room.CalendarID, room.Timezone, room.Active,
			formatTime(room.UpdatedAt), room.ID,
		)
		if err != nil {
			return fmt.Errorf("updating room: %w", err)
		}
		return nil
	})
}

// Delete removes a room and, through the foreign key, its local events.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM rooms WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return apperror.NotFound("room", id)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var room models.Room
	var createdAt, updatedAt string

	if err := row.Scan(
		&room.ID, &room.Name, &room.Provider, &room.CalendarID, &room.Timezone,
		&room.Active, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if room.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if room.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	return &room, nil
}
