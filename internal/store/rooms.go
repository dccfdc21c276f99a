// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
)

const roomColumns = `id, access_key, access_token, state, created_at, updated_at`

func scanRoom(row pgx.Row) (domain.Room, error) {
	var r domain.Room
	err := row.Scan(&r.ID, &r.AccessKey, &r.AccessToken, &r.State, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Room{}, domain.ErrNotFound{Kind: "room"}
	}
	if err != nil {
		return domain.Room{}, err
	}
	return r, nil
}

// UpsertRoom inserts the room or refreshes its keys. Idempotent on id.
func (s *Store) UpsertRoom(ctx context.Context, room domain.Room) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (id, access_key, access_token, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (id) DO UPDATE
		SET access_key = EXCLUDED.access_key,
		    access_token = EXCLUDED.access_token,
		    updated_at = now()`,
		room.ID, room.AccessKey, room.AccessToken, room.State)
	return err
}

// GetRoom fetches a room and its recording membership.
func (s *Store) GetRoom(ctx context.Context, id string) (domain.Room, error) {
	room, err := scanRoom(s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id))
	if err != nil {
		var notFound domain.ErrNotFound
		if errors.As(err, &notFound) {
			return domain.Room{}, domain.ErrNotFound{Kind: "room", ID: id}
		}
		return domain.Room{}, err
	}
	room.RecordingIDs, err = s.ListRoomRecordingIDs(ctx, id)
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// GetRoomByToken resolves a room by its read-only access token.
func (s *Store) GetRoomByToken(ctx context.Context, token string) (domain.Room, error) {
	if token == "" {
		return domain.Room{}, domain.ErrNotFound{Kind: "room"}
	}
	room, err := scanRoom(s.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE access_token = $1`, token))
	if err != nil {
		return domain.Room{}, err
	}
	room.RecordingIDs, err = s.ListRoomRecordingIDs(ctx, room.ID)
	if err != nil {
		return domain.Room{}, err
	}
	return room, nil
}

// ListRooms returns all rooms ordered by creation time, newest first.
func (s *Store) ListRooms(ctx context.Context) ([]domain.Room, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+roomColumns+` FROM rooms ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := make([]domain.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// UpdateRoomState performs the conditional transition from -> to. It fails
// with ErrInvalidTransition when the row is not in the expected state, and
// with ErrNotFound when the room does not exist.
func (s *Store) UpdateRoomState(ctx context.Context, id string, from, to domain.RoomState) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE rooms SET state = $1, updated_at = now()
		WHERE id = $2 AND state = $3`,
		to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := s.pool.QueryRow(ctx, `SELECT state FROM rooms WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound{Kind: "room", ID: id}
		}
		if err != nil {
			return err
		}
		return domain.ErrInvalidTransition{Entity: "room", From: current, To: string(to)}
	}
	return nil
}

// DeleteRoom removes the room; membership links cascade, the underlying
// recordings are kept.
func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound{Kind: "room", ID: id}
	}
	return nil
}

// AddRecordingToRoom links a recording into a room. Re-adding the same id is
// a no-op (set semantics).
func (s *Store) AddRecordingToRoom(ctx context.Context, roomID, recordingID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_recordings (room_id, recording_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		roomID, recordingID)
	return err
}

// ClearRoomRecordings removes every membership link of the room. Used when a
// finished room loops back to idle for reuse.
func (s *Store) ClearRoomRecordings(ctx context.Context, roomID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM room_recordings WHERE room_id = $1`, roomID)
	return err
}

// ListRoomRecordingIDs returns the recording ids linked to the room in
// insertion-stable order.
func (s *Store) ListRoomRecordingIDs(ctx context.Context, roomID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT recording_id FROM room_recordings WHERE room_id = $1 ORDER BY recording_id`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
