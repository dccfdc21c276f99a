// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
)

const recordingColumns = `id, COALESCE(room_id, ''), state, metadata, chunk_count, total_size,
	start_time, end_time, processing_state, processing_error, output_mp4_key, output_m4a_key,
	processed_at, transcription_state, transcription_error, output_vtt_key, transcribed_at,
	created_at, updated_at`

func scanRecording(row pgx.Row) (domain.Recording, error) {
	var (
		rec      domain.Recording
		metaJSON []byte
	)
	err := row.Scan(
		&rec.ID, &rec.RoomID, &rec.State, &metaJSON, &rec.ChunkCount, &rec.TotalSize,
		&rec.StartTime, &rec.EndTime, &rec.ProcessingState, &rec.ProcessingError,
		&rec.OutputMP4Key, &rec.OutputM4AKey, &rec.ProcessedAt,
		&rec.TranscriptionState, &rec.TranscriptionError, &rec.OutputVTTKey, &rec.TranscribedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Recording{}, domain.ErrNotFound{Kind: "recording"}
	}
	if err != nil {
		return domain.Recording{}, err
	}
	if len(metaJSON) > 0 {
		var meta domain.RecordingMetadata
		if err := json.Unmarshal(metaJSON, &meta); err == nil {
			rec.Metadata = &meta
		}
	}
	return rec, nil
}

// UpsertRecording inserts the recording or refreshes its room binding.
// Idempotent on id.
func (s *Store) UpsertRecording(ctx context.Context, rec domain.Recording) error {
	var roomID any
	if rec.RoomID != "" {
		roomID = rec.RoomID
	}
	var metaJSON []byte
	if rec.Metadata != nil {
		var err error
		metaJSON, err = json.Marshal(rec.Metadata)
		if err != nil {
			return err
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO recordings (id, room_id, state, metadata, start_time, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now(), now())
		ON CONFLICT (id) DO UPDATE
		SET room_id = EXCLUDED.room_id,
		    updated_at = now()`,
		rec.ID, roomID, rec.State, metaJSON)
	return err
}

// GetRecording fetches a recording by id.
func (s *Store) GetRecording(ctx context.Context, id string) (domain.Recording, error) {
	rec, err := scanRecording(s.pool.QueryRow(ctx,
		`SELECT `+recordingColumns+` FROM recordings WHERE id = $1`, id))
	if err != nil {
		var notFound domain.ErrNotFound
		if errors.As(err, &notFound) {
			return domain.Recording{}, domain.ErrNotFound{Kind: "recording", ID: id}
		}
		return domain.Recording{}, err
	}
	return rec, nil
}

// DeleteRecording removes the recording row; membership links cascade.
func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM recordings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	return nil
}

// ListRecordingsForRoom returns the recordings linked to the room.
func (s *Store) ListRecordingsForRoom(ctx context.Context, roomID string) ([]domain.Recording, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordingColumns+` FROM recordings
		WHERE id IN (SELECT recording_id FROM room_recordings WHERE room_id = $1)
		ORDER BY created_at`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs := make([]domain.Recording, 0)
	for rows.Next() {
		rec, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// UpdateRecordingState performs the conditional transition from -> to. A
// transition to a terminal state also sets end_time.
func (s *Store) UpdateRecordingState(ctx context.Context, id string, from, to domain.RecordingState) error {
	query := `UPDATE recordings SET state = $1, updated_at = now() WHERE id = $2 AND state = $3`
	if to.Terminal() {
		query = `UPDATE recordings SET state = $1, end_time = now(), updated_at = now()
			WHERE id = $2 AND state = $3`
	}
	tag, err := s.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := s.pool.QueryRow(ctx, `SELECT state FROM recordings WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound{Kind: "recording", ID: id}
		}
		if err != nil {
			return err
		}
		return domain.ErrInvalidTransition{Entity: "recording", From: current, To: string(to)}
	}
	return nil
}

// UpdateRecordingMetadata replaces the metadata blob. The update is
// conditional on the recording still being mutable (standby or recording).
func (s *Store) UpdateRecordingMetadata(ctx context.Context, id string, meta *domain.RecordingMetadata) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE recordings SET metadata = $1, updated_at = now()
		WHERE id = $2 AND state IN ('standby', 'recording')`,
		metaJSON, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := s.pool.QueryRow(ctx, `SELECT state FROM recordings WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound{Kind: "recording", ID: id}
		}
		if err != nil {
			return err
		}
		return domain.ErrInvalidOperation{Reason: "metadata can only be updated in standby or recording state, not " + current}
	}
	return nil
}

// IncrementChunkCount bumps chunk_count by one and total_size by size.
// chunk_count is monotonically non-decreasing; there is no reset path.
func (s *Store) IncrementChunkCount(ctx context.Context, id string, size int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE recordings
		SET chunk_count = chunk_count + 1, total_size = total_size + $1, updated_at = now()
		WHERE id = $2`,
		size, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	return nil
}

// ProcessingUpdate carries the result of a post-production stage.
type ProcessingUpdate struct {
	State   domain.ProcessingState
	Error   string
	MP4Key  string
	M4AKey  string
	VTTKey  string
}

// UpdateProcessingState records audio-extraction progress. Completion stamps
// processed_at and the output keys.
func (s *Store) UpdateProcessingState(ctx context.Context, id string, upd ProcessingUpdate) error {
	var query string
	var args []any
	switch upd.State {
	case domain.ProcessingCompleted:
		query = `UPDATE recordings
			SET processing_state = $1, processing_error = '', output_mp4_key = $2,
			    output_m4a_key = $3, processed_at = now(), updated_at = now()
			WHERE id = $4`
		args = []any{upd.State, upd.MP4Key, upd.M4AKey, id}
	default:
		query = `UPDATE recordings
			SET processing_state = $1, processing_error = $2, updated_at = now()
			WHERE id = $3`
		args = []any{upd.State, upd.Error, id}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	return nil
}

// UpdateTranscriptionState records transcription progress. Completion stamps
// transcribed_at and the subtitle key.
func (s *Store) UpdateTranscriptionState(ctx context.Context, id string, upd ProcessingUpdate) error {
	var query string
	var args []any
	switch upd.State {
	case domain.ProcessingCompleted:
		query = `UPDATE recordings
			SET transcription_state = $1, transcription_error = '', output_vtt_key = $2,
			    transcribed_at = now(), updated_at = now()
			WHERE id = $3`
		args = []any{upd.State, upd.VTTKey, id}
	default:
		query = `UPDATE recordings
			SET transcription_state = $1, transcription_error = $2, updated_at = now()
			WHERE id = $3`
		args = []any{upd.State, upd.Error, id}
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	return nil
}
