// SPDX-License-Identifier: MIT

package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the schema if it does not exist. It is idempotent and runs
// on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id           TEXT PRIMARY KEY,
			access_key   TEXT NOT NULL,
			access_token TEXT NOT NULL DEFAULT '',
			state        TEXT NOT NULL DEFAULT 'idle',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS recordings (
			id                  TEXT PRIMARY KEY,
			room_id             TEXT,
			state               TEXT NOT NULL DEFAULT 'standby',
			metadata            JSONB,
			chunk_count         INTEGER NOT NULL DEFAULT 0,
			total_size          BIGINT NOT NULL DEFAULT 0,
			start_time          TIMESTAMPTZ NOT NULL DEFAULT now(),
			end_time            TIMESTAMPTZ,
			processing_state    TEXT NOT NULL DEFAULT 'pending',
			processing_error    TEXT NOT NULL DEFAULT '',
			output_mp4_key      TEXT NOT NULL DEFAULT '',
			output_m4a_key      TEXT NOT NULL DEFAULT '',
			processed_at        TIMESTAMPTZ,
			transcription_state TEXT NOT NULL DEFAULT 'pending',
			transcription_error TEXT NOT NULL DEFAULT '',
			output_vtt_key      TEXT NOT NULL DEFAULT '',
			transcribed_at      TIMESTAMPTZ,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS room_recordings (
			room_id      TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
			recording_id TEXT NOT NULL REFERENCES recordings(id) ON DELETE CASCADE,
			PRIMARY KEY (room_id, recording_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recordings_room_id ON recordings(room_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rooms_access_token ON rooms(access_token) WHERE access_token <> ''`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
