// SPDX-License-Identifier: MIT

package realtime

import (
	"encoding/json"
	"time"
)

// SyncState is the per-guest upload progress, distinct from the recording
// state machine.
type SyncState string

const (
	SyncIdle      SyncState = "idle"
	SyncRecording SyncState = "recording"
	SyncUploading SyncState = "uploading"
	SyncSynced    SyncState = "synced"
	SyncError     SyncState = "error"
)

// GuestPresence is the ephemeral, coordinator-owned record of one connected
// guest. It is never persisted; a reconnecting guest gets a fresh presence
// under a new guest id.
type GuestPresence struct {
	GuestID        string          `json:"guestId"`
	ConnectionID   string          `json:"-"`
	RecordingID    string          `json:"recordingId,omitempty"`
	Name           string          `json:"name,omitempty"`
	SyncState      SyncState       `json:"syncState"`
	UploadedChunks int             `json:"uploadedChunks"`
	TotalChunks    int             `json:"totalChunks"`
	LastUpdatedAt  time.Time       `json:"lastUpdatedAt"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	MediaStatus    json.RawMessage `json:"mediaStatus,omitempty"`
}
