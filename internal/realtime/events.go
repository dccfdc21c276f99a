// SPDX-License-Identifier: MIT

package realtime

import (
	"encoding/json"
	"time"
)

// Client-to-server event names.
const (
	EventJoinRoom          = "join_room"
	EventLeaveRoom         = "leave_room"
	EventSetRecordingID    = "set_recording_id"
	EventGuestSyncUpdate   = "guest_sync_update"
	EventGuestSyncComplete = "guest_sync_complete"
	EventGuestSyncError    = "guest_sync_error"
	EventGuestMediaStatus  = "guest_media_status_update"
	EventGuestWaveform     = "guest_waveform_update"
	EventTimeSyncPing      = "time_sync_ping"
)

// Server-to-client event names.
const (
	EventRoomGuests              = "room_guests"
	EventGuestJoined             = "guest_joined"
	EventGuestLeft               = "guest_left"
	EventGuestRecordingLinked    = "guest_recording_linked"
	EventGuestSyncStateChanged   = "guest_sync_state_changed"
	EventGuestSyncCompleted      = "guest_sync_complete"
	EventGuestSyncFailed         = "guest_sync_error"
	EventGuestMediaStatusChanged = "guest_media_status_changed"
	EventGuestWaveformChanged    = "guest_waveform_changed"
	EventTimeSyncPong            = "time_sync_pong"
	EventRoomStateChanged        = "room_state_changed"
	EventScheduledStart          = "scheduled_recording_start"
)

// Envelope is the wire frame for every WebSocket message in both directions.
// Timestamp is server-assigned on broadcasts; clients sort locally when they
// need a total order.
type Envelope struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// NewEnvelope marshals data into a stamped envelope.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Event:     event,
		Data:      raw,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}, nil
}

// Client-to-server payloads.

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
	Name   string `json:"name,omitempty"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"roomId"`
}

type SetRecordingIDPayload struct {
	RoomID      string `json:"roomId"`
	RecordingID string `json:"recordingId"`
}

type SyncUpdatePayload struct {
	RoomID         string `json:"roomId"`
	RecordingID    string `json:"recordingId"`
	SyncState      string `json:"syncState"`
	UploadedChunks int    `json:"uploadedChunks"`
	TotalChunks    int    `json:"totalChunks"`
}

type SyncCompletePayload struct {
	RoomID      string `json:"roomId"`
	RecordingID string `json:"recordingId"`
	TotalChunks int    `json:"totalChunks"`
}

type SyncErrorPayload struct {
	RoomID       string `json:"roomId"`
	RecordingID  string `json:"recordingId"`
	ErrorMessage string `json:"errorMessage"`
	FailedChunks int    `json:"failedChunks"`
}

type MediaStatusPayload struct {
	RoomID      string          `json:"roomId"`
	MediaStatus json.RawMessage `json:"mediaStatus"`
}

type WaveformPayload struct {
	RoomID       string    `json:"roomId"`
	WaveformData []float64 `json:"waveformData"`
	IsSilent     bool      `json:"isSilent"`
}

type TimeSyncPingPayload struct {
	RoomID         string `json:"roomId"`
	ClientSendTime int64  `json:"clientSendTime"`
}

// Server-to-client payloads.

type RoomGuestsPayload struct {
	RoomID string          `json:"roomId"`
	Guests []GuestPresence `json:"guests"`
}

type GuestJoinedPayload struct {
	RoomID string `json:"roomId"`
	Guest  GuestPresence `json:"guest"`
}

type GuestLeftPayload struct {
	RoomID  string `json:"roomId"`
	GuestID string `json:"guestId"`
}

type RecordingLinkedPayload struct {
	RoomID      string `json:"roomId"`
	GuestID     string `json:"guestId"`
	RecordingID string `json:"recordingId"`
}

type SyncStateChangedPayload struct {
	RoomID         string `json:"roomId"`
	GuestID        string `json:"guestId"`
	RecordingID    string `json:"recordingId"`
	SyncState      string `json:"syncState"`
	UploadedChunks int    `json:"uploadedChunks"`
	TotalChunks    int    `json:"totalChunks"`
}

type SyncCompletedPayload struct {
	RoomID      string `json:"roomId"`
	GuestID     string `json:"guestId"`
	RecordingID string `json:"recordingId"`
	TotalChunks int    `json:"totalChunks"`
}

type SyncFailedPayload struct {
	RoomID       string `json:"roomId"`
	GuestID      string `json:"guestId"`
	RecordingID  string `json:"recordingId"`
	ErrorMessage string `json:"errorMessage"`
	FailedChunks int    `json:"failedChunks"`
}

type MediaStatusChangedPayload struct {
	RoomID      string          `json:"roomId"`
	GuestID     string          `json:"guestId"`
	MediaStatus json.RawMessage `json:"mediaStatus"`
}

type WaveformChangedPayload struct {
	RoomID       string    `json:"roomId"`
	GuestID      string    `json:"guestId"`
	WaveformData []float64 `json:"waveformData"`
	IsSilent     bool      `json:"isSilent"`
}

type TimeSyncPongPayload struct {
	ClientSendTime    int64 `json:"clientSendTime"`
	ServerReceiveTime int64 `json:"serverReceiveTime"`
	ServerSendTime    int64 `json:"serverSendTime"`
}

type RoomStateChangedPayload struct {
	RoomID string `json:"roomId"`
	State  string `json:"state"`
}

type ScheduledStartPayload struct {
	RoomID    string `json:"roomId"`
	StartTime int64  `json:"startTime"` // milliseconds since epoch
}
