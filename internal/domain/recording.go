// SPDX-License-Identifier: MIT

package domain

import "time"

// RecordingState is the lifecycle state of a single participant recording.
type RecordingState string

const (
	RecordingStandby     RecordingState = "standby"
	RecordingRecording   RecordingState = "recording"
	RecordingFinalizing  RecordingState = "finalizing"
	RecordingSynced      RecordingState = "synced"
	RecordingInterrupted RecordingState = "interrupted"
)

// Valid reports whether s is a known recording state.
func (s RecordingState) Valid() bool {
	switch s {
	case RecordingStandby, RecordingRecording, RecordingFinalizing,
		RecordingSynced, RecordingInterrupted:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s RecordingState) Terminal() bool {
	return s == RecordingSynced || s == RecordingInterrupted
}

// ProcessingState tracks post-production progress per recording. It is used
// for both the audio-extraction and the transcription stages.
type ProcessingState string

const (
	ProcessingPending    ProcessingState = "pending"
	ProcessingProcessing ProcessingState = "processing"
	ProcessingCompleted  ProcessingState = "completed"
	ProcessingFailed     ProcessingState = "failed"
)

// ClockSyncInfo carries the client-reported clock offset handshake result.
// The server never verifies the applied offset; it only echoes timestamps.
type ClockSyncInfo struct {
	OffsetMs     float64 `json:"offsetMs"`
	RoundTripMs  float64 `json:"roundTripMs"`
	MeasuredAt   int64   `json:"measuredAt,omitempty"`
	SampleCount  int     `json:"sampleCount,omitempty"`
	ScheduledFor int64   `json:"scheduledFor,omitempty"`
}

// CodecInfo describes the encoded stream as reported by the capture client.
type CodecInfo struct {
	VideoCodec   string  `json:"videoCodec,omitempty"`
	AudioCodec   string  `json:"audioCodec,omitempty"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	VideoBitrate int     `json:"videoBitrate,omitempty"`
	AudioBitrate int     `json:"audioBitrate,omitempty"`
	Framerate    float64 `json:"framerate,omitempty"`
	DurationUs   int64   `json:"durationUs,omitempty"`
}

// RecordingMetadata is the client-supplied descriptive blob. It may only be
// mutated while the recording is in standby or recording state.
type RecordingMetadata struct {
	DisplayName     string         `json:"displayName,omitempty"`
	ParticipantName string         `json:"participantName,omitempty"`
	DeviceInfo      string         `json:"deviceInfo,omitempty"`
	Codec           *CodecInfo     `json:"codec,omitempty"`
	ClockSync       *ClockSyncInfo `json:"clockSync,omitempty"`
}

// Recording is the durable record of one participant's upload stream.
type Recording struct {
	ID         string
	RoomID     string // empty for standalone recordings
	State      RecordingState
	Metadata   *RecordingMetadata
	ChunkCount int
	TotalSize  int64
	StartTime  time.Time
	EndTime    *time.Time

	ProcessingState ProcessingState
	ProcessingError string
	OutputMP4Key    string
	OutputM4AKey    string
	ProcessedAt     *time.Time

	TranscriptionState ProcessingState
	TranscriptionError string
	OutputVTTKey       string
	TranscribedAt      *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

var recordingTransitions = map[RecordingState]RecordingState{
	RecordingStandby:    RecordingRecording,
	RecordingRecording:  RecordingFinalizing,
	RecordingFinalizing: RecordingSynced,
}

// NextRecordingState validates the transition from -> to. The happy path is
// linear; a client may additionally report interrupted from any non-terminal
// in-flight state.
func NextRecordingState(from, to RecordingState) error {
	if !to.Valid() {
		return ErrInvalidArgument{Field: "state", Reason: "unknown state"}
	}
	if recordingTransitions[from] == to {
		return nil
	}
	if to == RecordingInterrupted &&
		(from == RecordingRecording || from == RecordingFinalizing) {
		return nil
	}
	return ErrInvalidTransition{Entity: "recording", From: string(from), To: string(to)}
}

// CanUpdateMetadata reports whether the metadata blob may still be mutated.
func (s RecordingState) CanUpdateMetadata() bool {
	return s == RecordingStandby || s == RecordingRecording
}
