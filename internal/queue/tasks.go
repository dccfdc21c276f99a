// SPDX-License-Identifier: MIT

// Package queue carries the durable post-production jobs between the server
// and the worker. The backend is Redis via asynq; when no Redis is configured
// the enqueuer degrades to a no-op and jobs are skipped silently.
package queue

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type identifiers.
const (
	TypeAudioExtraction = "audio:extract"
	TypeTranscription   = "audio:transcribe"
)

// Queue names.
const (
	QueueAudioExtraction = "audio-extraction"
	QueueTranscription   = "transcription"
)

const (
	maxRetry        = 3
	backoffBase     = 30 * time.Second
	completedRetain = 24 * time.Hour
)

// AudioExtractionJob asks the worker to assemble and extract audio for every
// recording of a finished room.
type AudioExtractionJob struct {
	RoomID       string    `json:"roomId"`
	RecordingIDs []string  `json:"recordingIds"`
	CreatedAt    time.Time `json:"createdAt"`
}

// TranscriptionJob asks the worker to transcribe one extracted audio file.
type TranscriptionJob struct {
	RoomID      string    `json:"roomId"`
	RecordingID string    `json:"recordingId"`
	M4AKey      string    `json:"m4aKey"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewAudioExtractionTask builds the asynq task for the job payload.
func NewAudioExtractionTask(job AudioExtractionJob) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAudioExtraction, payload,
		asynq.Queue(QueueAudioExtraction),
		asynq.MaxRetry(maxRetry),
		asynq.Retention(completedRetain),
	), nil
}

// NewTranscriptionTask builds the asynq task for the job payload.
func NewTranscriptionTask(job TranscriptionJob) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeTranscription, payload,
		asynq.Queue(QueueTranscription),
		asynq.MaxRetry(maxRetry),
		asynq.Retention(completedRetain),
	), nil
}

// RetryDelay implements exponential backoff with a 30 s base, doubling per
// attempt.
func RetryDelay(n int, _ error, _ *asynq.Task) time.Duration {
	delay := backoffBase
	for i := 0; i < n; i++ {
		delay *= 2
	}
	return delay
}
