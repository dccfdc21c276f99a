// SPDX-License-Identifier: MIT

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/henteko/maycast-recorder-sub002/internal/chunkstore"
	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/log"
	"github.com/henteko/maycast-recorder-sub002/internal/metrics"
	"github.com/henteko/maycast-recorder-sub002/internal/queue"
	"github.com/henteko/maycast-recorder-sub002/internal/store"
	"github.com/henteko/maycast-recorder-sub002/internal/transcribe"
	"github.com/henteko/maycast-recorder-sub002/internal/vtt"
)

// TranscriptionHandler turns extracted audio into WebVTT subtitles.
type TranscriptionHandler struct {
	store    RecordingStore
	chunks   chunkstore.Store
	provider transcribe.Provider
	logger   zerolog.Logger
}

// NewTranscriptionHandler wires the transcription stage.
func NewTranscriptionHandler(st RecordingStore, chunks chunkstore.Store, p transcribe.Provider) *TranscriptionHandler {
	return &TranscriptionHandler{
		store:    st,
		chunks:   chunks,
		provider: p,
		logger:   log.WithComponent("transcribe"),
	}
}

// Handle processes one transcription job. Unlike extraction, errors are
// returned so the queue retries with backoff.
func (h *TranscriptionHandler) Handle(ctx context.Context, payload []byte) error {
	var job queue.TranscriptionJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("malformed transcription payload: %w", err)
	}
	ctx = log.ContextWithJobID(ctx, queue.TypeTranscription)
	start := time.Now()

	if err := h.process(ctx, job); err != nil {
		if uerr := h.store.UpdateTranscriptionState(ctx, job.RecordingID, store.ProcessingUpdate{
			State: domain.ProcessingFailed,
			Error: err.Error(),
		}); uerr != nil {
			h.logger.Error().Err(uerr).Str("recording_id", job.RecordingID).
				Msg("failed to record transcription failure")
		}
		metrics.JobTotal.WithLabelValues(queue.QueueTranscription, "error").Inc()
		return err
	}

	metrics.JobTotal.WithLabelValues(queue.QueueTranscription, "ok").Inc()
	metrics.JobDuration.WithLabelValues(queue.QueueTranscription).Observe(time.Since(start).Seconds())
	return nil
}

func (h *TranscriptionHandler) process(ctx context.Context, job queue.TranscriptionJob) error {
	if err := h.store.UpdateTranscriptionState(ctx, job.RecordingID, store.ProcessingUpdate{
		State: domain.ProcessingProcessing,
	}); err != nil {
		return err
	}

	audio, err := h.chunks.GetObject(ctx, job.M4AKey)
	if err != nil {
		return fmt.Errorf("download audio %s: %w", job.M4AKey, err)
	}

	segments, err := h.provider.Transcribe(ctx, bytes.NewReader(audio), "audio/mp4")
	if err != nil {
		return fmt.Errorf("%s transcription: %w", h.provider.Name(), err)
	}

	ref := chunkstore.Ref{RecordingID: job.RecordingID, RoomID: job.RoomID}
	vttKey := ref.OutputKey("subtitle.vtt")
	doc := vtt.Format(segments)
	if err := h.chunks.PutObject(ctx, vttKey, []byte(doc)); err != nil {
		return fmt.Errorf("upload subtitles: %w", err)
	}

	if err := h.store.UpdateTranscriptionState(ctx, job.RecordingID, store.ProcessingUpdate{
		State:  domain.ProcessingCompleted,
		VTTKey: vttKey,
	}); err != nil {
		return err
	}

	h.logger.Info().Str("recording_id", job.RecordingID).
		Str("vtt_key", vttKey).Int("segments", len(segments)).
		Msg("transcription completed")
	return nil
}
