// SPDX-License-Identifier: MIT

// Package worker runs the post-production pipeline: fMP4 assembly, ffmpeg
// audio extraction and transcription, consumed from the Redis job queues.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/henteko/maycast-recorder-sub002/internal/chunkstore"
	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/log"
	"github.com/henteko/maycast-recorder-sub002/internal/metrics"
	"github.com/henteko/maycast-recorder-sub002/internal/queue"
	"github.com/henteko/maycast-recorder-sub002/internal/store"
)

// downloadParallelism bounds concurrent chunk downloads per recording.
const downloadParallelism = 6

// RecordingStore is the metadata-store surface the worker needs.
type RecordingStore interface {
	GetRecording(ctx context.Context, id string) (domain.Recording, error)
	UpdateProcessingState(ctx context.Context, id string, upd store.ProcessingUpdate) error
	UpdateTranscriptionState(ctx context.Context, id string, upd store.ProcessingUpdate) error
}

// Extractor produces an audio-only file from an assembled MP4. The production
// implementation shells out to ffmpeg.
type Extractor interface {
	ExtractAudio(ctx context.Context, inputPath, outputPath string) error
}

// ExtractionHandler processes audio-extraction jobs.
type ExtractionHandler struct {
	store     RecordingStore
	chunks    chunkstore.Store
	extractor Extractor
	enqueuer  queue.Enqueuer

	// transcriptionEnabled gates the chain step; without a configured
	// provider no transcription jobs are enqueued.
	transcriptionEnabled bool
	tempDir              string
	logger               zerolog.Logger
}

// NewExtractionHandler wires the extraction stage.
func NewExtractionHandler(st RecordingStore, chunks chunkstore.Store, ex Extractor, enq queue.Enqueuer, tempDir string, transcriptionEnabled bool) *ExtractionHandler {
	return &ExtractionHandler{
		store:                st,
		chunks:               chunks,
		extractor:            ex,
		enqueuer:             enq,
		transcriptionEnabled: transcriptionEnabled,
		tempDir:              tempDir,
		logger:               log.WithComponent("extract"),
	}
}

// Handle processes one job. Recordings are processed sequentially; a failure
// marks that recording failed and moves on, so one broken upload cannot sink
// the whole room. The job itself only fails on a malformed payload.
func (h *ExtractionHandler) Handle(ctx context.Context, payload []byte) error {
	var job queue.AudioExtractionJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("malformed audio-extraction payload: %w", err)
	}
	ctx = log.ContextWithJobID(ctx, queue.TypeAudioExtraction)
	start := time.Now()

	h.logger.Info().Str("room_id", job.RoomID).
		Int("recordings", len(job.RecordingIDs)).
		Msg("audio extraction started")

	for _, recID := range job.RecordingIDs {
		if err := h.processRecording(ctx, job.RoomID, recID); err != nil {
			h.logger.Error().Err(err).Str("recording_id", recID).
				Msg("audio extraction failed for recording")
			h.markFailed(ctx, recID, err)
			metrics.JobTotal.WithLabelValues(queue.QueueAudioExtraction, "error").Inc()
			continue
		}
		metrics.JobTotal.WithLabelValues(queue.QueueAudioExtraction, "ok").Inc()
		h.chainTranscription(ctx, job.RoomID, recID)
	}

	metrics.JobDuration.WithLabelValues(queue.QueueAudioExtraction).Observe(time.Since(start).Seconds())
	return nil
}

func (h *ExtractionHandler) markFailed(ctx context.Context, recID string, cause error) {
	err := h.store.UpdateProcessingState(ctx, recID, store.ProcessingUpdate{
		State: domain.ProcessingFailed,
		Error: cause.Error(),
	})
	if err != nil {
		h.logger.Error().Err(err).Str("recording_id", recID).Msg("failed to record processing failure")
	}
}

func (h *ExtractionHandler) processRecording(ctx context.Context, roomID, recID string) error {
	if err := h.store.UpdateProcessingState(ctx, recID, store.ProcessingUpdate{
		State: domain.ProcessingProcessing,
	}); err != nil {
		return err
	}

	ref := chunkstore.Ref{RecordingID: recID, RoomID: roomID}

	workDir, err := os.MkdirTemp(h.tempDir, "extract-"+recID+"-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath, err := h.assemble(ctx, ref, workDir)
	if err != nil {
		return err
	}

	audioPath := filepath.Join(workDir, "audio.m4a")
	if err := h.extractor.ExtractAudio(ctx, inputPath, audioPath); err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}

	mp4Key := ref.OutputKey("output.mp4")
	m4aKey := ref.OutputKey("audio.m4a")
	if err := h.uploadFile(ctx, inputPath, mp4Key); err != nil {
		return err
	}
	if err := h.uploadFile(ctx, audioPath, m4aKey); err != nil {
		return err
	}

	if err := h.store.UpdateProcessingState(ctx, recID, store.ProcessingUpdate{
		State:  domain.ProcessingCompleted,
		MP4Key: mp4Key,
		M4AKey: m4aKey,
	}); err != nil {
		return err
	}

	h.logger.Info().Str("recording_id", recID).
		Str("mp4_key", mp4Key).Str("m4a_key", m4aKey).
		Msg("audio extraction completed")
	return nil
}

// assemble downloads init + chunks and concatenates them into one MP4 in the
// work dir. Chunks download in parallel to per-chunk files, then concatenate
// in ascending numeric order.
func (h *ExtractionHandler) assemble(ctx context.Context, ref chunkstore.Ref, workDir string) (string, error) {
	initData, err := h.chunks.GetInit(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("init segment missing: %w", err)
	}
	ids, err := h.chunks.ListChunkIDs(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("list chunks: %w", err)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("recording %s has no chunks", ref.RecordingID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(downloadParallelism)
	for _, id := range ids {
		g.Go(func() error {
			data, err := h.chunks.GetChunk(gctx, ref, id)
			if err != nil {
				return fmt.Errorf("download chunk %d: %w", id, err)
			}
			name := filepath.Join(workDir, fmt.Sprintf("chunk-%d.fmp4", id))
			return os.WriteFile(name, data, 0o600)
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	inputPath := filepath.Join(workDir, "input.mp4")
	out, err := os.OpenFile(inputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := out.Write(initData); err != nil {
		return "", err
	}
	for _, id := range ids {
		name := filepath.Join(workDir, fmt.Sprintf("chunk-%d.fmp4", id))
		f, err := os.Open(name)
		if err != nil {
			return "", err
		}
		_, err = io.Copy(out, f)
		f.Close()
		if err != nil {
			return "", err
		}
	}
	return inputPath, out.Close()
}

func (h *ExtractionHandler) uploadFile(ctx context.Context, path, key string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := h.chunks.PutObject(ctx, key, data); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// chainTranscription enqueues the follow-up transcription job for a
// successfully extracted recording.
func (h *ExtractionHandler) chainTranscription(ctx context.Context, roomID, recID string) {
	if !h.transcriptionEnabled {
		return
	}
	rec, err := h.store.GetRecording(ctx, recID)
	if err != nil || rec.OutputM4AKey == "" {
		h.logger.Warn().Err(err).Str("recording_id", recID).
			Msg("skipping transcription chain, no extracted audio")
		return
	}
	job := queue.TranscriptionJob{
		RoomID:      roomID,
		RecordingID: recID,
		M4AKey:      rec.OutputM4AKey,
		CreatedAt:   time.Now().UTC(),
	}
	if err := h.enqueuer.EnqueueTranscription(ctx, job); err != nil {
		h.logger.Error().Err(err).Str("recording_id", recID).
			Msg("failed to enqueue transcription job")
	}
}
