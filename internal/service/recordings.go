// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/henteko/maycast-recorder-sub002/internal/chunkstore"
	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/log"
	"github.com/henteko/maycast-recorder-sub002/internal/metrics"
)

// RecordingStore is the metadata-store surface the recording service needs.
type RecordingStore interface {
	UpsertRecording(ctx context.Context, rec domain.Recording) error
	GetRecording(ctx context.Context, id string) (domain.Recording, error)
	DeleteRecording(ctx context.Context, id string) error
	GetRoom(ctx context.Context, id string) (domain.Room, error)
	AddRecordingToRoom(ctx context.Context, roomID, recordingID string) error
	UpdateRecordingState(ctx context.Context, id string, from, to domain.RecordingState) error
	UpdateRecordingMetadata(ctx context.Context, id string, meta *domain.RecordingMetadata) error
	IncrementChunkCount(ctx context.Context, id string, size int64) error
}

// UploadTarget tells the client where to put a segment: directly against the
// object store via a presigned URL, or through the proxy upload endpoints.
type UploadTarget struct {
	Direct    bool
	URL       string
	ExpiresIn time.Duration
}

// DownloadInfo describes how a finished recording can be fetched.
type DownloadInfo struct {
	Direct      bool
	Filename    string
	M4AFilename string
	URLs        chunkstore.DownloadURLs
	TotalChunks int
}

// ConfirmKind selects what a direct-upload confirmation refers to.
type ConfirmKind string

const (
	ConfirmInitSegment ConfirmKind = "init-segment"
	ConfirmChunk       ConfirmKind = "chunk"
)

// Recordings orchestrates the recording lifecycle and the chunk upload and
// download paths.
type Recordings struct {
	store  RecordingStore
	chunks chunkstore.Store
	logger zerolog.Logger
}

// NewRecordings wires the recording service.
func NewRecordings(store RecordingStore, chunks chunkstore.Store) *Recordings {
	return &Recordings{
		store:  store,
		chunks: chunks,
		logger: log.WithComponent("recordings"),
	}
}

// Create mints a standby recording, optionally bound into a room.
func (s *Recordings) Create(ctx context.Context, roomID string) (domain.Recording, error) {
	if roomID != "" {
		if _, err := s.store.GetRoom(ctx, roomID); err != nil {
			return domain.Recording{}, err
		}
	}
	rec := domain.Recording{
		ID:                 uuid.NewString(),
		RoomID:             roomID,
		State:              domain.RecordingStandby,
		ProcessingState:    domain.ProcessingPending,
		TranscriptionState: domain.ProcessingPending,
		StartTime:          time.Now().UTC(),
		CreatedAt:          time.Now().UTC(),
	}
	if err := s.store.UpsertRecording(ctx, rec); err != nil {
		return domain.Recording{}, err
	}
	if roomID != "" {
		if err := s.store.AddRecordingToRoom(ctx, roomID, rec.ID); err != nil {
			return domain.Recording{}, err
		}
	}
	s.logger.Info().Str("recording_id", rec.ID).Str("room_id", roomID).Msg("recording created")
	return rec, nil
}

// Get fetches a recording by id.
func (s *Recordings) Get(ctx context.Context, id string) (domain.Recording, error) {
	return s.store.GetRecording(ctx, id)
}

// Delete removes the recording record and every stored chunk object.
func (s *Recordings) Delete(ctx context.Context, id string) error {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	if err := s.chunks.DeleteAll(ctx, s.ref(rec)); err != nil {
		return domain.ErrStorageUnavailable{Op: "delete", Cause: err}
	}
	if err := s.store.DeleteRecording(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("recording_id", id).Msg("recording deleted")
	return nil
}

// UpdateState applies a recording state transition, validated against the
// machine before the conditional store update.
func (s *Recordings) UpdateState(ctx context.Context, id string, to domain.RecordingState) (domain.Recording, error) {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return domain.Recording{}, err
	}
	if err := domain.NextRecordingState(rec.State, to); err != nil {
		return domain.Recording{}, err
	}
	if err := s.store.UpdateRecordingState(ctx, id, rec.State, to); err != nil {
		return domain.Recording{}, err
	}
	return s.store.GetRecording(ctx, id)
}

// UpdateMetadata replaces the metadata blob while the recording is mutable.
func (s *Recordings) UpdateMetadata(ctx context.Context, id string, meta *domain.RecordingMetadata) (domain.Recording, error) {
	if err := s.store.UpdateRecordingMetadata(ctx, id, meta); err != nil {
		return domain.Recording{}, err
	}
	return s.store.GetRecording(ctx, id)
}

// SaveInit stores the init segment through the proxy upload path.
func (s *Recordings) SaveInit(ctx context.Context, id string, data []byte) error {
	if len(data) == 0 {
		return domain.ErrInvalidArgument{Field: "body", Reason: "empty payload"}
	}
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	if err := s.chunks.SaveInit(ctx, s.ref(rec), data); err != nil {
		metrics.ChunkUploadTotal.WithLabelValues("error").Inc()
		return domain.ErrStorageUnavailable{Op: "save init segment", Cause: err}
	}
	metrics.ChunkUploadTotal.WithLabelValues("ok").Inc()
	metrics.ChunkUploadBytes.Add(float64(len(data)))
	return nil
}

// SaveChunk stores chunk n through the proxy upload path and bumps the
// recording's chunk counters. Overwrites of an already-stored chunk are
// accepted; the counter still increments (clients confirm each put once).
// hash and timestampUs are client-supplied hints, logged but not verified.
func (s *Recordings) SaveChunk(ctx context.Context, id string, n uint64, data []byte, hash string, timestampUs int64) error {
	if len(data) == 0 {
		return domain.ErrInvalidArgument{Field: "body", Reason: "empty payload"}
	}
	if timestampUs < 0 {
		return domain.ErrInvalidArgument{Field: "timestamp", Reason: "must not be negative"}
	}
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	if err := s.chunks.SaveChunk(ctx, s.ref(rec), n, data); err != nil {
		metrics.ChunkUploadTotal.WithLabelValues("error").Inc()
		return domain.ErrStorageUnavailable{Op: "save chunk", Cause: err}
	}
	if err := s.store.IncrementChunkCount(ctx, id, int64(len(data))); err != nil {
		return err
	}
	metrics.ChunkUploadTotal.WithLabelValues("ok").Inc()
	metrics.ChunkUploadBytes.Add(float64(len(data)))
	s.logger.Debug().Str("recording_id", id).Uint64("chunk_id", n).
		Int("bytes", len(data)).Str("hash", hash).Int64("timestamp_us", timestampUs).
		Msg("chunk stored")
	return nil
}

// InitUploadTarget issues a presigned init-segment PUT URL when the backend
// supports it.
func (s *Recordings) InitUploadTarget(ctx context.Context, id string) (UploadTarget, error) {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return UploadTarget{}, err
	}
	if !s.chunks.SupportsPresign() {
		return UploadTarget{}, nil
	}
	url, err := s.chunks.PresignUploadInit(ctx, s.ref(rec), chunkstore.DefaultURLTTL)
	if err != nil {
		return UploadTarget{}, domain.ErrStorageUnavailable{Op: "presign init upload", Cause: err}
	}
	return UploadTarget{Direct: true, URL: url, ExpiresIn: chunkstore.DefaultURLTTL}, nil
}

// ChunkUploadTarget issues a presigned chunk PUT URL when the backend
// supports it.
func (s *Recordings) ChunkUploadTarget(ctx context.Context, id string, n uint64) (UploadTarget, error) {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return UploadTarget{}, err
	}
	if !s.chunks.SupportsPresign() {
		return UploadTarget{}, nil
	}
	url, err := s.chunks.PresignUploadChunk(ctx, s.ref(rec), n, chunkstore.DefaultURLTTL)
	if err != nil {
		return UploadTarget{}, domain.ErrStorageUnavailable{Op: "presign chunk upload", Cause: err}
	}
	return UploadTarget{Direct: true, URL: url, ExpiresIn: chunkstore.DefaultURLTTL}, nil
}

// ConfirmUpload acknowledges a direct (presigned) upload. The object must
// exist; chunk confirmations bump chunkCount. Direct uploads bypass the
// proxy, so the byte size is not tracked here.
func (s *Recordings) ConfirmUpload(ctx context.Context, id string, kind ConfirmKind, chunkID uint64) error {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	ref := s.ref(rec)

	var key string
	switch kind {
	case ConfirmInitSegment:
		key = ref.InitKey()
	case ConfirmChunk:
		key = ref.ChunkKey(chunkID)
	default:
		return domain.ErrInvalidArgument{Field: "type", Reason: "must be init-segment or chunk"}
	}

	exists, err := s.chunks.ObjectExists(ctx, key)
	if err != nil {
		return domain.ErrStorageUnavailable{Op: "confirm upload", Cause: err}
	}
	if !exists {
		return domain.ErrNotFound{Kind: "chunk", ID: key}
	}
	if kind == ConfirmChunk {
		return s.store.IncrementChunkCount(ctx, id, 0)
	}
	return nil
}

// Download describes how the client should fetch the assembled recording:
// presigned per-object URLs when the backend supports them, otherwise the
// proxy streaming endpoint.
func (s *Recordings) Download(ctx context.Context, id string) (DownloadInfo, error) {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return DownloadInfo{}, err
	}
	info := DownloadInfo{
		Filename:    rec.ID + ".mp4",
		M4AFilename: rec.ID + ".m4a",
	}
	if !s.chunks.SupportsPresign() {
		return info, nil
	}
	urls, err := s.chunks.PresignDownloads(ctx, s.ref(rec), chunkstore.DefaultURLTTL)
	if err != nil {
		return DownloadInfo{}, domain.ErrStorageUnavailable{Op: "presign downloads", Cause: err}
	}
	info.Direct = true
	info.URLs = urls
	info.TotalChunks = len(urls.Chunks)
	return info, nil
}

// StreamAssembled writes init segment plus chunks in order to w, for the
// proxy download path.
func (s *Recordings) StreamAssembled(ctx context.Context, id string, w io.Writer) error {
	rec, err := s.store.GetRecording(ctx, id)
	if err != nil {
		return err
	}
	if err := s.chunks.Assemble(ctx, s.ref(rec), w); err != nil {
		return domain.ErrStorageUnavailable{Op: "assemble download", Cause: err}
	}
	return nil
}

func (s *Recordings) ref(rec domain.Recording) chunkstore.Ref {
	return chunkstore.Ref{RecordingID: rec.ID, RoomID: rec.RoomID}
}
