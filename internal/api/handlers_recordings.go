// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/service"
)

type recordingJSON struct {
	RecordingID string                    `json:"recordingId"`
	RoomID      string                    `json:"roomId,omitempty"`
	State       string                    `json:"state"`
	Metadata    *domain.RecordingMetadata `json:"metadata,omitempty"`
	ChunkCount  int                       `json:"chunkCount"`
	TotalSize   int64                     `json:"totalSize"`
	StartTime   string                    `json:"startTime"`
	EndTime     string                    `json:"endTime,omitempty"`

	ProcessingState string `json:"processingState"`
	ProcessingError string `json:"processingError,omitempty"`
	OutputMP4Key    string `json:"outputMp4Key,omitempty"`
	OutputM4AKey    string `json:"outputM4aKey,omitempty"`
	ProcessedAt     string `json:"processedAt,omitempty"`

	TranscriptionState string `json:"transcriptionState"`
	TranscriptionError string `json:"transcriptionError,omitempty"`
	OutputVTTKey       string `json:"outputVttKey,omitempty"`
	TranscribedAt      string `json:"transcribedAt,omitempty"`

	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func renderRecording(rec domain.Recording) recordingJSON {
	out := recordingJSON{
		RecordingID:        rec.ID,
		RoomID:             rec.RoomID,
		State:              string(rec.State),
		Metadata:           rec.Metadata,
		ChunkCount:         rec.ChunkCount,
		TotalSize:          rec.TotalSize,
		StartTime:          rec.StartTime.UTC().Format(time.RFC3339),
		ProcessingState:    string(rec.ProcessingState),
		ProcessingError:    rec.ProcessingError,
		OutputMP4Key:       rec.OutputMP4Key,
		OutputM4AKey:       rec.OutputM4AKey,
		TranscriptionState: string(rec.TranscriptionState),
		TranscriptionError: rec.TranscriptionError,
		OutputVTTKey:       rec.OutputVTTKey,
		CreatedAt:          rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if rec.EndTime != nil {
		out.EndTime = rec.EndTime.UTC().Format(time.RFC3339)
	}
	if rec.ProcessedAt != nil {
		out.ProcessedAt = rec.ProcessedAt.UTC().Format(time.RFC3339)
	}
	if rec.TranscribedAt != nil {
		out.TranscribedAt = rec.TranscribedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func (s *Server) handleCreateRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recordings.Create(r.Context(), r.URL.Query().Get("roomId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"recording_id": rec.ID,
		"created_at":   rec.CreatedAt.UTC().Format(time.RFC3339),
		"state":        string(rec.State),
	})
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.recordings.Get(r.Context(), chi.URLParam(r, "recordingID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderRecording(rec))
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.recordings.Delete(r.Context(), chi.URLParam(r, "recordingID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordingState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	rec, err := s.recordings.UpdateState(r.Context(), chi.URLParam(r, "recordingID"),
		domain.RecordingState(body.State))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderRecording(rec))
}

func (s *Server) handleRecordingMetadata(w http.ResponseWriter, r *http.Request) {
	var meta domain.RecordingMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	rec, err := s.recordings.UpdateMetadata(r.Context(), chi.URLParam(r, "recordingID"), &meta)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderRecording(rec))
}

func (s *Server) handleUploadInit(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}
	if err := s.recordings.SaveInit(r.Context(), chi.URLParam(r, "recordingID"), data); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

func (s *Server) handleUploadChunk(w http.ResponseWriter, r *http.Request) {
	chunkID, err := strconv.ParseUint(r.URL.Query().Get("chunk_id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "chunk_id must be a non-negative integer")
		return
	}
	var timestampUs int64
	if raw := r.URL.Query().Get("timestamp"); raw != "" {
		timestampUs, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, "timestamp must be an integer microsecond offset")
			return
		}
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}
	err = s.recordings.SaveChunk(r.Context(), chi.URLParam(r, "recordingID"),
		chunkID, data, r.Header.Get("X-Chunk-Hash"), timestampUs)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": true, "chunkId": chunkID})
}

func writeUploadTarget(w http.ResponseWriter, target service.UploadTarget) {
	if !target.Direct {
		writeJSON(w, http.StatusOK, map[string]bool{"directUpload": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"directUpload": true,
		"url":          target.URL,
		"expiresIn":    int64(target.ExpiresIn.Seconds()),
	})
}

func (s *Server) handleInitUploadURL(w http.ResponseWriter, r *http.Request) {
	target, err := s.recordings.InitUploadTarget(r.Context(), chi.URLParam(r, "recordingID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeUploadTarget(w, target)
}

func (s *Server) handleChunkUploadURL(w http.ResponseWriter, r *http.Request) {
	chunkID, err := strconv.ParseUint(r.URL.Query().Get("chunk_id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "chunk_id must be a non-negative integer")
		return
	}
	target, err := s.recordings.ChunkUploadTarget(r.Context(), chi.URLParam(r, "recordingID"), chunkID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeUploadTarget(w, target)
}

func (s *Server) handleUploadConfirm(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Type    string  `json:"type"`
		ChunkID *uint64 `json:"chunkId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	kind := service.ConfirmKind(body.Type)
	var chunkID uint64
	if body.ChunkID != nil {
		chunkID = *body.ChunkID
	} else if kind == service.ConfirmChunk {
		writeBadRequest(w, "chunkId is required for chunk confirmations")
		return
	}
	if err := s.recordings.ConfirmUpload(r.Context(), chi.URLParam(r, "recordingID"), kind, chunkID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"confirmed": true})
}

func (s *Server) handleDownloadURLs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordingID")
	info, err := s.recordings.Download(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !info.Direct {
		writeJSON(w, http.StatusOK, map[string]any{
			"directDownload": false,
			"filename":       info.Filename,
			"downloadUrl":    "/api/recordings/" + id + "/download",
		})
		return
	}
	chunks := make([]map[string]any, 0, len(info.URLs.Chunks))
	for _, c := range info.URLs.Chunks {
		chunks = append(chunks, map[string]any{"url": c.URL, "chunkId": c.ChunkID})
	}
	out := map[string]any{
		"directDownload": true,
		"filename":       info.Filename,
		"initSegment":    map[string]string{"url": info.URLs.InitSegment},
		"chunks":         chunks,
		"totalChunks":    info.TotalChunks,
		"expiresIn":      int64(info.URLs.ExpiresIn.Seconds()),
	}
	if info.URLs.M4A != "" {
		out["m4aUrl"] = info.URLs.M4A
		out["m4aFilename"] = info.M4AFilename
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "recordingID")
	info, err := s.recordings.Download(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="`+info.Filename+`"`)
	// Headers are already on the wire once streaming starts; a mid-stream
	// failure can only truncate the response.
	_ = s.recordings.StreamAssembled(r.Context(), id, w)
}
