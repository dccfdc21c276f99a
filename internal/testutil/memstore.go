// SPDX-License-Identifier: MIT

// Package testutil provides shared test doubles for the metadata store.
package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/store"
)

// MemStore is an in-memory stand-in for the Postgres metadata store with the
// same conditional-update semantics. Safe for concurrent use.
type MemStore struct {
	mu         sync.Mutex
	rooms      map[string]domain.Room
	recordings map[string]domain.Recording
	members    map[string][]string
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		rooms:      make(map[string]domain.Room),
		recordings: make(map[string]domain.Recording),
		members:    make(map[string][]string),
	}
}

func (f *MemStore) UpsertRoom(_ context.Context, room domain.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room.UpdatedAt = time.Now().UTC()
	f.rooms[room.ID] = room
	return nil
}

func (f *MemStore) GetRoom(_ context.Context, id string) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return domain.Room{}, domain.ErrNotFound{Kind: "room", ID: id}
	}
	room.RecordingIDs = slices.Clone(f.members[id])
	return room, nil
}

func (f *MemStore) GetRoomByToken(_ context.Context, token string) (domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, room := range f.rooms {
		if token != "" && room.AccessToken == token {
			room.RecordingIDs = slices.Clone(f.members[room.ID])
			return room, nil
		}
	}
	return domain.Room{}, domain.ErrNotFound{Kind: "room"}
}

func (f *MemStore) ListRooms(_ context.Context) ([]domain.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Room, 0, len(f.rooms))
	for _, room := range f.rooms {
		out = append(out, room)
	}
	return out, nil
}

func (f *MemStore) UpdateRoomState(_ context.Context, id string, from, to domain.RoomState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok {
		return domain.ErrNotFound{Kind: "room", ID: id}
	}
	if room.State != from {
		return domain.ErrInvalidTransition{Entity: "room", From: string(room.State), To: string(to)}
	}
	room.State = to
	room.UpdatedAt = time.Now().UTC()
	f.rooms[id] = room
	return nil
}

func (f *MemStore) DeleteRoom(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[id]; !ok {
		return domain.ErrNotFound{Kind: "room", ID: id}
	}
	delete(f.rooms, id)
	delete(f.members, id)
	return nil
}

func (f *MemStore) ClearRoomRecordings(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members, roomID)
	return nil
}

func (f *MemStore) ListRoomRecordingIDs(_ context.Context, roomID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.members[roomID]), nil
}

func (f *MemStore) ListRecordingsForRoom(_ context.Context, roomID string) ([]domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Recording, 0)
	for _, id := range f.members[roomID] {
		if rec, ok := f.recordings[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *MemStore) AddRecordingToRoom(_ context.Context, roomID, recordingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if slices.Contains(f.members[roomID], recordingID) {
		return nil
	}
	f.members[roomID] = append(f.members[roomID], recordingID)
	return nil
}

func (f *MemStore) UpsertRecording(_ context.Context, rec domain.Recording) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec.UpdatedAt = time.Now().UTC()
	f.recordings[rec.ID] = rec
	return nil
}

func (f *MemStore) GetRecording(_ context.Context, id string) (domain.Recording, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return domain.Recording{}, domain.ErrNotFound{Kind: "recording", ID: id}
	}
	return rec, nil
}

func (f *MemStore) DeleteRecording(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.recordings[id]; !ok {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	delete(f.recordings, id)
	for roomID, ids := range f.members {
		f.members[roomID] = slices.DeleteFunc(ids, func(s string) bool { return s == id })
	}
	return nil
}

func (f *MemStore) UpdateRecordingState(_ context.Context, id string, from, to domain.RecordingState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	if rec.State != from {
		return domain.ErrInvalidTransition{Entity: "recording", From: string(rec.State), To: string(to)}
	}
	rec.State = to
	if to.Terminal() {
		now := time.Now().UTC()
		rec.EndTime = &now
	}
	f.recordings[id] = rec
	return nil
}

func (f *MemStore) UpdateRecordingMetadata(_ context.Context, id string, meta *domain.RecordingMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	if !rec.State.CanUpdateMetadata() {
		return domain.ErrInvalidOperation{Reason: "metadata is immutable in state " + string(rec.State)}
	}
	rec.Metadata = meta
	f.recordings[id] = rec
	return nil
}

func (f *MemStore) IncrementChunkCount(_ context.Context, id string, size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	rec.ChunkCount++
	rec.TotalSize += size
	f.recordings[id] = rec
	return nil
}

// UpdateProcessingState mirrors the store's completion stamping for worker
// tests.
func (f *MemStore) UpdateProcessingState(_ context.Context, id string, upd store.ProcessingUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	rec.ProcessingState = upd.State
	rec.ProcessingError = upd.Error
	if upd.State == domain.ProcessingCompleted {
		rec.ProcessingError = ""
		rec.OutputMP4Key = upd.MP4Key
		rec.OutputM4AKey = upd.M4AKey
		now := time.Now().UTC()
		rec.ProcessedAt = &now
	}
	f.recordings[id] = rec
	return nil
}

// UpdateTranscriptionState mirrors the store's completion stamping for worker
// tests.
func (f *MemStore) UpdateTranscriptionState(_ context.Context, id string, upd store.ProcessingUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recordings[id]
	if !ok {
		return domain.ErrNotFound{Kind: "recording", ID: id}
	}
	rec.TranscriptionState = upd.State
	rec.TranscriptionError = upd.Error
	if upd.State == domain.ProcessingCompleted {
		rec.TranscriptionError = ""
		rec.OutputVTTKey = upd.VTTKey
		now := time.Now().UTC()
		rec.TranscribedAt = &now
	}
	f.recordings[id] = rec
	return nil
}
