// SPDX-License-Identifier: MIT

// Package service holds the use-case orchestrators between the HTTP/WebSocket
// boundary and the persistence layers. All state-machine preconditions are
// enforced with conditional store updates; broadcasts happen after persist.
package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/log"
	"github.com/henteko/maycast-recorder-sub002/internal/metrics"
	"github.com/henteko/maycast-recorder-sub002/internal/queue"
	"github.com/henteko/maycast-recorder-sub002/internal/realtime"
)

// startLeadTime is how far in the future the scheduled recording start is
// stamped, giving guests time to arm their capture pipelines.
const startLeadTime = 1500 * time.Millisecond

// RoomStore is the metadata-store surface the room service needs.
type RoomStore interface {
	UpsertRoom(ctx context.Context, room domain.Room) error
	GetRoom(ctx context.Context, id string) (domain.Room, error)
	GetRoomByToken(ctx context.Context, token string) (domain.Room, error)
	ListRooms(ctx context.Context) ([]domain.Room, error)
	UpdateRoomState(ctx context.Context, id string, from, to domain.RoomState) error
	DeleteRoom(ctx context.Context, id string) error
	ClearRoomRecordings(ctx context.Context, roomID string) error
	ListRoomRecordingIDs(ctx context.Context, roomID string) ([]string, error)
	ListRecordingsForRoom(ctx context.Context, roomID string) ([]domain.Recording, error)
	AddRecordingToRoom(ctx context.Context, roomID, recordingID string) error
	GetRecording(ctx context.Context, id string) (domain.Recording, error)
	UpdateRecordingMetadata(ctx context.Context, id string, meta *domain.RecordingMetadata) error
}

// Presence is the coordinator surface the room service needs.
type Presence interface {
	AllSynced(roomID string) bool
	ResetSyncLatch(roomID string)
}

// Rooms orchestrates the room lifecycle.
type Rooms struct {
	store       RoomStore
	presence    Presence
	broadcaster realtime.Broadcaster
	queue       queue.Enqueuer
	logger      zerolog.Logger
}

// NewRooms wires the room service.
func NewRooms(store RoomStore, presence Presence, b realtime.Broadcaster, q queue.Enqueuer) *Rooms {
	return &Rooms{
		store:       store,
		presence:    presence,
		broadcaster: b,
		queue:       q,
		logger:      log.WithComponent("rooms"),
	}
}

// Create mints a new idle room with fresh access credentials.
func (s *Rooms) Create(ctx context.Context) (domain.Room, error) {
	room := domain.Room{
		ID:          uuid.NewString(),
		AccessKey:   uuid.NewString(),
		AccessToken: uuid.NewString(),
		State:       domain.RoomIdle,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.UpsertRoom(ctx, room); err != nil {
		return domain.Room{}, err
	}
	s.logger.Info().Str("room_id", room.ID).Msg("room created")
	return room, nil
}

// Get fetches a room by id.
func (s *Rooms) Get(ctx context.Context, id string) (domain.Room, error) {
	return s.store.GetRoom(ctx, id)
}

// GetByToken resolves a room through its read-only access token.
func (s *Rooms) GetByToken(ctx context.Context, token string) (domain.Room, error) {
	return s.store.GetRoomByToken(ctx, token)
}

// List returns all rooms.
func (s *Rooms) List(ctx context.Context) ([]domain.Room, error) {
	return s.store.ListRooms(ctx)
}

// Delete removes a room. Membership links cascade; the recordings and their
// stored chunks survive.
func (s *Rooms) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteRoom(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("room_id", id).Msg("room deleted")
	return nil
}

// Recordings lists the recordings linked into the room.
func (s *Rooms) Recordings(ctx context.Context, roomID string) ([]domain.Recording, error) {
	if _, err := s.store.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	return s.store.ListRecordingsForRoom(ctx, roomID)
}

// Authorize checks the supplied access key against the room's key in constant
// time.
func (s *Rooms) Authorize(ctx context.Context, roomID, accessKey string) error {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(room.AccessKey), []byte(accessKey)) != 1 {
		return domain.ErrAccessDenied{}
	}
	return nil
}

// ApplyCommand executes a director state command. The store update is
// conditional on the expected current state, so concurrent directors cannot
// double-apply a transition.
func (s *Rooms) ApplyCommand(ctx context.Context, roomID string, cmd domain.RoomCommand) (domain.Room, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return domain.Room{}, err
	}
	target, err := domain.RoomStateForCommand(room.State, cmd)
	if err != nil {
		return domain.Room{}, err
	}
	if err := s.store.UpdateRoomState(ctx, roomID, room.State, target); err != nil {
		return domain.Room{}, err
	}
	metrics.RoomTransitionTotal.WithLabelValues(string(target)).Inc()
	s.logger.Info().Str("room_id", roomID).
		Str("from", string(room.State)).Str("to", string(target)).
		Msg("room state transition")

	s.broadcaster.Broadcast(roomID, realtime.EventRoomStateChanged,
		realtime.RoomStateChangedPayload{RoomID: roomID, State: string(target)})

	switch cmd {
	case domain.CommandStart:
		s.presence.ResetSyncLatch(roomID)
		s.broadcaster.Broadcast(roomID, realtime.EventScheduledStart,
			realtime.ScheduledStartPayload{
				RoomID:    roomID,
				StartTime: time.Now().Add(startLeadTime).UnixMilli(),
			})
	case domain.CommandStop:
		// Guests that finished uploading before the stop already tripped the
		// latch while the room could not finalize; re-check here.
		if s.presence.AllSynced(roomID) {
			s.HandleAllSynced(ctx, roomID)
		}
	case domain.CommandReset:
		if err := s.store.ClearRoomRecordings(ctx, roomID); err != nil {
			return domain.Room{}, err
		}
	}

	return s.store.GetRoom(ctx, roomID)
}

// HandleAllSynced is the coordinator's all-synced callback. It drives the
// finalizing -> finished transition and enqueues the extraction job. A room
// that is not in finalizing (guests finished before the director stopped) is
// left alone.
func (s *Rooms) HandleAllSynced(ctx context.Context, roomID string) {
	err := s.store.UpdateRoomState(ctx, roomID, domain.RoomFinalizing, domain.RoomFinished)
	if err != nil {
		s.logger.Debug().Err(err).Str("room_id", roomID).
			Msg("all-synced callback did not finish room")
		return
	}
	metrics.RoomTransitionTotal.WithLabelValues(string(domain.RoomFinished)).Inc()
	s.logger.Info().Str("room_id", roomID).Msg("all guests synced, room finished")

	s.broadcaster.Broadcast(roomID, realtime.EventRoomStateChanged,
		realtime.RoomStateChangedPayload{RoomID: roomID, State: string(domain.RoomFinished)})

	recordingIDs, err := s.store.ListRoomRecordingIDs(ctx, roomID)
	if err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID).
			Msg("failed to list recordings for extraction job")
		return
	}
	if len(recordingIDs) == 0 {
		return
	}
	job := queue.AudioExtractionJob{
		RoomID:       roomID,
		RecordingIDs: recordingIDs,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.queue.EnqueueAudioExtraction(ctx, job); err != nil {
		// Post-production is optional infrastructure; the room stays finished.
		s.logger.Error().Err(err).Str("room_id", roomID).
			Msg("failed to enqueue audio-extraction job")
	}
}

// HandleRecordingLinked is the coordinator's recording-linked callback. It
// persists the guest's display name into the recording metadata and ensures
// the room membership link exists.
func (s *Rooms) HandleRecordingLinked(ctx context.Context, roomID, recordingID, guestName string) {
	if err := s.store.AddRecordingToRoom(ctx, roomID, recordingID); err != nil {
		s.logger.Error().Err(err).Str("room_id", roomID).Str("recording_id", recordingID).
			Msg("failed to link recording into room")
		return
	}

	rec, err := s.store.GetRecording(ctx, recordingID)
	if err != nil {
		s.logger.Warn().Err(err).Str("recording_id", recordingID).
			Msg("linked recording not found, skipping name persist")
		return
	}
	meta := rec.Metadata
	if meta == nil {
		meta = &domain.RecordingMetadata{}
	}
	meta.ParticipantName = guestName
	if err := s.store.UpdateRecordingMetadata(ctx, recordingID, meta); err != nil {
		// A recording already past its mutable states keeps its old name.
		s.logger.Debug().Err(err).Str("recording_id", recordingID).
			Msg("could not persist participant name")
	}
}
