// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/realtime"
	"github.com/henteko/maycast-recorder-sub002/internal/testutil"
)

func newRoomsFixture() (*Rooms, *testutil.MemStore, *fakeBroadcaster, *fakeQueue, *fakePresence) {
	st := testutil.NewMemStore()
	b := newFakeBroadcaster()
	q := &fakeQueue{}
	p := &fakePresence{}
	return NewRooms(st, p, b, q), st, b, q, p
}

func TestCreateRoom(t *testing.T) {
	svc, _, _, _, _ := newRoomsFixture()

	room, err := svc.Create(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, room.ID)
	assert.NotEmpty(t, room.AccessKey)
	assert.NotEmpty(t, room.AccessToken)
	assert.NotEqual(t, room.AccessKey, room.AccessToken)
	assert.Equal(t, domain.RoomIdle, room.State)

	got, err := svc.Get(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
}

func TestAuthorize(t *testing.T) {
	svc, _, _, _, _ := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)

	assert.NoError(t, svc.Authorize(context.Background(), room.ID, room.AccessKey))

	err = svc.Authorize(context.Background(), room.ID, "wrong-key")
	assert.ErrorAs(t, err, &domain.ErrAccessDenied{})

	err = svc.Authorize(context.Background(), "no-such-room", room.AccessKey)
	var notFound domain.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestGetByToken(t *testing.T) {
	svc, _, _, _, _ := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)

	got, err := svc.GetByToken(context.Background(), room.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)

	_, err = svc.GetByToken(context.Background(), "bogus")
	var notFound domain.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestStartCommand(t *testing.T) {
	svc, _, b, _, p := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)

	got, err := svc.ApplyCommand(context.Background(), room.ID, domain.CommandStart)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomRecording, got.State)
	assert.Equal(t, 1, p.resetCount)
	assert.True(t, b.has(realtime.EventRoomStateChanged))
	assert.True(t, b.has(realtime.EventScheduledStart))

	sched := b.data[realtime.EventScheduledStart].(realtime.ScheduledStartPayload)
	assert.Positive(t, sched.StartTime)
}

func TestStartRejectedOutsideIdle(t *testing.T) {
	svc, _, _, _, _ := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)

	_, err = svc.ApplyCommand(context.Background(), room.ID, domain.CommandStart)
	require.NoError(t, err)

	_, err = svc.ApplyCommand(context.Background(), room.ID, domain.CommandStart)
	var invalid domain.ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)
}

func TestStopFinishesRoomWhenAllSynced(t *testing.T) {
	svc, st, b, q, p := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.AddRecordingToRoom(context.Background(), room.ID, "rec-a"))

	_, err = svc.ApplyCommand(context.Background(), room.ID, domain.CommandStart)
	require.NoError(t, err)

	// Every bound guest is already synced when the director stops.
	p.allSynced = true
	got, err := svc.ApplyCommand(context.Background(), room.ID, domain.CommandStop)
	require.NoError(t, err)

	assert.Equal(t, domain.RoomFinished, got.State)
	require.Len(t, q.extraction, 1)
	assert.Equal(t, room.ID, q.extraction[0].RoomID)
	assert.Equal(t, []string{"rec-a"}, q.extraction[0].RecordingIDs)
	assert.True(t, b.has(realtime.EventRoomStateChanged))
}

func TestStopLeavesRoomFinalizingUntilSynced(t *testing.T) {
	svc, st, _, q, p := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.AddRecordingToRoom(context.Background(), room.ID, "rec-a"))

	_, err = svc.ApplyCommand(context.Background(), room.ID, domain.CommandStart)
	require.NoError(t, err)

	p.allSynced = false
	got, err := svc.ApplyCommand(context.Background(), room.ID, domain.CommandStop)
	require.NoError(t, err)

	assert.Equal(t, domain.RoomFinalizing, got.State)
	assert.Empty(t, q.extraction)

	// The coordinator callback later finds everyone synced.
	svc.HandleAllSynced(context.Background(), room.ID)
	final, err := svc.Get(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomFinished, final.State)
	require.Len(t, q.extraction, 1)
}

func TestHandleAllSyncedIgnoresNonFinalizingRoom(t *testing.T) {
	svc, _, _, q, _ := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)

	// Room is idle; a stray callback must not finish it.
	svc.HandleAllSynced(context.Background(), room.ID)
	got, err := svc.Get(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomIdle, got.State)
	assert.Empty(t, q.extraction)
}

func TestFinishWithNoRecordingsSkipsJob(t *testing.T) {
	svc, _, _, q, p := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)

	_, err = svc.ApplyCommand(context.Background(), room.ID, domain.CommandStart)
	require.NoError(t, err)
	p.allSynced = true
	got, err := svc.ApplyCommand(context.Background(), room.ID, domain.CommandStop)
	require.NoError(t, err)

	assert.Equal(t, domain.RoomFinished, got.State)
	assert.Empty(t, q.extraction)
}

func TestResetClearsMembership(t *testing.T) {
	svc, st, _, _, p := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.AddRecordingToRoom(context.Background(), room.ID, "rec-a"))

	_, err = svc.ApplyCommand(context.Background(), room.ID, domain.CommandStart)
	require.NoError(t, err)
	p.allSynced = true
	_, err = svc.ApplyCommand(context.Background(), room.ID, domain.CommandStop)
	require.NoError(t, err)

	got, err := svc.ApplyCommand(context.Background(), room.ID, domain.CommandReset)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomIdle, got.State)
	assert.Empty(t, got.RecordingIDs)
}

func TestQueueFailureDoesNotUnfinishRoom(t *testing.T) {
	svc, st, _, q, p := newRoomsFixture()
	q.failEnqueue = true
	room, err := svc.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.AddRecordingToRoom(context.Background(), room.ID, "rec-a"))

	_, err = svc.ApplyCommand(context.Background(), room.ID, domain.CommandStart)
	require.NoError(t, err)
	p.allSynced = true
	got, err := svc.ApplyCommand(context.Background(), room.ID, domain.CommandStop)
	require.NoError(t, err)

	assert.Equal(t, domain.RoomFinished, got.State)
}

func TestHandleRecordingLinkedPersistsName(t *testing.T) {
	svc, st, _, _, _ := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.UpsertRecording(context.Background(), domain.Recording{
		ID: "rec-a", State: domain.RecordingStandby,
	}))

	svc.HandleRecordingLinked(context.Background(), room.ID, "rec-a", "Alice")

	rec, err := st.GetRecording(context.Background(), "rec-a")
	require.NoError(t, err)
	require.NotNil(t, rec.Metadata)
	assert.Equal(t, "Alice", rec.Metadata.ParticipantName)

	ids, err := st.ListRoomRecordingIDs(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"rec-a"}, ids)
}

func TestDeleteRoomKeepsRecordings(t *testing.T) {
	svc, st, _, _, _ := newRoomsFixture()
	room, err := svc.Create(context.Background())
	require.NoError(t, err)
	require.NoError(t, st.UpsertRecording(context.Background(), domain.Recording{
		ID: "rec-a", State: domain.RecordingStandby,
	}))
	require.NoError(t, st.AddRecordingToRoom(context.Background(), room.ID, "rec-a"))

	require.NoError(t, svc.Delete(context.Background(), room.ID))

	_, err = svc.Get(context.Background(), room.ID)
	var notFound domain.ErrNotFound
	assert.ErrorAs(t, err, &notFound)

	_, err = st.GetRecording(context.Background(), "rec-a")
	assert.NoError(t, err)
}
