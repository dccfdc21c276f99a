// SPDX-License-Identifier: MIT

package realtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingBroadcaster captures broadcasts for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
	last   map[string]any
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{last: make(map[string]any)}
}

func (b *recordingBroadcaster) Broadcast(roomID, event string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	b.last[event] = data
}

func (b *recordingBroadcaster) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e == event {
			n++
		}
	}
	return n
}

func TestJoinRoomAllocatesGuestAndBroadcasts(t *testing.T) {
	b := newRecordingBroadcaster()
	c := NewCoordinator(b, Callbacks{})

	guestID, snapshot := c.JoinRoom("conn-1", "R1", "Alice")
	require.NotEmpty(t, guestID)
	assert.Nil(t, snapshot)
	assert.Equal(t, 1, c.GuestCount("R1"))
	assert.Equal(t, 1, b.count(EventGuestJoined))

	joined := b.last[EventGuestJoined].(GuestJoinedPayload)
	assert.Equal(t, "Alice", joined.Guest.Name)
	assert.Equal(t, SyncIdle, joined.Guest.SyncState)
}

func TestJoinRoomWithoutNameIsObserver(t *testing.T) {
	b := newRecordingBroadcaster()
	c := NewCoordinator(b, Callbacks{})

	c.JoinRoom("conn-g", "R1", "Alice")
	guestID, snapshot := c.JoinRoom("conn-d", "R1", "")

	assert.Empty(t, guestID)
	require.Len(t, snapshot, 1)
	assert.Equal(t, "Alice", snapshot[0].Name)
	// Observers do not count as guests and do not broadcast guest_joined.
	assert.Equal(t, 1, c.GuestCount("R1"))
	assert.Equal(t, 1, b.count(EventGuestJoined))
}

func TestLeaveRoomBroadcastsGuestLeft(t *testing.T) {
	b := newRecordingBroadcaster()
	c := NewCoordinator(b, Callbacks{})

	guestID, _ := c.JoinRoom("conn-1", "R1", "Alice")
	c.LeaveRoom("conn-1", "R1")

	assert.Equal(t, 0, c.GuestCount("R1"))
	require.Equal(t, 1, b.count(EventGuestLeft))
	left := b.last[EventGuestLeft].(GuestLeftPayload)
	assert.Equal(t, guestID, left.GuestID)
}

func TestDisconnectSynthesizesGuestLeft(t *testing.T) {
	b := newRecordingBroadcaster()
	c := NewCoordinator(b, Callbacks{})

	c.JoinRoom("conn-1", "R1", "Alice")
	roomID, ok := c.Disconnect("conn-1")

	require.True(t, ok)
	assert.Equal(t, "R1", roomID)
	assert.Equal(t, 0, c.GuestCount("R1"))
	assert.Equal(t, 1, b.count(EventGuestLeft))

	_, ok = c.Disconnect("conn-unknown")
	assert.False(t, ok)
}

func TestSetRecordingIDInvokesLinkCallback(t *testing.T) {
	b := newRecordingBroadcaster()
	var linked []string
	c := NewCoordinator(b, Callbacks{
		RecordingLinked: func(_ context.Context, roomID, recordingID, name string) {
			linked = append(linked, roomID+"/"+recordingID+"/"+name)
		},
	})

	c.JoinRoom("conn-1", "R1", "Alice")
	c.SetRecordingID(context.Background(), "conn-1", "R1", "rec-a")

	assert.Equal(t, []string{"R1/rec-a/Alice"}, linked)
	assert.Equal(t, 1, b.count(EventGuestRecordingLinked))
}

func TestSyncUpdateMutatesPresence(t *testing.T) {
	b := newRecordingBroadcaster()
	c := NewCoordinator(b, Callbacks{})

	c.JoinRoom("conn-1", "R1", "Alice")
	c.SetRecordingID(context.Background(), "conn-1", "R1", "rec-a")
	c.UpdateSync("conn-1", SyncUpdatePayload{
		RoomID: "R1", RecordingID: "rec-a",
		SyncState: string(SyncUploading), UploadedChunks: 2, TotalChunks: 3,
	})

	snapshot := c.Snapshot("R1")
	require.Len(t, snapshot, 1)
	assert.Equal(t, SyncUploading, snapshot[0].SyncState)
	assert.Equal(t, 2, snapshot[0].UploadedChunks)
	assert.Equal(t, 3, snapshot[0].TotalChunks)
	assert.Equal(t, 1, b.count(EventGuestSyncStateChanged))
}

func TestAllSyncedPredicateSingleGuest(t *testing.T) {
	b := newRecordingBroadcaster()
	var fired []string
	c := NewCoordinator(b, Callbacks{
		AllSynced: func(_ context.Context, roomID string) { fired = append(fired, roomID) },
	})

	c.JoinRoom("conn-1", "R1", "Alice")
	c.SetRecordingID(context.Background(), "conn-1", "R1", "rec-a")
	assert.False(t, c.AllSynced("R1"))

	c.CompleteSync(context.Background(), "conn-1", SyncCompletePayload{
		RoomID: "R1", RecordingID: "rec-a", TotalChunks: 3,
	})

	assert.True(t, c.AllSynced("R1"))
	assert.Equal(t, []string{"R1"}, fired)
	assert.Equal(t, 1, b.count(EventGuestSyncCompleted))
}

func TestPredicateFalseWhenOneGuestErrors(t *testing.T) {
	b := newRecordingBroadcaster()
	var fired int
	c := NewCoordinator(b, Callbacks{
		AllSynced: func(context.Context, string) { fired++ },
	})

	c.JoinRoom("conn-a", "R1", "Alice")
	c.JoinRoom("conn-b", "R1", "Bob")
	c.SetRecordingID(context.Background(), "conn-a", "R1", "rec-a")
	c.SetRecordingID(context.Background(), "conn-b", "R1", "rec-b")

	c.ReportSyncError("conn-b", SyncErrorPayload{
		RoomID: "R1", RecordingID: "rec-b", ErrorMessage: "upload failed", FailedChunks: 2,
	})
	c.CompleteSync(context.Background(), "conn-a", SyncCompletePayload{
		RoomID: "R1", RecordingID: "rec-a", TotalChunks: 3,
	})

	assert.False(t, c.AllSynced("R1"))
	assert.Zero(t, fired)
	assert.Equal(t, 1, b.count(EventGuestSyncFailed))
}

func TestPredicateTrueWithoutBoundRecordings(t *testing.T) {
	b := newRecordingBroadcaster()
	c := NewCoordinator(b, Callbacks{})

	// No guests at all: trivially true.
	assert.True(t, c.AllSynced("R-empty"))

	// A guest without a bound recording does not block the predicate.
	c.JoinRoom("conn-1", "R1", "Alice")
	assert.True(t, c.AllSynced("R1"))
}

func TestAllSyncedFiresAtMostOnce(t *testing.T) {
	b := newRecordingBroadcaster()
	var fired int
	c := NewCoordinator(b, Callbacks{
		AllSynced: func(context.Context, string) { fired++ },
	})

	c.JoinRoom("conn-1", "R1", "Alice")
	c.SetRecordingID(context.Background(), "conn-1", "R1", "rec-a")

	complete := SyncCompletePayload{RoomID: "R1", RecordingID: "rec-a", TotalChunks: 3}
	c.CompleteSync(context.Background(), "conn-1", complete)
	c.CompleteSync(context.Background(), "conn-1", complete) // client retry

	assert.Equal(t, 1, fired)

	// A new recording pass re-arms the latch.
	c.ResetSyncLatch("R1")
	c.CompleteSync(context.Background(), "conn-1", complete)
	assert.Equal(t, 2, fired)
}

func TestReconnectGetsFreshGuestID(t *testing.T) {
	b := newRecordingBroadcaster()
	c := NewCoordinator(b, Callbacks{})

	first, _ := c.JoinRoom("conn-1", "R1", "Alice")
	c.Disconnect("conn-1")

	second, _ := c.JoinRoom("conn-2", "R1", "Alice")
	assert.NotEqual(t, first, second)
	assert.Equal(t, 1, c.GuestCount("R1"))
}

func TestWaveformForwardOnly(t *testing.T) {
	b := newRecordingBroadcaster()
	c := NewCoordinator(b, Callbacks{})

	c.JoinRoom("conn-1", "R1", "Alice")
	c.ForwardWaveform("conn-1", WaveformPayload{
		RoomID:       "R1",
		WaveformData: make([]float64, 32),
		IsSilent:     true,
	})

	assert.Equal(t, 1, b.count(EventGuestWaveformChanged))
	// Forward only: presence is untouched.
	snapshot := c.Snapshot("R1")
	require.Len(t, snapshot, 1)
	assert.Equal(t, SyncIdle, snapshot[0].SyncState)
}

func TestUpdatesFromUnknownConnectionsAreIgnored(t *testing.T) {
	b := newRecordingBroadcaster()
	c := NewCoordinator(b, Callbacks{})

	c.UpdateSync("conn-ghost", SyncUpdatePayload{RoomID: "R1", SyncState: string(SyncUploading)})
	c.CompleteSync(context.Background(), "conn-ghost", SyncCompletePayload{RoomID: "R1"})
	c.ReportSyncError("conn-ghost", SyncErrorPayload{RoomID: "R1"})

	assert.Empty(t, b.events)
}
