// SPDX-License-Identifier: MIT

// Package realtime is the in-memory authority over live-room presence and the
// WebSocket event fabric. The Coordinator owns guest presence exclusively;
// nothing here is ever persisted.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/henteko/maycast-recorder-sub002/internal/log"
)

// Broadcaster fans an event out to every connection subscribed to a room
// channel. Delivery is best-effort; slow consumers are dropped.
type Broadcaster interface {
	Broadcast(roomID, event string, data any)
}

// Callbacks are the lifecycle hooks into the application core. They are
// passed in at construction; there is no process-wide registration.
type Callbacks struct {
	// AllSynced fires when every guest with a bound recording reports synced.
	// Fired at most once per finalizing traversal (see ResetSyncLatch).
	AllSynced func(ctx context.Context, roomID string)

	// RecordingLinked fires when a guest binds its recording id, so the
	// participant name can be persisted into the recording metadata.
	RecordingLinked func(ctx context.Context, roomID, recordingID, guestName string)
}

type connRef struct {
	roomID  string
	guestID string // empty for directors/observers
}

// Coordinator tracks per-room guest presence and evaluates the "all guests
// synced" predicate. All map access is serialized behind one mutex; room
// event rates are low enough that finer locking buys nothing.
type Coordinator struct {
	mu         sync.Mutex
	rooms      map[string]map[string]*GuestPresence // roomID -> guestID -> presence
	conns      map[string]connRef                   // connectionID -> (roomID, guestID)
	guestCount map[string]int
	syncFired  map[string]bool

	broadcaster Broadcaster
	callbacks   Callbacks
	logger      zerolog.Logger
}

// NewCoordinator wires the coordinator to its broadcast fabric and lifecycle
// callbacks.
func NewCoordinator(b Broadcaster, cb Callbacks) *Coordinator {
	return &Coordinator{
		rooms:       make(map[string]map[string]*GuestPresence),
		conns:       make(map[string]connRef),
		guestCount:  make(map[string]int),
		syncFired:   make(map[string]bool),
		broadcaster: b,
		callbacks:   cb,
		logger:      log.WithComponent("coordinator"),
	}
}

// JoinRoom registers a connection on the room channel. A connection joining
// without a name is a director/observer: it gets a presence snapshot instead
// of a guest identity. Guests get a freshly allocated guest id.
func (c *Coordinator) JoinRoom(connID, roomID, name string) (guestID string, snapshot []GuestPresence) {
	c.mu.Lock()

	if name == "" {
		snapshot = c.snapshotLocked(roomID)
		c.conns[connID] = connRef{roomID: roomID}
		c.mu.Unlock()
		return "", snapshot
	}

	guestID = uuid.NewString()
	presence := &GuestPresence{
		GuestID:       guestID,
		ConnectionID:  connID,
		Name:          name,
		SyncState:     SyncIdle,
		LastUpdatedAt: time.Now().UTC(),
	}
	if c.rooms[roomID] == nil {
		c.rooms[roomID] = make(map[string]*GuestPresence)
	}
	c.rooms[roomID][guestID] = presence
	c.conns[connID] = connRef{roomID: roomID, guestID: guestID}
	c.guestCount[roomID]++
	joined := *presence
	c.mu.Unlock()

	c.logger.Info().Str("room_id", roomID).Str("guest_id", guestID).Str("name", name).
		Msg("guest joined room")
	c.broadcaster.Broadcast(roomID, EventGuestJoined, GuestJoinedPayload{RoomID: roomID, Guest: joined})
	return guestID, nil
}

// LeaveRoom removes the connection's presence from the room.
func (c *Coordinator) LeaveRoom(connID, roomID string) {
	c.mu.Lock()
	ref, ok := c.conns[connID]
	if !ok || ref.roomID != roomID {
		c.mu.Unlock()
		return
	}
	delete(c.conns, connID)
	guestID := ref.guestID
	if guestID != "" {
		c.removeGuestLocked(roomID, guestID)
	}
	c.mu.Unlock()

	if guestID != "" {
		c.broadcaster.Broadcast(roomID, EventGuestLeft, GuestLeftPayload{RoomID: roomID, GuestID: guestID})
	}
}

// Disconnect purges the connection's presence after a transport failure,
// synthesizing the guest_left the client never sent. Returns the room the
// connection was subscribed to, if any.
func (c *Coordinator) Disconnect(connID string) (roomID string, ok bool) {
	c.mu.Lock()
	ref, found := c.conns[connID]
	if !found {
		c.mu.Unlock()
		return "", false
	}
	delete(c.conns, connID)
	if ref.guestID != "" {
		c.removeGuestLocked(ref.roomID, ref.guestID)
	}
	c.mu.Unlock()

	if ref.guestID != "" {
		c.logger.Info().Str("room_id", ref.roomID).Str("guest_id", ref.guestID).
			Msg("transport dropped, synthesizing guest_left")
		c.broadcaster.Broadcast(ref.roomID, EventGuestLeft,
			GuestLeftPayload{RoomID: ref.roomID, GuestID: ref.guestID})
	}
	return ref.roomID, true
}

func (c *Coordinator) removeGuestLocked(roomID, guestID string) {
	if guests, ok := c.rooms[roomID]; ok {
		if _, existed := guests[guestID]; existed {
			delete(guests, guestID)
			c.guestCount[roomID]--
			if len(guests) == 0 {
				delete(c.rooms, roomID)
				delete(c.guestCount, roomID)
			}
		}
	}
}

// SetRecordingID binds a recording to the guest's presence and invokes the
// recording-linked callback when the guest's name is known.
func (c *Coordinator) SetRecordingID(ctx context.Context, connID, roomID, recordingID string) {
	c.mu.Lock()
	p := c.presenceForConnLocked(connID, roomID)
	if p == nil {
		c.mu.Unlock()
		return
	}
	p.RecordingID = recordingID
	p.LastUpdatedAt = time.Now().UTC()
	guestID, name := p.GuestID, p.Name
	c.mu.Unlock()

	if name != "" && c.callbacks.RecordingLinked != nil {
		c.callbacks.RecordingLinked(ctx, roomID, recordingID, name)
	}
	c.broadcaster.Broadcast(roomID, EventGuestRecordingLinked,
		RecordingLinkedPayload{RoomID: roomID, GuestID: guestID, RecordingID: recordingID})
}

// UpdateSync applies a guest telemetry update.
func (c *Coordinator) UpdateSync(connID string, p SyncUpdatePayload) {
	c.mu.Lock()
	presence := c.presenceForConnLocked(connID, p.RoomID)
	if presence == nil {
		c.mu.Unlock()
		return
	}
	presence.SyncState = SyncState(p.SyncState)
	presence.UploadedChunks = p.UploadedChunks
	presence.TotalChunks = p.TotalChunks
	presence.LastUpdatedAt = time.Now().UTC()
	guestID := presence.GuestID
	c.mu.Unlock()

	c.broadcaster.Broadcast(p.RoomID, EventGuestSyncStateChanged, SyncStateChangedPayload{
		RoomID:         p.RoomID,
		GuestID:        guestID,
		RecordingID:    p.RecordingID,
		SyncState:      p.SyncState,
		UploadedChunks: p.UploadedChunks,
		TotalChunks:    p.TotalChunks,
	})
}

// CompleteSync marks the guest synced and fires the all-synced callback when
// the predicate newly holds.
func (c *Coordinator) CompleteSync(ctx context.Context, connID string, p SyncCompletePayload) {
	c.mu.Lock()
	presence := c.presenceForConnLocked(connID, p.RoomID)
	if presence == nil {
		c.mu.Unlock()
		return
	}
	presence.SyncState = SyncSynced
	presence.UploadedChunks = p.TotalChunks
	presence.TotalChunks = p.TotalChunks
	presence.LastUpdatedAt = time.Now().UTC()
	guestID := presence.GuestID
	fire := c.evaluatePredicateLocked(p.RoomID)
	c.mu.Unlock()

	c.broadcaster.Broadcast(p.RoomID, EventGuestSyncCompleted, SyncCompletedPayload{
		RoomID:      p.RoomID,
		GuestID:     guestID,
		RecordingID: p.RecordingID,
		TotalChunks: p.TotalChunks,
	})
	if fire && c.callbacks.AllSynced != nil {
		c.callbacks.AllSynced(ctx, p.RoomID)
	}
}

// ReportSyncError records a guest-side upload failure.
func (c *Coordinator) ReportSyncError(connID string, p SyncErrorPayload) {
	c.mu.Lock()
	presence := c.presenceForConnLocked(connID, p.RoomID)
	if presence == nil {
		c.mu.Unlock()
		return
	}
	presence.SyncState = SyncError
	presence.ErrorMessage = p.ErrorMessage
	presence.LastUpdatedAt = time.Now().UTC()
	guestID := presence.GuestID
	c.mu.Unlock()

	c.broadcaster.Broadcast(p.RoomID, EventGuestSyncFailed, SyncFailedPayload{
		RoomID:       p.RoomID,
		GuestID:      guestID,
		RecordingID:  p.RecordingID,
		ErrorMessage: p.ErrorMessage,
		FailedChunks: p.FailedChunks,
	})
}

// UpdateMediaStatus stores and rebroadcasts the guest's media device status.
func (c *Coordinator) UpdateMediaStatus(connID, roomID string, status json.RawMessage) {
	c.mu.Lock()
	presence := c.presenceForConnLocked(connID, roomID)
	if presence == nil {
		c.mu.Unlock()
		return
	}
	presence.MediaStatus = status
	presence.LastUpdatedAt = time.Now().UTC()
	guestID := presence.GuestID
	c.mu.Unlock()

	c.broadcaster.Broadcast(roomID, EventGuestMediaStatusChanged,
		MediaStatusChangedPayload{RoomID: roomID, GuestID: guestID, MediaStatus: status})
}

// ForwardWaveform rebroadcasts waveform samples without touching presence.
func (c *Coordinator) ForwardWaveform(connID string, p WaveformPayload) {
	c.mu.Lock()
	presence := c.presenceForConnLocked(connID, p.RoomID)
	var guestID string
	if presence != nil {
		guestID = presence.GuestID
	}
	c.mu.Unlock()
	if guestID == "" {
		return
	}

	c.broadcaster.Broadcast(p.RoomID, EventGuestWaveformChanged, WaveformChangedPayload{
		RoomID:       p.RoomID,
		GuestID:      guestID,
		WaveformData: p.WaveformData,
		IsSilent:     p.IsSilent,
	})
}

// presenceForConnLocked resolves the guest presence behind a connection.
func (c *Coordinator) presenceForConnLocked(connID, roomID string) *GuestPresence {
	ref, ok := c.conns[connID]
	if !ok || ref.roomID != roomID || ref.guestID == "" {
		return nil
	}
	return c.rooms[roomID][ref.guestID]
}

// AllSynced evaluates the predicate without touching the latch: every guest
// presence with a bound recording id reports synced. A room with no bound
// recordings satisfies the predicate trivially.
func (c *Coordinator) AllSynced(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allSyncedLocked(roomID)
}

func (c *Coordinator) allSyncedLocked(roomID string) bool {
	for _, p := range c.rooms[roomID] {
		if p.RecordingID == "" {
			continue
		}
		if p.SyncState != SyncSynced {
			return false
		}
	}
	return true
}

// evaluatePredicateLocked returns true when the predicate holds and the
// latch has not fired yet, and arms the latch.
func (c *Coordinator) evaluatePredicateLocked(roomID string) bool {
	if c.syncFired[roomID] || !c.allSyncedLocked(roomID) {
		return false
	}
	c.syncFired[roomID] = true
	return true
}

// ResetSyncLatch re-arms the all-synced latch. The application core calls
// this when the room starts a new recording pass.
func (c *Coordinator) ResetSyncLatch(roomID string) {
	c.mu.Lock()
	delete(c.syncFired, roomID)
	c.mu.Unlock()
}

// GuestCount returns the number of guests currently present in the room.
func (c *Coordinator) GuestCount(roomID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guestCount[roomID]
}

// Snapshot returns a copy of the room's current guest presences.
func (c *Coordinator) Snapshot(roomID string) []GuestPresence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(roomID)
}

func (c *Coordinator) snapshotLocked(roomID string) []GuestPresence {
	guests := c.rooms[roomID]
	out := make([]GuestPresence, 0, len(guests))
	for _, p := range guests {
		out = append(out, *p)
	}
	return out
}
