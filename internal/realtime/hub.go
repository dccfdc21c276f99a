// SPDX-License-Identifier: MIT

package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/henteko/maycast-recorder-sub002/internal/log"
	"github.com/henteko/maycast-recorder-sub002/internal/metrics"
)

const (
	sendQueueSize = 64
	writeTimeout  = 5 * time.Second
)

// RoomChannel returns the channel name a room's events are published on.
func RoomChannel(roomID string) string {
	return "room:" + roomID
}

// Conn wraps one WebSocket connection with a buffered outbound queue. Writes
// go through a single writer goroutine so the transport sees serialized
// frames; a full queue drops the message rather than stalling the room.
type Conn struct {
	ID string

	ws   *websocket.Conn
	send chan Envelope
	once sync.Once
	done chan struct{}
}

func (c *Conn) enqueue(env Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		metrics.WSDroppedBroadcasts.Inc()
		return false
	}
}

// close stops the writer. Safe to call multiple times.
func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub owns the live WebSocket connections and their room-channel
// subscriptions. It implements Broadcaster for the Coordinator.
type Hub struct {
	mu       sync.Mutex
	channels map[string]map[*Conn]struct{} // channel name -> subscribers
	byID     map[string]*Conn

	logger zerolog.Logger
}

var _ Broadcaster = (*Hub)(nil)

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]map[*Conn]struct{}),
		byID:     make(map[string]*Conn),
		logger:   log.WithComponent("hub"),
	}
}

// Register adopts a freshly accepted WebSocket connection and starts its
// writer goroutine.
func (h *Hub) Register(ws *websocket.Conn) *Conn {
	c := &Conn{
		ID:   uuid.NewString(),
		ws:   ws,
		send: make(chan Envelope, sendQueueSize),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.byID[c.ID] = c
	h.mu.Unlock()
	metrics.WSConnections.Inc()

	go h.writeLoop(c)
	return c
}

// writeLoop drains the send queue onto the wire. Writes to a closed
// connection fail and end the loop silently.
func (h *Hub) writeLoop(c *Conn) {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			data, err := json.Marshal(env)
			if err != nil {
				h.logger.Error().Err(err).Str("event", env.Event).Msg("failed to encode envelope")
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err = c.ws.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.close()
				return
			}
			metrics.WSEventTotal.WithLabelValues(env.Event, "out").Inc()
		}
	}
}

// Subscribe adds the connection to a room channel.
func (h *Hub) Subscribe(c *Conn, roomID string) {
	ch := RoomChannel(roomID)
	h.mu.Lock()
	if h.channels[ch] == nil {
		h.channels[ch] = make(map[*Conn]struct{})
	}
	h.channels[ch][c] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe removes the connection from a room channel.
func (h *Hub) Unsubscribe(c *Conn, roomID string) {
	ch := RoomChannel(roomID)
	h.mu.Lock()
	if subs, ok := h.channels[ch]; ok {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.channels, ch)
		}
	}
	h.mu.Unlock()
}

// Remove drops the connection from every channel and stops its writer.
func (h *Hub) Remove(c *Conn) {
	h.mu.Lock()
	for ch, subs := range h.channels {
		if _, ok := subs[c]; ok {
			delete(subs, c)
			if len(subs) == 0 {
				delete(h.channels, ch)
			}
		}
	}
	delete(h.byID, c.ID)
	h.mu.Unlock()

	c.close()
	metrics.WSConnections.Dec()
}

// Broadcast fans the event out to every subscriber of the room channel.
// Delivery is best-effort: there is no replay buffer, and slow consumers
// lose messages.
func (h *Hub) Broadcast(roomID, event string, data any) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to build envelope")
		return
	}

	h.mu.Lock()
	subs := h.channels[RoomChannel(roomID)]
	targets := make([]*Conn, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.enqueue(env)
	}
}

// Send delivers an event to a single connection.
func (h *Hub) Send(c *Conn, event string, data any) {
	env, err := NewEnvelope(event, data)
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("failed to build envelope")
		return
	}
	c.enqueue(env)
}
