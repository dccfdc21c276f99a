// SPDX-License-Identifier: MIT

package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/henteko/maycast-recorder-sub002/internal/log"
	"github.com/henteko/maycast-recorder-sub002/internal/metrics"
)

// Waveform frames are small and high-rate; anything beyond this per
// connection is dropped without feedback.
const (
	waveformRate  = rate.Limit(30)
	waveformBurst = 60
)

// Handler is the WebSocket endpoint. It accepts connections, serializes
// per-connection reads, and dispatches client events to the Coordinator.
type Handler struct {
	coord          *Coordinator
	hub            *Hub
	originPatterns []string
	logger         zerolog.Logger
}

// NewHandler builds the endpoint. originPatterns is passed to the WebSocket
// accept options; an empty slice keeps same-origin enforcement.
func NewHandler(coord *Coordinator, hub *Hub, originPatterns []string) *Handler {
	return &Handler{
		coord:          coord,
		hub:            hub,
		originPatterns: originPatterns,
		logger:         log.WithComponent("ws"),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	conn := h.hub.Register(ws)
	defer func() {
		if roomID, ok := h.coord.Disconnect(conn.ID); ok && roomID != "" {
			h.hub.Unsubscribe(conn, roomID)
		}
		h.hub.Remove(conn)
		ws.Close(websocket.StatusNormalClosure, "")
	}()

	waveformLimiter := rate.NewLimiter(waveformRate, waveformBurst)

	for {
		_, data, err := ws.Read(r.Context())
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			h.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("read loop ended")
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.logger.Warn().Err(err).Str("conn_id", conn.ID).Msg("malformed event frame")
			continue
		}
		metrics.WSEventTotal.WithLabelValues(env.Event, "in").Inc()
		h.dispatch(r.Context(), conn, env, waveformLimiter)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *Conn, env Envelope, waveformLimiter *rate.Limiter) {
	switch env.Event {
	case EventJoinRoom:
		var p JoinRoomPayload
		if !h.decode(env, &p) || p.RoomID == "" {
			return
		}
		h.hub.Subscribe(conn, p.RoomID)
		_, snapshot := h.coord.JoinRoom(conn.ID, p.RoomID, p.Name)
		if p.Name == "" {
			h.hub.Send(conn, EventRoomGuests, RoomGuestsPayload{RoomID: p.RoomID, Guests: snapshot})
		}

	case EventLeaveRoom:
		var p LeaveRoomPayload
		if !h.decode(env, &p) {
			return
		}
		h.coord.LeaveRoom(conn.ID, p.RoomID)
		h.hub.Unsubscribe(conn, p.RoomID)

	case EventSetRecordingID:
		var p SetRecordingIDPayload
		if !h.decode(env, &p) {
			return
		}
		h.coord.SetRecordingID(ctx, conn.ID, p.RoomID, p.RecordingID)

	case EventGuestSyncUpdate:
		var p SyncUpdatePayload
		if !h.decode(env, &p) {
			return
		}
		h.coord.UpdateSync(conn.ID, p)

	case EventGuestSyncComplete:
		var p SyncCompletePayload
		if !h.decode(env, &p) {
			return
		}
		h.coord.CompleteSync(ctx, conn.ID, p)

	case EventGuestSyncError:
		var p SyncErrorPayload
		if !h.decode(env, &p) {
			return
		}
		h.coord.ReportSyncError(conn.ID, p)

	case EventGuestMediaStatus:
		var p MediaStatusPayload
		if !h.decode(env, &p) {
			return
		}
		h.coord.UpdateMediaStatus(conn.ID, p.RoomID, p.MediaStatus)

	case EventGuestWaveform:
		if !waveformLimiter.Allow() {
			return
		}
		var p WaveformPayload
		if !h.decode(env, &p) {
			return
		}
		h.coord.ForwardWaveform(conn.ID, p)

	case EventTimeSyncPing:
		var p TimeSyncPingPayload
		if !h.decode(env, &p) {
			return
		}
		received := time.Now().UnixMilli()
		h.hub.Send(conn, EventTimeSyncPong, TimeSyncPongPayload{
			ClientSendTime:    p.ClientSendTime,
			ServerReceiveTime: received,
			ServerSendTime:    time.Now().UnixMilli(),
		})

	default:
		h.logger.Debug().Str("event", env.Event).Msg("ignoring unknown event")
	}
}

func (h *Handler) decode(env Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		h.logger.Warn().Err(err).Str("event", env.Event).Msg("malformed event payload")
		return false
	}
	return true
}
