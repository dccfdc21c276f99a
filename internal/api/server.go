// SPDX-License-Identifier: MIT

// Package api is the HTTP boundary: routing, access policy, request decoding
// and domain-error mapping. All orchestration lives in the service layer.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/henteko/maycast-recorder-sub002/internal/service"
)

// maxChunkBytes bounds proxy-upload request bodies.
const maxChunkBytes = 64 << 20

// Server bundles the HTTP handlers with their dependencies.
type Server struct {
	rooms      *service.Rooms
	recordings *service.Recordings
	ws         http.Handler
	corsOrigin string
	startedAt  time.Time
}

// NewServer wires the HTTP boundary. ws is the WebSocket endpoint handler.
func NewServer(rooms *service.Rooms, recordings *service.Recordings, ws http.Handler, corsOrigin string) *Server {
	return &Server{
		rooms:      rooms,
		recordings: recordings,
		ws:         ws,
		corsOrigin: corsOrigin,
		startedAt:  time.Now(),
	}
}

// Router assembles the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware(s.corsOrigin))
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Handle("/ws", s.ws)

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(300, time.Minute))

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", s.handleCreateRoom)
			r.Get("/", s.handleListRooms)
			r.Get("/by-token/{token}", s.handleGetRoomByToken)

			r.Route("/{roomID}", func(r chi.Router) {
				r.Use(s.requireRoomAccess)
				r.Get("/", s.handleGetRoom)
				r.Patch("/state", s.handleRoomState)
				r.Delete("/", s.handleDeleteRoom)
				r.Get("/recordings", s.handleListRoomRecordings)
			})
		})

		r.Route("/recordings", func(r chi.Router) {
			r.Post("/", s.handleCreateRecording)

			r.Route("/{recordingID}", func(r chi.Router) {
				r.Get("/", s.handleGetRecording)
				r.Delete("/", s.handleDeleteRecording)
				r.Patch("/state", s.handleRecordingState)
				r.Patch("/metadata", s.handleRecordingMetadata)
				r.Post("/init-segment", s.handleUploadInit)
				r.Post("/chunks", s.handleUploadChunk)
				r.Get("/upload-url/init-segment", s.handleInitUploadURL)
				r.Get("/upload-url/chunk", s.handleChunkUploadURL)
				r.Post("/upload-confirm", s.handleUploadConfirm)
				r.Get("/download-urls", s.handleDownloadURLs)
				r.Get("/download", s.handleDownload)
			})
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    int64(time.Since(s.startedAt).Seconds()),
	})
}
