// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
)

type roomJSON struct {
	RoomID       string   `json:"roomId"`
	AccessKey    string   `json:"accessKey,omitempty"`
	AccessToken  string   `json:"accessToken,omitempty"`
	State        string   `json:"state"`
	RecordingIDs []string `json:"recordingIds"`
	CreatedAt    string   `json:"createdAt"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

func renderRoom(room domain.Room, withCredentials bool) roomJSON {
	out := roomJSON{
		RoomID:       room.ID,
		State:        string(room.State),
		RecordingIDs: room.RecordingIDs,
		CreatedAt:    room.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    room.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if out.RecordingIDs == nil {
		out.RecordingIDs = []string{}
	}
	if withCredentials {
		out.AccessKey = room.AccessKey
		out.AccessToken = room.AccessToken
	}
	return out
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.Create(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderRoom(room, true))
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]roomJSON, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, renderRoom(room, false))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.Get(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderRoom(room, true))
}

func (s *Server) handleGetRoomByToken(w http.ResponseWriter, r *http.Request) {
	room, err := s.rooms.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Token holders get read-only access: no key in the response.
	writeJSON(w, http.StatusOK, renderRoom(room, false))
}

func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "malformed JSON body")
		return
	}
	room, err := s.rooms.ApplyCommand(r.Context(), chi.URLParam(r, "roomID"),
		domain.RoomCommand(body.Command))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renderRoom(room, true))
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := s.rooms.Delete(r.Context(), chi.URLParam(r, "roomID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListRoomRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.rooms.Recordings(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	out := make([]recordingJSON, 0, len(recs))
	for _, rec := range recs {
		out = append(out, renderRecording(rec))
	}
	writeJSON(w, http.StatusOK, out)
}
