// SPDX-License-Identifier: MIT

// Package domain holds the room and recording state machines as plain records
// plus pure transition functions. Persistence and transport layers operate on
// these records; they never mutate state outside the transition functions.
package domain

import "time"

// RoomState is the lifecycle state of a room.
type RoomState string

const (
	RoomIdle       RoomState = "idle"
	RoomRecording  RoomState = "recording"
	RoomFinalizing RoomState = "finalizing"
	RoomFinished   RoomState = "finished"
)

// Valid reports whether s is a known room state.
func (s RoomState) Valid() bool {
	switch s {
	case RoomIdle, RoomRecording, RoomFinalizing, RoomFinished:
		return true
	}
	return false
}

// RoomCommand is a director-issued room transition command.
type RoomCommand string

const (
	CommandStart RoomCommand = "start"
	CommandStop  RoomCommand = "stop"
	CommandReset RoomCommand = "reset"
)

// Room is the durable record of a coordination context.
type Room struct {
	ID           string
	AccessKey    string
	AccessToken  string
	State        RoomState
	RecordingIDs []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// roomTransitions enumerates the legal edges of the room state machine.
// finished -> idle is the single permitted loop-back (room reuse).
var roomTransitions = map[RoomState]RoomState{
	RoomIdle:       RoomRecording,
	RoomRecording:  RoomFinalizing,
	RoomFinalizing: RoomFinished,
	RoomFinished:   RoomIdle,
}

// NextRoomState validates the transition from -> to.
func NextRoomState(from, to RoomState) error {
	if roomTransitions[from] == to {
		return nil
	}
	return ErrInvalidTransition{Entity: "room", From: string(from), To: string(to)}
}

// RoomStateForCommand resolves a director command against the current state,
// returning the target state or an ErrInvalidTransition.
func RoomStateForCommand(current RoomState, cmd RoomCommand) (RoomState, error) {
	var target RoomState
	switch cmd {
	case CommandStart:
		target = RoomRecording
	case CommandStop:
		target = RoomFinalizing
	case CommandReset:
		target = RoomIdle
	default:
		return "", ErrInvalidArgument{Field: "command", Reason: "unknown command"}
	}
	if err := NextRoomState(current, target); err != nil {
		return "", err
	}
	return target, nil
}
