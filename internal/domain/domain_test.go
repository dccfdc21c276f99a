// SPDX-License-Identifier: MIT

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomStateMachine(t *testing.T) {
	t.Run("legal chain", func(t *testing.T) {
		chain := []RoomState{RoomIdle, RoomRecording, RoomFinalizing, RoomFinished, RoomIdle}
		for i := 0; i < len(chain)-1; i++ {
			require.NoError(t, NextRoomState(chain[i], chain[i+1]),
				"%s -> %s must be legal", chain[i], chain[i+1])
		}
	})

	t.Run("never skips or regresses", func(t *testing.T) {
		all := []RoomState{RoomIdle, RoomRecording, RoomFinalizing, RoomFinished}
		for _, from := range all {
			for _, to := range all {
				if roomTransitions[from] == to {
					continue
				}
				err := NextRoomState(from, to)
				var invalid ErrInvalidTransition
				require.ErrorAs(t, err, &invalid, "%s -> %s must be rejected", from, to)
				assert.Equal(t, "room", invalid.Entity)
			}
		}
	})
}

func TestRoomStateForCommand(t *testing.T) {
	tests := []struct {
		name    string
		current RoomState
		cmd     RoomCommand
		want    RoomState
		wantErr bool
	}{
		{"start from idle", RoomIdle, CommandStart, RoomRecording, false},
		{"stop from recording", RoomRecording, CommandStop, RoomFinalizing, false},
		{"reset from finished", RoomFinished, CommandReset, RoomIdle, false},
		{"start from recording", RoomRecording, CommandStart, "", true},
		{"stop from idle", RoomIdle, CommandStop, "", true},
		{"reset from recording", RoomRecording, CommandReset, "", true},
		{"unknown command", RoomIdle, RoomCommand("pause"), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RoomStateForCommand(tt.current, tt.cmd)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordingStateMachine(t *testing.T) {
	require.NoError(t, NextRecordingState(RecordingStandby, RecordingRecording))
	require.NoError(t, NextRecordingState(RecordingRecording, RecordingFinalizing))
	require.NoError(t, NextRecordingState(RecordingFinalizing, RecordingSynced))

	// synced is terminal
	err := NextRecordingState(RecordingSynced, RecordingRecording)
	var invalid ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)

	// skipping is rejected
	require.Error(t, NextRecordingState(RecordingStandby, RecordingSynced))
	require.Error(t, NextRecordingState(RecordingStandby, RecordingFinalizing))

	// clients may report interruption while in flight, but not before
	// recording starts or after a terminal state
	require.NoError(t, NextRecordingState(RecordingRecording, RecordingInterrupted))
	require.NoError(t, NextRecordingState(RecordingFinalizing, RecordingInterrupted))
	require.Error(t, NextRecordingState(RecordingStandby, RecordingInterrupted))
	require.Error(t, NextRecordingState(RecordingSynced, RecordingInterrupted))

	// unknown states are invalid arguments
	require.Error(t, NextRecordingState(RecordingStandby, RecordingState("paused")))
}

func TestCanUpdateMetadata(t *testing.T) {
	assert.True(t, RecordingStandby.CanUpdateMetadata())
	assert.True(t, RecordingRecording.CanUpdateMetadata())
	assert.False(t, RecordingFinalizing.CanUpdateMetadata())
	assert.False(t, RecordingSynced.CanUpdateMetadata())
	assert.False(t, RecordingInterrupted.CanUpdateMetadata())
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, RecordingSynced.Terminal())
	assert.True(t, RecordingInterrupted.Terminal())
	assert.False(t, RecordingFinalizing.Terminal())
}
