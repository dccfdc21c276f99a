// SPDX-License-Identifier: MIT

package chunkstore

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henteko/maycast-recorder-sub002/internal/domain"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLocalSaveThenGetRoundTrip(t *testing.T) {
	store := newTestLocal(t)
	ctx := context.Background()
	ref := Ref{RecordingID: "rec-a", RoomID: "R1"}

	init := []byte("ftypisom-init-bytes")
	require.NoError(t, store.SaveInit(ctx, ref, init))

	chunk0 := bytes.Repeat([]byte{0xAA}, 1024)
	chunk1 := bytes.Repeat([]byte{0xBB}, 1024)
	require.NoError(t, store.SaveChunk(ctx, ref, 0, chunk0))
	require.NoError(t, store.SaveChunk(ctx, ref, 1, chunk1))

	got, err := store.GetInit(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, init, got)

	got, err = store.GetChunk(ctx, ref, 1)
	require.NoError(t, err)
	assert.Equal(t, chunk1, got)
}

func TestLocalRejectsEmptyPayloads(t *testing.T) {
	store := newTestLocal(t)
	ctx := context.Background()
	ref := Ref{RecordingID: "rec-a"}

	var invalid domain.ErrInvalidArgument
	require.ErrorAs(t, store.SaveInit(ctx, ref, nil), &invalid)
	require.ErrorAs(t, store.SaveChunk(ctx, ref, 0, []byte{}), &invalid)
	require.ErrorAs(t, store.PutObject(ctx, ref.OutputKey("output.mp4"), nil), &invalid)
}

func TestLocalOverwriteIsIdempotent(t *testing.T) {
	store := newTestLocal(t)
	ctx := context.Background()
	ref := Ref{RecordingID: "rec-a", RoomID: "R1"}

	require.NoError(t, store.SaveChunk(ctx, ref, 3, []byte("first")))
	require.NoError(t, store.SaveChunk(ctx, ref, 3, []byte("second")))

	got, err := store.GetChunk(ctx, ref, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	ids, err := store.ListChunkIDs(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3}, ids)
}

func TestLocalNotFound(t *testing.T) {
	store := newTestLocal(t)
	ctx := context.Background()
	ref := Ref{RecordingID: "missing"}

	var notFound domain.ErrNotFound
	_, err := store.GetInit(ctx, ref)
	require.ErrorAs(t, err, &notFound)
	_, err = store.GetChunk(ctx, ref, 0)
	require.ErrorAs(t, err, &notFound)
}

func TestLocalListChunkIDsOrderingAndExclusions(t *testing.T) {
	store := newTestLocal(t)
	ctx := context.Background()
	ref := Ref{RecordingID: "rec-a", RoomID: "R1"}

	require.NoError(t, store.SaveInit(ctx, ref, []byte("init")))
	// Gaps are tolerated; order is numeric, not lexicographic.
	for _, id := range []uint64{10, 2, 0, 100} {
		require.NoError(t, store.SaveChunk(ctx, ref, id, []byte("data")))
	}
	require.NoError(t, store.PutObject(ctx, ref.OutputKey("output.mp4"), []byte("mp4")))
	require.NoError(t, store.PutObject(ctx, ref.OutputKey("audio.m4a"), []byte("m4a")))

	ids, err := store.ListChunkIDs(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2, 10, 100}, ids)
}

func TestLocalListChunkIDsEmptyRecording(t *testing.T) {
	store := newTestLocal(t)
	ids, err := store.ListChunkIDs(context.Background(), Ref{RecordingID: "nope"})
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLocalDeleteAllThenListIsEmpty(t *testing.T) {
	store := newTestLocal(t)
	ctx := context.Background()
	ref := Ref{RecordingID: "rec-a", RoomID: "R1"}

	require.NoError(t, store.SaveInit(ctx, ref, []byte("init")))
	for i := uint64(0); i < 20; i++ {
		require.NoError(t, store.SaveChunk(ctx, ref, i, []byte("data")))
	}

	require.NoError(t, store.DeleteAll(ctx, ref))

	ids, err := store.ListChunkIDs(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, ids)

	var notFound domain.ErrNotFound
	_, err = store.GetInit(ctx, ref)
	require.ErrorAs(t, err, &notFound)
}

func TestLocalAssembleOrdering(t *testing.T) {
	store := newTestLocal(t)
	ctx := context.Background()
	ref := Ref{RecordingID: "rec-a", RoomID: "R1"}

	require.NoError(t, store.SaveInit(ctx, ref, []byte("INIT|")))
	// Save out of order; assembly must be ascending numeric.
	require.NoError(t, store.SaveChunk(ctx, ref, 2, []byte("c2|")))
	require.NoError(t, store.SaveChunk(ctx, ref, 0, []byte("c0|")))
	require.NoError(t, store.SaveChunk(ctx, ref, 10, []byte("c10")))

	var buf bytes.Buffer
	require.NoError(t, store.Assemble(ctx, ref, &buf))
	assert.Equal(t, "INIT|c0|c2|c10", buf.String())
}

func TestLocalAssembleMissingInit(t *testing.T) {
	store := newTestLocal(t)
	var buf bytes.Buffer
	var notFound domain.ErrNotFound
	err := store.Assemble(context.Background(), Ref{RecordingID: "rec-x"}, &buf)
	require.ErrorAs(t, err, &notFound)
}

func TestLocalLargeListing(t *testing.T) {
	store := newTestLocal(t)
	ctx := context.Background()
	ref := Ref{RecordingID: "rec-big", RoomID: "R1"}

	const n = 1500
	for i := 0; i < n; i++ {
		require.NoError(t, store.SaveChunk(ctx, ref, uint64(i), []byte(fmt.Sprintf("chunk-%d", i))))
	}

	ids, err := store.ListChunkIDs(ctx, ref)
	require.NoError(t, err)
	require.Len(t, ids, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, uint64(i), ids[i])
	}

	require.NoError(t, store.DeleteAll(ctx, ref))
	ids, err = store.ListChunkIDs(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestLocalPresignNotSupported(t *testing.T) {
	store := newTestLocal(t)
	assert.False(t, store.SupportsPresign())

	_, err := store.PresignUploadInit(context.Background(), Ref{RecordingID: "r"}, 0)
	assert.ErrorIs(t, err, ErrPresignNotSupported)
	_, err = store.PresignUploadChunk(context.Background(), Ref{RecordingID: "r"}, 0, 0)
	assert.ErrorIs(t, err, ErrPresignNotSupported)
	_, err = store.PresignDownloads(context.Background(), Ref{RecordingID: "r"}, 0)
	assert.ErrorIs(t, err, ErrPresignNotSupported)
}

func TestLocalObjectExists(t *testing.T) {
	store := newTestLocal(t)
	ctx := context.Background()
	ref := Ref{RecordingID: "rec-a", RoomID: "R1"}

	ok, err := store.ObjectExists(ctx, ref.OutputKey("audio.m4a"))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.PutObject(ctx, ref.OutputKey("audio.m4a"), []byte("m4a")))
	ok, err = store.ObjectExists(ctx, ref.OutputKey("audio.m4a"))
	require.NoError(t, err)
	assert.True(t, ok)
}
