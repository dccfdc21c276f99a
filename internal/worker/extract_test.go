// SPDX-License-Identifier: MIT

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henteko/maycast-recorder-sub002/internal/chunkstore"
	"github.com/henteko/maycast-recorder-sub002/internal/domain"
	"github.com/henteko/maycast-recorder-sub002/internal/queue"
	"github.com/henteko/maycast-recorder-sub002/internal/testutil"
)

// copyExtractor stands in for ffmpeg: it copies the assembled input so the
// pipeline has a real file to upload.
type copyExtractor struct {
	calls []string
	err   error
}

func (e *copyExtractor) ExtractAudio(_ context.Context, inputPath, outputPath string) error {
	e.calls = append(e.calls, inputPath)
	if e.err != nil {
		return e.err
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, append([]byte("AUDIO:"), data...), 0o600)
}

type fakeEnqueuer struct {
	transcriptions []queue.TranscriptionJob
	err            error
}

func (f *fakeEnqueuer) EnqueueAudioExtraction(context.Context, queue.AudioExtractionJob) error {
	return nil
}

func (f *fakeEnqueuer) EnqueueTranscription(_ context.Context, job queue.TranscriptionJob) error {
	if f.err != nil {
		return f.err
	}
	f.transcriptions = append(f.transcriptions, job)
	return nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func extractionFixture(t *testing.T, transcriptionEnabled bool) (*ExtractionHandler, *testutil.MemStore, chunkstore.Store, *copyExtractor, *fakeEnqueuer) {
	t.Helper()
	st := testutil.NewMemStore()
	chunks, err := chunkstore.NewLocal(t.TempDir())
	require.NoError(t, err)
	ex := &copyExtractor{}
	enq := &fakeEnqueuer{}
	h := NewExtractionHandler(st, chunks, ex, enq, t.TempDir(), transcriptionEnabled)
	return h, st, chunks, ex, enq
}

func seedRecording(t *testing.T, st *testutil.MemStore, chunks chunkstore.Store, roomID, recID string, chunkPayloads ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.UpsertRecording(ctx, domain.Recording{
		ID:              recID,
		RoomID:          roomID,
		State:           domain.RecordingSynced,
		ProcessingState: domain.ProcessingPending,
	}))
	ref := chunkstore.Ref{RecordingID: recID, RoomID: roomID}
	require.NoError(t, chunks.SaveInit(ctx, ref, []byte("INIT-"+recID)))
	for i, payload := range chunkPayloads {
		require.NoError(t, chunks.SaveChunk(ctx, ref, uint64(i), []byte(payload)))
	}
}

func extractionPayload(t *testing.T, roomID string, recIDs ...string) []byte {
	t.Helper()
	payload, err := json.Marshal(queue.AudioExtractionJob{RoomID: roomID, RecordingIDs: recIDs})
	require.NoError(t, err)
	return payload
}

func TestExtractionHappyPath(t *testing.T) {
	h, st, chunks, ex, _ := extractionFixture(t, false)
	ctx := context.Background()
	seedRecording(t, st, chunks, "R1", "rec-a", "AAA", "BBB")

	require.NoError(t, h.Handle(ctx, extractionPayload(t, "R1", "rec-a")))

	rec, err := st.GetRecording(ctx, "rec-a")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingCompleted, rec.ProcessingState)
	assert.Equal(t, "rooms/R1/rec-a/output.mp4", rec.OutputMP4Key)
	assert.Equal(t, "rooms/R1/rec-a/audio.m4a", rec.OutputM4AKey)
	require.NotNil(t, rec.ProcessedAt)
	assert.Len(t, ex.calls, 1)

	mp4, err := chunks.GetObject(ctx, rec.OutputMP4Key)
	require.NoError(t, err)
	assert.Equal(t, "INIT-rec-aAAABBB", string(mp4))

	m4a, err := chunks.GetObject(ctx, rec.OutputM4AKey)
	require.NoError(t, err)
	assert.Equal(t, "AUDIO:INIT-rec-aAAABBB", string(m4a))
}

func TestExtractionMissingInitMarksFailed(t *testing.T) {
	h, st, _, _, _ := extractionFixture(t, false)
	ctx := context.Background()
	require.NoError(t, st.UpsertRecording(ctx, domain.Recording{
		ID: "rec-a", RoomID: "R1", State: domain.RecordingSynced,
	}))

	// The job itself succeeds; the failure lands on the recording.
	require.NoError(t, h.Handle(ctx, extractionPayload(t, "R1", "rec-a")))

	rec, err := st.GetRecording(ctx, "rec-a")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingFailed, rec.ProcessingState)
	assert.Contains(t, rec.ProcessingError, "init segment missing")
}

func TestExtractionNoChunksMarksFailed(t *testing.T) {
	h, st, chunks, _, _ := extractionFixture(t, false)
	ctx := context.Background()
	seedRecording(t, st, chunks, "R1", "rec-a") // init only

	require.NoError(t, h.Handle(ctx, extractionPayload(t, "R1", "rec-a")))

	rec, err := st.GetRecording(ctx, "rec-a")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingFailed, rec.ProcessingState)
	assert.Contains(t, rec.ProcessingError, "no chunks")
}

func TestExtractionOneFailureDoesNotSinkBatch(t *testing.T) {
	h, st, chunks, _, _ := extractionFixture(t, false)
	ctx := context.Background()
	seedRecording(t, st, chunks, "R1", "rec-ok", "AAA")
	require.NoError(t, st.UpsertRecording(ctx, domain.Recording{
		ID: "rec-broken", RoomID: "R1", State: domain.RecordingSynced,
	}))

	require.NoError(t, h.Handle(ctx, extractionPayload(t, "R1", "rec-broken", "rec-ok")))

	broken, err := st.GetRecording(ctx, "rec-broken")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingFailed, broken.ProcessingState)

	ok, err := st.GetRecording(ctx, "rec-ok")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingCompleted, ok.ProcessingState)
}

func TestExtractionExtractorFailure(t *testing.T) {
	h, st, chunks, ex, enq := extractionFixture(t, true)
	ex.err = errors.New("codec not supported")
	ctx := context.Background()
	seedRecording(t, st, chunks, "R1", "rec-a", "AAA")

	require.NoError(t, h.Handle(ctx, extractionPayload(t, "R1", "rec-a")))

	rec, err := st.GetRecording(ctx, "rec-a")
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessingFailed, rec.ProcessingState)
	assert.Contains(t, rec.ProcessingError, "codec not supported")
	assert.Empty(t, enq.transcriptions)
}

func TestExtractionChainsTranscription(t *testing.T) {
	h, st, chunks, _, enq := extractionFixture(t, true)
	ctx := context.Background()
	seedRecording(t, st, chunks, "R1", "rec-a", "AAA")

	require.NoError(t, h.Handle(ctx, extractionPayload(t, "R1", "rec-a")))

	require.Len(t, enq.transcriptions, 1)
	job := enq.transcriptions[0]
	assert.Equal(t, "R1", job.RoomID)
	assert.Equal(t, "rec-a", job.RecordingID)
	assert.Equal(t, "rooms/R1/rec-a/audio.m4a", job.M4AKey)
}

func TestExtractionChainDisabled(t *testing.T) {
	h, st, chunks, _, enq := extractionFixture(t, false)
	ctx := context.Background()
	seedRecording(t, st, chunks, "R1", "rec-a", "AAA")

	require.NoError(t, h.Handle(ctx, extractionPayload(t, "R1", "rec-a")))
	assert.Empty(t, enq.transcriptions)
}

func TestExtractionStandaloneKeyLayout(t *testing.T) {
	h, st, chunks, _, _ := extractionFixture(t, false)
	ctx := context.Background()
	seedRecording(t, st, chunks, "", "rec-solo", "AAA")

	require.NoError(t, h.Handle(ctx, extractionPayload(t, "", "rec-solo")))

	rec, err := st.GetRecording(ctx, "rec-solo")
	require.NoError(t, err)
	assert.Equal(t, "rec-solo/output.mp4", rec.OutputMP4Key)
	assert.Equal(t, "rec-solo/audio.m4a", rec.OutputM4AKey)
}

func TestExtractionMalformedPayload(t *testing.T) {
	h, _, _, _, _ := extractionFixture(t, false)
	err := h.Handle(context.Background(), []byte("{not json"))
	assert.ErrorContains(t, err, "malformed audio-extraction payload")
}
