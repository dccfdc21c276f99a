// SPDX-License-Identifier: MIT

package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henteko/maycast-recorder-sub002/internal/config"
	"github.com/henteko/maycast-recorder-sub002/internal/vtt"
)

func TestNewDeepgramRequiresKey(t *testing.T) {
	_, err := NewDeepgram("")
	assert.Error(t, err)
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini("")
	assert.Error(t, err)
}

func TestFromConfigPrefersDeepgram(t *testing.T) {
	p, err := FromConfig(config.TranscriptionConfig{DeepgramAPIKey: "dg", GeminiAPIKey: "gm"})
	require.NoError(t, err)
	assert.Equal(t, "deepgram", p.Name())

	p, err = FromConfig(config.TranscriptionConfig{GeminiAPIKey: "gm"})
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	_, err = FromConfig(config.TranscriptionConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestDeepgramTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Token test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/mp4", r.Header.Get("Content-Type"))
		assert.Equal(t, "true", r.URL.Query().Get("utterances"))

		resp := map[string]any{
			"results": map[string]any{
				"utterances": []map[string]any{
					{"start": 0.0, "end": 2.5, "transcript": "Hello there."},
					{"start": 2.5, "end": 4.0, "transcript": ""},
					{"start": 4.0, "end": 6.0, "transcript": "Welcome."},
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p, err := NewDeepgram("test-key", WithDeepgramBaseURL(srv.URL))
	require.NoError(t, err)

	segments, err := p.Transcribe(context.Background(), strings.NewReader("fake-audio"), "audio/mp4")
	require.NoError(t, err)

	// Empty transcripts are skipped.
	assert.Equal(t, []vtt.Segment{
		{StartSec: 0, EndSec: 2.5, Text: "Hello there."},
		{StartSec: 4, EndSec: 6, Text: "Welcome."},
	}, segments)
}

func TestDeepgramTranscribeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"err_msg":"invalid key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := NewDeepgram("bad-key", WithDeepgramBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Transcribe(context.Background(), strings.NewReader("x"), "audio/mp4")
	assert.ErrorContains(t, err, "unexpected status 401")
}

func TestGeminiTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, ":generateContent")
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))

		var req geminiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		require.Len(t, req.Contents[0].Parts, 2)
		assert.Equal(t, "audio/mp4", req.Contents[0].Parts[1].InlineData.MIMEType)

		segments := `[{"start":0,"end":1.5,"text":"Hi."},{"start":1.5,"end":3,"text":"Bye."}]`
		inner, _ := json.Marshal(segments)
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":` + string(inner) + `}]}}]}`))
	}))
	defer srv.Close()

	p, err := NewGemini("secret", WithGeminiBaseURL(srv.URL), WithGeminiModel("gemini-2.0-flash"))
	require.NoError(t, err)

	got, err := p.Transcribe(context.Background(), strings.NewReader("fake-audio"), "audio/mp4")
	require.NoError(t, err)
	assert.Equal(t, []vtt.Segment{
		{StartSec: 0, EndSec: 1.5, Text: "Hi."},
		{StartSec: 1.5, EndSec: 3, Text: "Bye."},
	}, got)
}

func TestGeminiTranscribeEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiResponse{})
	}))
	defer srv.Close()

	p, err := NewGemini("secret", WithGeminiBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = p.Transcribe(context.Background(), strings.NewReader("x"), "audio/mp4")
	assert.ErrorContains(t, err, "empty response")
}
