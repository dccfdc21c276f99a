// SPDX-License-Identifier: MIT

// Package transcribe turns recorded audio into timed transcript segments.
// Providers implement a single batch call; streaming recognition is out of
// scope for post-production subtitles.
package transcribe

import (
	"context"
	"errors"
	"io"

	"github.com/henteko/maycast-recorder-sub002/internal/config"
	"github.com/henteko/maycast-recorder-sub002/internal/vtt"
)

// ErrNotConfigured is returned when no provider credentials are present.
var ErrNotConfigured = errors.New("transcribe: no provider configured")

// Provider transcribes one complete audio object. mimeType describes the
// audio payload (e.g. "audio/mp4"). Segments come back ordered by start time.
type Provider interface {
	// Name identifies the provider in logs and job records.
	Name() string

	// Transcribe reads the full audio stream and returns timed segments.
	Transcribe(ctx context.Context, audio io.Reader, mimeType string) ([]vtt.Segment, error)
}

// FromConfig selects a provider from the configured credentials. Deepgram
// wins when both providers are configured.
func FromConfig(cfg config.TranscriptionConfig) (Provider, error) {
	switch {
	case cfg.DeepgramAPIKey != "":
		return NewDeepgram(cfg.DeepgramAPIKey)
	case cfg.GeminiAPIKey != "":
		return NewGemini(cfg.GeminiAPIKey, WithGeminiModel(cfg.GeminiModel))
	default:
		return nil, ErrNotConfigured
	}
}
