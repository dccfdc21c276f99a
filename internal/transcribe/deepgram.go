// SPDX-License-Identifier: MIT

package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/henteko/maycast-recorder-sub002/internal/vtt"
)

const (
	deepgramEndpoint     = "https://api.deepgram.com/v1/listen"
	deepgramDefaultModel = "nova-2"
	deepgramTimeout      = 5 * time.Minute
)

// DeepgramOption is a functional option for configuring the Deepgram provider.
type DeepgramOption func(*Deepgram)

// WithDeepgramModel sets the Deepgram model (e.g. "nova-2", "base").
func WithDeepgramModel(model string) DeepgramOption {
	return func(d *Deepgram) {
		d.model = model
	}
}

// WithDeepgramBaseURL overrides the API endpoint, for tests.
func WithDeepgramBaseURL(baseURL string) DeepgramOption {
	return func(d *Deepgram) {
		d.baseURL = baseURL
	}
}

// WithDeepgramHTTPClient overrides the HTTP client.
func WithDeepgramHTTPClient(c *http.Client) DeepgramOption {
	return func(d *Deepgram) {
		d.client = c
	}
}

// Deepgram implements Provider backed by the Deepgram pre-recorded API.
type Deepgram struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewDeepgram creates a Deepgram provider. apiKey must be non-empty.
func NewDeepgram(apiKey string, opts ...DeepgramOption) (*Deepgram, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	d := &Deepgram{
		apiKey:  apiKey,
		model:   deepgramDefaultModel,
		baseURL: deepgramEndpoint,
		client:  &http.Client{Timeout: deepgramTimeout},
	}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

func (d *Deepgram) Name() string { return "deepgram" }

type deepgramResponse struct {
	Results struct {
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
		} `json:"utterances"`
	} `json:"results"`
}

// Transcribe posts the audio to the pre-recorded endpoint with utterance
// segmentation enabled and maps the utterances to segments.
func (d *Deepgram) Transcribe(ctx context.Context, audio io.Reader, mimeType string) ([]vtt.Segment, error) {
	u, err := url.Parse(d.baseURL)
	if err != nil {
		return nil, fmt.Errorf("deepgram: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", d.model)
	q.Set("utterances", "true")
	q.Set("smart_format", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), audio)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", mimeType)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("deepgram: unexpected status %d: %s", resp.StatusCode, body)
	}

	var parsed deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("deepgram: decode response: %w", err)
	}

	segments := make([]vtt.Segment, 0, len(parsed.Results.Utterances))
	for _, utt := range parsed.Results.Utterances {
		if utt.Transcript == "" {
			continue
		}
		segments = append(segments, vtt.Segment{
			StartSec: utt.Start,
			EndSec:   utt.End,
			Text:     utt.Transcript,
		})
	}
	return segments, nil
}
