// SPDX-License-Identifier: MIT

package transcribe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/henteko/maycast-recorder-sub002/internal/vtt"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-2.0-flash"
	geminiTimeout      = 5 * time.Minute

	geminiPrompt = `Transcribe this audio recording. Respond with a JSON array only, ` +
		`one object per utterance, each with "start" and "end" in seconds (numbers) ` +
		`and "text" (string). Do not include any other output.`
)

// GeminiOption is a functional option for configuring the Gemini provider.
type GeminiOption func(*Gemini)

// WithGeminiModel sets the Gemini model name.
func WithGeminiModel(model string) GeminiOption {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

// WithGeminiBaseURL overrides the API endpoint, for tests.
func WithGeminiBaseURL(baseURL string) GeminiOption {
	return func(g *Gemini) {
		g.baseURL = baseURL
	}
}

// WithGeminiHTTPClient overrides the HTTP client.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(g *Gemini) {
		g.client = c
	}
}

// Gemini implements Provider via the Gemini generateContent API: the audio is
// inlined into the request and the model is asked for timed JSON segments.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewGemini creates a Gemini provider. apiKey must be non-empty.
func NewGemini(apiKey string, opts ...GeminiOption) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	g := &Gemini{
		apiKey:  apiKey,
		model:   geminiDefaultModel,
		baseURL: geminiBaseURL,
		client:  &http.Client{Timeout: geminiTimeout},
	}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

func (g *Gemini) Name() string { return "gemini" }

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		ResponseMIMEType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string        `json:"text,omitempty"`
	InlineData *geminiInline `json:"inlineData,omitempty"`
}

type geminiInline struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type geminiSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcribe inlines the audio into a generateContent call and parses the
// model's JSON answer into segments.
func (g *Gemini) Transcribe(ctx context.Context, audio io.Reader, mimeType string) ([]vtt.Segment, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return nil, fmt.Errorf("gemini: read audio: %w", err)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: geminiPrompt},
				{InlineData: &geminiInline{
					MIMEType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
	}
	reqBody.GenerationConfig.ResponseMIMEType = "application/json"

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, fmt.Errorf("gemini: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("gemini: unexpected status %d: %s", resp.StatusCode, body)
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("gemini: empty response")
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	var raw []geminiSegment
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("gemini: parse segments: %w", err)
	}

	segments := make([]vtt.Segment, 0, len(raw))
	for _, s := range raw {
		if s.Text == "" {
			continue
		}
		segments = append(segments, vtt.Segment{StartSec: s.Start, EndSec: s.End, Text: s.Text})
	}
	return segments, nil
}
