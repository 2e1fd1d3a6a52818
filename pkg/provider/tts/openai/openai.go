// Package openai provides an OpenAI-backed TTS provider using the
// POST /v1/audio/speech endpoint. It implements the tts.Provider interface.
//
// The speech endpoint has no continuity parameter, so Request.Context is
// ignored; consecutive clips rely on the model's own sentence-level prosody.
// Request.Voice must be one of the fixed OpenAI voice names (e.g., "alloy",
// "nova", "onyx"); an empty voice selects the configured default.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxlane/voxlane/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.openai.com"
	speechPath     = "/v1/audio/speech"
	defaultModel   = "tts-1"
	defaultVoice   = "alloy"
	defaultFormat  = "mp3"
	defaultTimeout = 30 * time.Second
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the OpenAI Provider.
type Option func(*Provider)

// WithModel sets the speech model (e.g., "tts-1", "tts-1-hd").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithVoice sets the default voice name. Defaults to "alloy".
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithResponseFormat sets the audio container format (e.g., "mp3", "opus",
// "pcm"). Defaults to "mp3".
func WithResponseFormat(format string) Option {
	return func(p *Provider) {
		p.format = format
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithBaseURL overrides the API base URL. Intended for tests and proxies.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// Provider implements tts.Provider backed by the OpenAI speech API.
// It is safe for concurrent use.
type Provider struct {
	apiKey     string
	model      string
	voice      string
	format     string
	baseURL    string
	httpClient *http.Client
}

// New creates a new OpenAI speech Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		voice:      defaultVoice,
		format:     defaultFormat,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// speechRequest is the JSON body sent to POST /v1/audio/speech.
type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format,omitempty"`
}

// Synthesize issues one speech request for req.Text and returns the full
// encoded clip.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}

	body := speechRequest{
		Model:          p.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: p.format,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal speech request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+speechPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("openai: create speech request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai: POST %s: %w", speechPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai: POST %s returned status %d", speechPath, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("openai: server returned an empty clip")
	}
	return audio, nil
}
