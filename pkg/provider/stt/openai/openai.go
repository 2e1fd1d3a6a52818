// Package openai provides an OpenAI-backed STT provider using the
// POST /v1/audio/transcriptions endpoint. It implements the stt.Provider
// interface.
//
// Captured PCM is wrapped in a WAV container and uploaded as
// multipart/form-data, matching what the endpoint expects for raw microphone
// audio.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voxlane/voxlane/pkg/audio"
	"github.com/voxlane/voxlane/pkg/provider/stt"
	"github.com/voxlane/voxlane/pkg/types"
)

const (
	defaultBaseURL     = "https://api.openai.com"
	transcriptionsPath = "/v1/audio/transcriptions"
	defaultModel       = "whisper-1"
	defaultSampleRate  = 16000
	defaultTimeout     = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the transcription model (e.g., "whisper-1"). Defaults to
// "whisper-1".
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the default language hint sent when a request has none.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the PCM sample rate in Hz. This must match the capture
// format delivered to Transcribe. Defaults to 16000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
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

// Provider implements stt.Provider backed by the OpenAI transcription API.
// It is safe for concurrent use.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	baseURL    string
	httpClient *http.Client
}

// New creates a new OpenAI transcription Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		sampleRate: defaultSampleRate,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe wraps pcm in a WAV container and uploads it for transcription.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, language string) (types.Transcription, error) {
	if len(pcm) == 0 {
		return types.Transcription{}, fmt.Errorf("openai: %w", stt.ErrNoAudio)
	}

	lang := language
	if lang == "" {
		lang = p.language
	}

	wav := audio.EncodeWAV(pcm, p.sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return types.Transcription{}, fmt.Errorf("openai: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return types.Transcription{}, fmt.Errorf("openai: write wav data: %w", err)
	}
	if err := mw.WriteField("model", p.model); err != nil {
		return types.Transcription{}, fmt.Errorf("openai: write model field: %w", err)
	}
	if lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return types.Transcription{}, fmt.Errorf("openai: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.Transcription{}, fmt.Errorf("openai: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+transcriptionsPath, &body)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("openai: POST %s: %w", transcriptionsPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Transcription{}, fmt.Errorf("openai: POST %s returned status %d", transcriptionsPath, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("openai: read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return types.Transcription{}, fmt.Errorf("openai: parse JSON response: %w", err)
	}

	return types.Transcription{
		Text:     strings.TrimSpace(result.Text),
		Language: lang,
		Duration: audio.Duration(len(pcm), p.sampleRate, 1),
	}, nil
}
