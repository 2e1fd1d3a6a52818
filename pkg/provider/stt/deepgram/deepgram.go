// Package deepgram provides a Deepgram-backed STT provider using the
// pre-recorded transcription API (POST /v1/listen). It implements the
// stt.Provider interface.
//
// Captured PCM is uploaded raw with encoding/sample-rate query parameters, so
// no container framing is needed. One utterance per call; the gateway submits
// the whole recording once the client stops.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/voxlane/voxlane/pkg/audio"
	"github.com/voxlane/voxlane/pkg/provider/stt"
	"github.com/voxlane/voxlane/pkg/types"
)

const (
	defaultBaseURL    = "https://api.deepgram.com"
	listenPath        = "/v1/listen"
	defaultModel      = "nova-3"
	defaultSampleRate = 16000
	defaultTimeout    = 30 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g., "nova-3", "base"). Defaults to
// "nova-3".
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

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
// It is safe for concurrent use.
type Provider struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
	baseURL    string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
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

// listenResponse is the subset of the Deepgram response the provider reads.
type listenResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe uploads pcm as raw linear16 audio and returns the transcription.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, language string) (types.Transcription, error) {
	if len(pcm) == 0 {
		return types.Transcription{}, fmt.Errorf("deepgram: %w", stt.ErrNoAudio)
	}

	lang := language
	if lang == "" {
		lang = p.language
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.listenURL(lang), bytes.NewReader(pcm))
	if err != nil {
		return types.Transcription{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("deepgram: POST %s: %w", listenPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Transcription{}, fmt.Errorf("deepgram: POST %s returned status %d", listenPath, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcription{}, fmt.Errorf("deepgram: read response body: %w", err)
	}

	var result listenResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return types.Transcription{}, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return types.Transcription{}, errors.New("deepgram: response carries no transcript")
	}

	return types.Transcription{
		Text:     strings.TrimSpace(result.Results.Channels[0].Alternatives[0].Transcript),
		Language: lang,
		Duration: audio.Duration(len(pcm), p.sampleRate, 1),
	}, nil
}

// listenURL builds the transcription endpoint URL with the audio format and
// model parameters.
func (p *Provider) listenURL(lang string) string {
	q := url.Values{}
	q.Set("model", p.model)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(p.sampleRate))
	if lang != "" {
		q.Set("language", lang)
	}
	return p.baseURL + listenPath + "?" + q.Encode()
}
