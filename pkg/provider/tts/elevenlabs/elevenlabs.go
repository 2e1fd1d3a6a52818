// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs HTTP synthesis API. It implements the tts.Provider interface.
//
// Each Synthesize call issues one POST /v1/text-to-speech/{voice_id} request
// and returns the complete encoded clip. The request forwards Request.Context
// as the previous_text continuity hint so that independently synthesised units
// of the same response keep a consistent prosody.
//
// Voice presets map friendly names (e.g., "narrator") to ElevenLabs voice IDs.
// Request.Voice is resolved against the preset table first; an unknown name is
// passed through as a literal voice ID.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/voxlane/voxlane/pkg/provider/tts"
	"github.com/voxlane/voxlane/pkg/types"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	ttsPathFmt       = "/v1/text-to-speech/%s"
	voicesPath       = "/v1/voices"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"
	defaultTimeout   = 30 * time.Second

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// ─────────────────────────────── Options ────────────────────────────────────

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5",
// "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format (e.g., "mp3_44100_128",
// "pcm_16000").
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithPresets installs the preset table mapping friendly voice names to
// ElevenLabs voice IDs. A nil map leaves the table empty.
func WithPresets(presets map[string]string) Option {
	return func(p *Provider) {
		p.presets = presets
	}
}

// WithVoiceSettings overrides the stability and similarity-boost values sent
// with every synthesis request. Defaults are 0.5 and 0.75.
func WithVoiceSettings(stability, similarityBoost float64) Option {
	return func(p *Provider) {
		p.stability = stability
		p.similarityBoost = similarityBoost
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

// ─────────────────────────────── Provider ───────────────────────────────────

// Provider implements tts.Provider backed by the ElevenLabs synthesis API.
// It is safe for concurrent use; multiple Synthesize calls may run in parallel.
type Provider struct {
	apiKey          string
	model           string
	outputFormat    string
	defaultVoiceID  string
	presets         map[string]string
	baseURL         string
	stability       float64
	similarityBoost float64
	httpClient      *http.Client
}

// New creates a new ElevenLabs Provider. apiKey and defaultVoiceID must be
// non-empty; defaultVoiceID is used whenever a request does not name a voice.
func New(apiKey, defaultVoiceID string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if defaultVoiceID == "" {
		return nil, errors.New("elevenlabs: defaultVoiceID must not be empty")
	}
	p := &Provider{
		apiKey:          apiKey,
		model:           defaultModel,
		outputFormat:    defaultOutputFmt,
		defaultVoiceID:  defaultVoiceID,
		baseURL:         defaultBaseURL,
		stability:       defaultStability,
		similarityBoost: defaultSimilarityBoost,
		httpClient:      &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ─────────────────────────── Wire message types ─────────────────────────────

// voiceSettings mirrors the voice_settings object of the synthesis request.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// synthesisRequest is the JSON body sent to POST /v1/text-to-speech/{voice_id}.
// PreviousText carries the continuity hint; the API conditions prosody on it.
type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
	PreviousText  string        `json:"previous_text,omitempty"`
}

// voicesResponse is the JSON body returned by GET /v1/voices.
type voicesResponse struct {
	Voices []struct {
		VoiceID  string `json:"voice_id"`
		Name     string `json:"name"`
		Category string `json:"category"`
	} `json:"voices"`
}

// ─────────────────────────────── Synthesize ─────────────────────────────────

// Synthesize issues one synthesis request for req.Text and returns the full
// encoded clip. req.Context is forwarded as previous_text. The voice is
// resolved via the preset table; empty selects the default voice.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}

	voiceID := p.resolveVoice(req.Voice)

	body := synthesisRequest{
		Text:    req.Text,
		ModelID: p.model,
		VoiceSettings: voiceSettings{
			Stability:       p.stability,
			SimilarityBoost: p.similarityBoost,
		},
		PreviousText: req.Context,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: marshal synthesis request: %w", err)
	}

	endpoint := p.baseURL + fmt.Sprintf(ttsPathFmt, url.PathEscape(voiceID)) +
		"?output_format=" + url.QueryEscape(p.outputFormat)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create synthesis request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/*")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: POST text-to-speech: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: POST text-to-speech returned status %d", resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("elevenlabs: server returned an empty clip")
	}
	return audio, nil
}

// resolveVoice maps a request voice to an ElevenLabs voice ID. Preset names
// take precedence; anything else is treated as a literal voice ID.
func (p *Provider) resolveVoice(voice string) string {
	if voice == "" {
		return p.defaultVoiceID
	}
	if id, ok := p.presets[voice]; ok {
		return id
	}
	return voice
}

// Presets returns the configured preset names in sorted order.
func (p *Provider) Presets() []string {
	names := make([]string, 0, len(p.presets))
	for name := range p.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ─────────────────────────────── ListVoices ─────────────────────────────────

// ListVoices retrieves the voices available to the configured API key via
// GET /v1/voices. The result is independent of the local preset table.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoicePreset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+voicesPath, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: create list-voices request: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: GET %s: %w", voicesPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: GET %s returned status %d", voicesPath, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read voices response: %w", err)
	}
	return parseVoicesResponse(data)
}

// parseVoicesResponse decodes a GET /v1/voices body into presets.
func parseVoicesResponse(data []byte) ([]types.VoicePreset, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: parse voices response: %w", err)
	}
	presets := make([]types.VoicePreset, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		presets = append(presets, types.VoicePreset{
			Name:     v.Name,
			VoiceID:  v.VoiceID,
			Provider: "elevenlabs",
		})
	}
	return presets, nil
}
