// Package coqui provides a TTS provider backed by a self-hosted Coqui TTS
// server. It implements the tts.Provider interface.
//
// Two server APIs are supported:
//
//   - APIModeStandard (default): the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). One clip per GET /api/tts call with URL
//     query parameters.
//
//   - APIModeXTTS: the Coqui XTTS v2 API server. One clip per
//     POST /tts_to_audio/ call with a JSON body; Request.Voice names the
//     speaker_wav reference.
//
// Both servers are batch-mode HTTP backends with no continuity parameter, so
// Request.Context is ignored. Clips are returned as complete WAV files; the
// gateway delivers them whole rather than splicing PCM, so the header stays.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxlane/voxlane/pkg/provider/tts"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	xttsSpeechPath     = "/tts_to_audio/"
	standardSpeechPath = "/api/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// APIMode selects which Coqui server API the provider targets.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server (e.g., "en", "vi").
// Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithVoice sets the default speaker used when a request names none. In XTTS
// mode this is the speaker_wav reference; in standard mode the speaker_id of
// a multi-speaker model.
func WithVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// Provider implements tts.Provider backed by a locally-running Coqui TTS
// server. It is safe for concurrent use; the pipeline keeps several clips in
// flight at once.
type Provider struct {
	serverURL  string
	language   string
	voice      string
	apiMode    APIMode
	httpClient *http.Client
}

// New creates a Coqui Provider targeting the server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize issues one synthesis call for req.Text and returns the complete
// WAV clip.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, tts.ErrEmptyText
	}

	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}

	if p.apiMode == APIModeXTTS {
		return p.synthesizeXTTS(ctx, req.Text, voice)
	}
	return p.synthesizeStandard(ctx, req.Text, voice)
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call. XTTS always
// needs a speaker reference, so an empty voice is rejected up front.
func (p *Provider) synthesizeXTTS(ctx context.Context, text, voice string) ([]byte, error) {
	if voice == "" {
		return nil, errors.New("coqui: a voice is required in XTTS mode")
	}

	body := xttsRequest{
		Text:       text,
		SpeakerWav: voice,
		Language:   p.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal speech request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsSpeechPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create speech request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	return p.do(httpReq, xttsSpeechPath)
}

// synthesizeStandard performs a single GET /api/tts call with query
// parameters. Single-speaker models need no voice at all.
func (p *Provider) synthesizeStandard(ctx context.Context, text, voice string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	if voice != "" {
		params.Set("speaker_id", voice)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+standardSpeechPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create speech request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/wav")

	return p.do(httpReq, standardSpeechPath)
}

// do executes one synthesis request and validates the clip that comes back.
func (p *Provider) do(req *http.Request, path string) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, path, resp.StatusCode)
	}

	clip, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read audio response: %w", err)
	}
	if len(clip) == 0 {
		return nil, errors.New("coqui: server returned an empty clip")
	}
	return clip, nil
}
