// Package config provides the configuration schema, loader, and provider registry
// for the voxlane voice gateway.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the voxlane server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to the corresponding [slog.Level]. Unrecognised values
// map to Info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for voxlane.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Chat          ChatConfig          `yaml:"chat"`
	Stream        StreamConfig        `yaml:"stream"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Recording     RecordingConfig     `yaml:"recording"`
	Voices        []VoicePreset       `yaml:"voices"`
}

// ServerConfig holds network and logging settings for the voxlane server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8000").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// AllowedOrigins lists host patterns permitted on cross-origin websocket
	// upgrades (e.g., "app.example.com"). Empty allows same-origin browsers
	// and non-browser clients only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallback optionally names a second synthesizer that is tried exactly
	// once when the primary fails or its circuit is open. Leave the name empty
	// to run without a fallback.
	TTSFallback ProviderEntry `yaml:"tts_fallback"`

	STT ProviderEntry `yaml:"stt"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "elevenlabs", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// Values of the form ${VAR} are expanded from the environment by the loader.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o-mini",
	// "eleven_multilingual_v2", "gemini-1.5-flash").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// ChatConfig shapes the text side of every conversation: the persona prompt,
// sampling temperature, and how many turns of history each session retains.
type ChatConfig struct {
	// SystemPrompt is the persona instruction sent with every completion request.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature is the LLM sampling temperature in the range [0, 2].
	Temperature float64 `yaml:"temperature"`

	// HistoryTurns is the per-session conversation log capacity. Oldest turns
	// are evicted first once the log is full. Must be at least 1.
	HistoryTurns int `yaml:"history_turns"`
}

// StreamConfig tunes the sentence-streaming response cycle.
type StreamConfig struct {
	// PacingMS is the delay in milliseconds between consecutive audio
	// deliveries on a session. Zero disables pacing.
	PacingMS int `yaml:"pacing_ms"`

	// MaxConcurrentSynthesis caps how many sentence units may be in flight
	// with the synthesizer at once per session.
	MaxConcurrentSynthesis int `yaml:"max_concurrent_synthesis"`

	// SynthesisTimeoutS bounds each synthesis attempt in seconds. A timed-out
	// attempt counts as a synthesis failure for that unit.
	SynthesisTimeoutS int `yaml:"synthesis_timeout_s"`

	// Voice names the preset used for synthesis. Empty selects the
	// synthesizer's default voice.
	Voice string `yaml:"voice"`
}

// TranscriptionConfig tunes the speech-to-text path.
type TranscriptionConfig struct {
	// Language is the hint passed to the transcriber on every call (e.g., "vi").
	Language string `yaml:"language"`

	// Hotwords lists domain vocabulary (names, jargon) that transcripts are
	// phonetically corrected against. Empty disables correction.
	Hotwords []string `yaml:"hotwords"`
}

// RecordingConfig bounds the per-session recording buffer.
type RecordingConfig struct {
	// MaxBytes is the recording buffer capacity. Chunks that would push the
	// buffer past this ceiling are rejected whole.
	MaxBytes int `yaml:"max_bytes"`
}

// VoicePreset maps a friendly voice name to a provider-specific voice ID.
type VoicePreset struct {
	// Name is the preset's friendly identifier (e.g., "rachel"), referenced by
	// stream.voice.
	Name string `yaml:"name"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Provider names the synthesizer this preset belongs to. Informational;
	// presets are handed to whichever synthesizer is configured.
	Provider string `yaml:"provider"`
}

// Default returns a [Config] populated with the documented defaults. The
// loader decodes YAML over this struct, so absent keys keep their default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8000",
			LogLevel:   LogInfo,
		},
		Chat: ChatConfig{
			Temperature:  0.7,
			HistoryTurns: 10,
		},
		Stream: StreamConfig{
			PacingMS:               100,
			MaxConcurrentSynthesis: 8,
			SynthesisTimeoutS:      30,
		},
		Transcription: TranscriptionConfig{
			Language: "vi",
		},
		Recording: RecordingConfig{
			MaxBytes: 1 << 20,
		},
	}
}

// PacingInterval returns the configured pacing delay as a [time.Duration].
func (s StreamConfig) PacingInterval() time.Duration {
	return time.Duration(s.PacingMS) * time.Millisecond
}

// SynthesisTimeout returns the configured per-attempt synthesis timeout.
func (s StreamConfig) SynthesisTimeout() time.Duration {
	return time.Duration(s.SynthesisTimeoutS) * time.Second
}

// PresetMap converts the voice preset list into the name → voice ID map
// consumed by synthesizer constructors.
func (c *Config) PresetMap() map[string]string {
	if len(c.Voices) == 0 {
		return nil
	}
	m := make(map[string]string, len(c.Voices))
	for _, v := range c.Voices {
		m[v.Name] = v.VoiceID
	}
	return m
}
