package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anyllm", "mock"},
	"tts": {"elevenlabs", "openai", "coqui", "mock"},
	"stt": {"whisper", "whisper-native", "openai", "deepgram", "mock"},
}

// envPattern matches ${VAR} references in the raw YAML. Bare $VAR is left
// alone so prompts and voice IDs containing dollar signs survive expansion.
var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// ${VAR} references are expanded from the environment before decoding, so
// secrets such as API keys can stay out of the file. Absent keys keep the
// defaults from [Default]. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(data)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces every ${VAR} reference in data with the value of the VAR
// environment variable. References to unset variables are left verbatim so the
// resulting validation error names the missing variable instead of silently
// blanking the field.
func ExpandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(ref []byte) []byte {
		name := string(envPattern.FindSubmatch(ref)[1])
		if val, ok := os.LookupEnv(name); ok {
			return []byte(val)
		}
		return ref
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil {
		if tls.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when server.tls is set"))
		}
		if tls.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when server.tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("tts", cfg.Providers.TTSFallback.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)

	// Provider availability warnings. The gateway itself refuses to start
	// without all three slots, but validation alone only warns so partial
	// configs can still be loaded and inspected.
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; the gateway will refuse to start")
	}
	if cfg.Providers.TTS.Name == "" {
		slog.Warn("no TTS provider configured; the gateway will refuse to start")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("no STT provider configured; the gateway will refuse to start")
	}

	// API keys for hosted providers. The anyllm backends vary (some are local),
	// so a missing key there is only worth a warning.
	errs = append(errs, requireAPIKey("providers.llm", cfg.Providers.LLM)...)
	errs = append(errs, requireAPIKey("providers.tts", cfg.Providers.TTS)...)
	errs = append(errs, requireAPIKey("providers.tts_fallback", cfg.Providers.TTSFallback)...)
	errs = append(errs, requireAPIKey("providers.stt", cfg.Providers.STT)...)
	if cfg.Providers.LLM.Name == "anyllm" && cfg.Providers.LLM.APIKey == "" {
		slog.Warn("providers.llm.api_key is empty; the selected anyllm backend may require one")
	}

	// Chat
	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature %.2f is out of range [0, 2]", cfg.Chat.Temperature))
	}
	if cfg.Chat.HistoryTurns < 1 {
		errs = append(errs, fmt.Errorf("chat.history_turns %d is invalid; must be at least 1", cfg.Chat.HistoryTurns))
	}

	// Stream
	if cfg.Stream.PacingMS < 0 {
		errs = append(errs, fmt.Errorf("stream.pacing_ms %d is invalid; must be zero or positive", cfg.Stream.PacingMS))
	}
	if cfg.Stream.MaxConcurrentSynthesis < 1 {
		errs = append(errs, fmt.Errorf("stream.max_concurrent_synthesis %d is invalid; must be at least 1", cfg.Stream.MaxConcurrentSynthesis))
	}
	if cfg.Stream.SynthesisTimeoutS < 1 {
		errs = append(errs, fmt.Errorf("stream.synthesis_timeout_s %d is invalid; must be at least 1", cfg.Stream.SynthesisTimeoutS))
	}

	// Transcription
	if cfg.Transcription.Language == "" {
		errs = append(errs, errors.New("transcription.language is required"))
	}

	// Recording
	if cfg.Recording.MaxBytes < 1 {
		errs = append(errs, fmt.Errorf("recording.max_bytes %d is invalid; must be at least 1", cfg.Recording.MaxBytes))
	}

	// Voice presets
	presetsSeen := make(map[string]int, len(cfg.Voices))
	for i, v := range cfg.Voices {
		prefix := fmt.Sprintf("voices[%d]", i)
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := presetsSeen[v.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of voices[%d]", prefix, v.Name, prev))
			}
			presetsSeen[v.Name] = i
		}
		if v.VoiceID == "" {
			errs = append(errs, fmt.Errorf("%s.voice_id is required", prefix))
		}
	}

	// stream.voice ↔ preset cross-check. Not an error: synthesizers accept raw
	// voice IDs as well as preset names.
	if cfg.Stream.Voice != "" && len(cfg.Voices) > 0 {
		if _, ok := presetsSeen[cfg.Stream.Voice]; !ok {
			slog.Warn("stream.voice does not match any configured preset; it will be passed to the synthesizer as-is",
				"voice", cfg.Stream.Voice,
			)
		}
	}

	return errors.Join(errs...)
}

// hostedProviders lists provider names whose APIs reject unauthenticated
// requests, making an empty api_key a configuration error.
var hostedProviders = []string{"openai", "elevenlabs", "deepgram"}

// requireAPIKey returns an error when entry selects a hosted provider but
// carries no API key. An unexpanded ${VAR} reference also counts as missing,
// naming the absent environment variable.
func requireAPIKey(field string, entry ProviderEntry) []error {
	if entry.Name == "" || !slices.Contains(hostedProviders, entry.Name) {
		return nil
	}
	if entry.APIKey == "" {
		return []error{fmt.Errorf("%s.api_key is required when %s.name is %q", field, field, entry.Name)}
	}
	if ref := envPattern.FindString(entry.APIKey); ref != "" {
		return []error{fmt.Errorf("%s.api_key references unset environment variable %s", field, ref)}
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
