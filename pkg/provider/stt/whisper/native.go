// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/voxlane/voxlane/pkg/audio"
	"github.com/voxlane/voxlane/pkg/provider/stt"
	"github.com/voxlane/voxlane/pkg/types"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// whisperSampleRate is the only sample rate whisper.cpp accepts. Captures at
// other rates are resampled before inference.
const whisperSampleRate = 16000

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup and
// shared across all calls; each Transcribe creates its own inference context,
// so concurrent calls do not interfere.
type NativeProvider struct {
	model    whisperlib.Model
	language string

	// sampleRate is the rate of PCM delivered to Transcribe.
	sampleRate int
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default BCP-47 language code for transcription
// (e.g., "vi", "en"). Defaults to "vi".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeSampleRate sets the PCM sample rate in Hz of the audio delivered
// to Transcribe. Captures at rates other than 16000 are resampled before
// inference. Defaults to 16000.
func WithNativeSampleRate(rate int) NativeOption {
	return func(p *NativeProvider) { p.sampleRate = rate }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:      model,
		language:   defaultLanguage,
		sampleRate: whisperSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe converts pcm to 16 kHz float32 samples, runs whisper.cpp
// inference in a fresh context, and returns the concatenated segment text.
func (p *NativeProvider) Transcribe(ctx context.Context, pcm []byte, language string) (types.Transcription, error) {
	if len(pcm) == 0 {
		return types.Transcription{}, fmt.Errorf("whisper: %w", stt.ErrNoAudio)
	}
	if err := ctx.Err(); err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	lang := language
	if lang == "" {
		lang = p.language
	}

	duration := audio.Duration(len(pcm), p.sampleRate, 1)

	if p.sampleRate != whisperSampleRate {
		pcm = audio.ResampleMono16(pcm, p.sampleRate, whisperSampleRate)
	}
	samples := audio.PCMToFloat32(pcm)

	// Each whisper context is NOT thread-safe, but the model can be shared
	// across goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return types.Transcription{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Transcription{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return types.Transcription{
		Text:     strings.Join(parts, " "),
		Language: lang,
		Duration: duration,
	}, nil
}
