// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider transcribes one complete utterance per call: the gateway
// buffers microphone audio while the client records and submits the whole
// capture once recording stops. Audio is raw 16-bit signed little-endian PCM
// unless a provider documents otherwise; the sample rate is part of each
// provider's configuration.
package stt

import (
	"context"
	"errors"

	"github.com/voxlane/voxlane/pkg/types"
)

// ErrNoAudio is returned when a transcription request carries no audio bytes.
var ErrNoAudio = errors.New("stt: no audio to transcribe")

// Provider is the abstraction over any STT backend.
//
// Transcribe submits one utterance and returns its transcription. language is
// a BCP-47 hint (e.g., "vi", "en"); an empty string falls back to the
// provider's configured default, or auto-detection where the backend supports
// it. Implementations must be safe for concurrent use.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (types.Transcription, error)
}
