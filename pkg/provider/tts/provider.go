// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider turns one sentence-sized unit of text into a complete encoded
// audio clip. The voice pipeline calls Synthesize once per unit and keeps
// several units in flight concurrently, so implementations must be safe for
// concurrent use. Request.Context carries the tail of the units voiced before
// the current one; backends with prosody-continuity support forward it so that
// consecutive clips read as one utterance.
package tts

import (
	"context"
	"errors"
)

// ErrEmptyText is returned when a synthesis request carries no speakable text.
var ErrEmptyText = errors.New("tts: request text is empty")

// Request describes a single synthesis call.
type Request struct {
	// Text is the unit to voice. It must contain at least one non-whitespace
	// character.
	Text string

	// Context is the concatenated text of the units dispatched immediately
	// before this one, oldest first. Backends without a continuity mechanism
	// ignore it.
	Context string

	// Voice selects a configured preset name or a backend-native voice ID.
	// An empty string selects the provider's default voice.
	Voice string
}

// Provider is the abstraction over any TTS backend.
//
// Synthesize returns the complete encoded clip for req, or an error if the
// backend could not produce one. Implementations must honour ctx cancellation
// mid-request and must be safe for concurrent use; the pipeline dispatches
// several units at once.
type Provider interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}
