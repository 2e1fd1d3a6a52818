// Package types defines the shared types used across all Voxlane packages.
//
// These types form the lingua franca between providers, the streaming engine,
// the conversation log, and the session layer. They are intentionally minimal —
// each package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser marks a turn originating from the connected client.
	RoleUser Role = "user"

	// RoleAssistant marks a turn produced by the language model.
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the permitted roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn is one conversational exchange entry: who said it and what was said.
// Turns are immutable once created and are evicted from history only by
// capacity pressure, never rewritten.
type Turn struct {
	// Role is the author of the turn.
	Role Role

	// Text is the full turn content. Always non-empty.
	Text string
}

// Transcription is the result of running raw audio through a speech-to-text
// provider.
type Transcription struct {
	// Text is the transcribed speech content, whitespace-trimmed.
	Text string

	// Language is the language the provider detected or was told to assume
	// (BCP-47-ish short code, e.g. "vi", "en").
	Language string

	// Duration is the length of the transcribed audio, when the provider
	// reports it. Zero otherwise.
	Duration time.Duration
}

// VoicePreset names a synthesizer voice configuration. Presets are declared in
// config and resolved by each TTS provider to its backend-specific voice ID.
type VoicePreset struct {
	// Name is the preset key referenced by config (e.g. "narrator").
	Name string

	// VoiceID is the provider-specific voice identifier.
	VoiceID string

	// Provider identifies which TTS provider this preset belongs to. Empty
	// means the preset applies to whichever provider is active.
	Provider string
}
