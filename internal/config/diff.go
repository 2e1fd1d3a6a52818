package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// network changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ChatChanged is true when the system prompt, temperature, or history
	// capacity changed. Applies to the next completion request; running
	// streams keep the values they started with.
	ChatChanged bool

	// HotwordsChanged is true when the transcript correction vocabulary
	// changed.
	HotwordsChanged bool

	// StreamChanged is true when pacing, concurrency, timeout, or the voice
	// preset selection changed. Applies to sessions created after the reload.
	StreamChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.ChatChanged || d.HotwordsChanged || d.StreamChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Chat != new.Chat {
		d.ChatChanged = true
	}

	if !slices.Equal(old.Transcription.Hotwords, new.Transcription.Hotwords) {
		d.HotwordsChanged = true
	}

	if old.Stream != new.Stream {
		d.StreamChanged = true
	}

	return d
}
