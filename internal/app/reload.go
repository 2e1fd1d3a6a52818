package app

import (
	"log/slog"
	"sync/atomic"

	"github.com/voxlane/voxlane/internal/config"
	"github.com/voxlane/voxlane/internal/transcript"
)

// applyReload reacts to a config file edit picked up by the watcher. Only
// changes that are safe without a restart are applied; provider and network
// changes are ignored until the next start.
func (a *App) applyReload(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Any() {
		return
	}

	if d.LogLevelChanged {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.HotwordsChanged {
		a.corrector.Swap(transcript.New(new.Transcription.Hotwords))
		slog.Info("hotword vocabulary replaced", "entries", len(new.Transcription.Hotwords))
	}

	// Chat and stream settings feed the session template; sessions created
	// after this point pick them up, live sessions keep what they have.
	if d.ChatChanged || d.StreamChanged {
		a.registry.UpdateConfig(a.sessionConfig(new))
		slog.Info("session defaults updated",
			"chat_changed", d.ChatChanged,
			"stream_changed", d.StreamChanged,
		)
	}
}

// swappableCorrector lets the hotword vocabulary be replaced at runtime while
// live sessions keep one stable [transcript.Corrector] reference.
type swappableCorrector struct {
	cur atomic.Pointer[transcript.HotwordCorrector]
}

var _ transcript.Corrector = (*swappableCorrector)(nil)

func newSwappableCorrector(c *transcript.HotwordCorrector) *swappableCorrector {
	s := &swappableCorrector{}
	s.cur.Store(c)
	return s
}

// Correct applies the current vocabulary.
func (s *swappableCorrector) Correct(text string) (string, []transcript.Correction) {
	return s.cur.Load().Correct(text)
}

// Swap replaces the vocabulary for all corrections from now on.
func (s *swappableCorrector) Swap(c *transcript.HotwordCorrector) {
	s.cur.Store(c)
}
