package resilience

import (
	"context"

	"github.com/voxlane/voxlane/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover from a
// primary speech backend to its configured fallback. Each backend has its own
// circuit breaker, so a backend that keeps failing stops being tried for
// every unit.
//
// A unit whose synthesis fails on every registered backend is reported as a
// single error to the caller, which drops that unit; later units still go
// through the full primary-then-fallback sequence.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional speech backend. Fallbacks are tried in
// registration order after the primary.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Backends returns the backend names in trial order.
func (f *TTSFallback) Backends() []string {
	return f.group.Names()
}

// Synthesize voices one unit using the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, req)
	})
}
