// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to feed controlled transcriptions to consumers and to inspect
// exactly which audio bytes and language hints were submitted.
//
// Example:
//
//	p := &mock.Provider{
//	    TranscribeResult: types.Transcription{Text: "hello"},
//	}
//	tr, _ := p.Transcribe(ctx, pcm, "en")
package mock

import (
	"context"
	"sync"

	"github.com/voxlane/voxlane/pkg/provider/stt"
	"github.com/voxlane/voxlane/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context
	// Audio is a copy of the audio bytes passed to Transcribe.
	Audio []byte
	// Language is the language hint passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// TranscribeResult is returned by every successful call.
	TranscribeResult types.Transcription

	// TranscribeErr, if non-nil, is returned by every call.
	TranscribeErr error

	// --- Call records ---

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, language string) (types.Transcription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Ctx: ctx, Audio: cp, Language: language})
	if p.TranscribeErr != nil {
		return types.Transcription{}, p.TranscribeErr
	}
	return p.TranscribeResult, nil
}

// Calls returns a copy of all recorded Transcribe calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(calls, p.TranscribeCalls)
	return calls
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
