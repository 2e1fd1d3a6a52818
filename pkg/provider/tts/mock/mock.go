// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled clips to consumers and to verify the text,
// continuity context, and voice passed to the backend. When no result is
// configured, Synthesize returns "voiced:" + the request text, which lets
// ordering tests identify each clip by content.
//
// Example:
//
//	p := &mock.Provider{SynthesizeErr: errors.New("backend down")}
//	_, err := p.Synthesize(ctx, tts.Request{Text: "Hello."})
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/voxlane/voxlane/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeResult, if non-nil, is returned by every successful call.
	// When nil (and SynthesizeFn is nil), each call returns
	// []byte("voiced:" + req.Text).
	SynthesizeResult []byte

	// SynthesizeErr, if non-nil, is returned by every call.
	SynthesizeErr error

	// SynthesizeFn, if non-nil, overrides SynthesizeResult and SynthesizeErr.
	// It is invoked once per call with the request.
	SynthesizeFn func(req tts.Request) ([]byte, error)

	// SynthesizeDelay simulates backend latency before each call completes.
	// The delay respects ctx cancellation.
	SynthesizeDelay time.Duration

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize records the call, waits SynthesizeDelay, and returns the
// configured result.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	result := p.SynthesizeResult
	err := p.SynthesizeErr
	fn := p.SynthesizeFn
	delay := p.SynthesizeDelay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if fn != nil {
		return fn(req)
	}
	if err != nil {
		return nil, err
	}
	if result != nil {
		cp := make([]byte, len(result))
		copy(cp, result)
		return cp, nil
	}
	return []byte("voiced:" + req.Text), nil
}

// Calls returns a copy of all recorded Synthesize calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	calls := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(calls, p.SynthesizeCalls)
	return calls
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
