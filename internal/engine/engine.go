// Package engine turns a streamed model reply into paced, ordered speech.
//
// One response cycle looks like this:
//
//  1. Model fragments arrive on a channel and are forwarded to the transport
//     verbatim, in arrival order, as text deltas.
//  2. The [Segmenter] cuts the fragment stream into speakable units at
//     terminal punctuation, assigning each a zero-based ordinal.
//  3. The [Dispatcher] synthesizes every unit concurrently, bounded by a
//     semaphore, without ever blocking the text path.
//  4. The [DeliveryQueue] reorders completed clips so the delivery goroutine
//     emits audio in ordinal order, with a short pacing delay between
//     consecutive clips so the client never plays two at once.
//
// Synthesis failures are per-unit: the clip is dropped, the text for it was
// already delivered, and the response degrades to text-only for that unit.
// A model stream failure aborts the whole cycle; audio synthesized so far is
// abandoned and the accumulated text is discarded by the caller.
//
// This package lives under internal/ because it encapsulates
// application-private processing logic and is not intended to be imported by
// external code.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/voxlane/voxlane/internal/observe"
	"github.com/voxlane/voxlane/pkg/provider/llm"
	"github.com/voxlane/voxlane/pkg/provider/tts"
)

// defaultPacing is the gap between consecutive audio emissions.
const defaultPacing = 100 * time.Millisecond

// Sink receives the ordered output events of one response cycle. The session
// layer implements it over the websocket transport. Both methods are called
// from the cycle's own goroutines; implementations must serialize their own
// writes.
type Sink interface {
	// Text delivers one model fragment, in arrival order.
	Text(ctx context.Context, fragment string) error

	// Audio delivers one synthesized clip, in unit ordinal order.
	Audio(ctx context.Context, clip []byte) error
}

// Option is a functional option for configuring a [Pipeline].
type Option func(*Pipeline)

// WithPacing sets the delay between consecutive audio emissions.
// Default: 100ms.
func WithPacing(d time.Duration) Option {
	return func(p *Pipeline) {
		p.pacing = d
	}
}

// WithSynthesisTimeout bounds one unit's synthesis end to end. A timed-out
// unit is treated as a failed unit. Default: 30s.
func WithSynthesisTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithMaxConcurrent caps outstanding synthesis calls per response cycle.
// Default: 8.
func WithMaxConcurrent(n int64) Option {
	return func(p *Pipeline) {
		p.maxConcurrent = n
	}
}

// WithVoice names the synthesis voice preset used for every unit.
func WithVoice(name string) Option {
	return func(p *Pipeline) {
		p.voice = name
	}
}

// WithMetrics sets the metrics instance the pipeline records to.
// Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// Pipeline runs response cycles against a fixed synthesizer. It holds no
// per-cycle state, so one Pipeline serves any number of sequential cycles and
// is safe for concurrent use across sessions.
type Pipeline struct {
	synth         tts.Provider
	pacing        time.Duration
	timeout       time.Duration
	maxConcurrent int64
	voice         string
	metrics       *observe.Metrics
}

// New returns a Pipeline synthesizing with synth. Pass the resilience
// fallback wrapper as synth to get one fallback attempt per unit.
func New(synth tts.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		synth:  synth,
		pacing: defaultPacing,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Respond drives one full response cycle: it consumes fragments until the
// channel closes, forwarding text and dispatching synthesis as it goes, then
// waits for all audio to be delivered. It returns the concatenation of every
// fragment, which the caller records as the assistant turn.
//
// A fragment carrying a non-nil Err aborts the cycle, as does cancellation of
// ctx or a sink failure; the error is returned and the partial text is not.
func (p *Pipeline) Respond(ctx context.Context, fragments <-chan llm.Chunk, sink Sink) (string, error) {
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := NewDeliveryQueue()
	disp := NewDispatcher(p.synth, queue, DispatcherConfig{
		Voice:         p.voice,
		Timeout:       p.timeout,
		MaxConcurrent: p.maxConcurrent,
		Metrics:       p.metrics,
	})
	seg := NewSegmenter()

	deliverDone := make(chan error, 1)
	go func() {
		deliverDone <- p.deliver(cctx, queue, sink)
	}()

	var full strings.Builder
	var streamErr error

stream:
	for {
		select {
		case <-cctx.Done():
			streamErr = cctx.Err()
			break stream
		case chunk, ok := <-fragments:
			if !ok {
				break stream
			}
			if chunk.Err != nil {
				streamErr = chunk.Err
				break stream
			}
			if chunk.Text == "" {
				continue
			}
			full.WriteString(chunk.Text)
			if err := sink.Text(cctx, chunk.Text); err != nil {
				streamErr = err
				break stream
			}
			for _, u := range seg.Feed(chunk.Text) {
				disp.Dispatch(cctx, u)
			}
		}
	}

	if streamErr != nil {
		// Abandon outstanding synthesis and let the provider's stream
		// goroutine run out.
		go drainChunks(fragments)
		cancel()
		queue.Seal(disp.Dispatched())
		<-deliverDone
		disp.Wait()
		return "", fmt.Errorf("engine: response stream aborted: %w", streamErr)
	}

	if u, ok := seg.Flush(); ok {
		disp.Dispatch(cctx, u)
	}
	queue.Seal(disp.Dispatched())

	err := <-deliverDone
	disp.Wait()
	if err != nil {
		return "", fmt.Errorf("engine: audio delivery failed: %w", err)
	}
	return full.String(), nil
}

// deliver drains the queue in ordinal order, skipping failed units, and emits
// each clip to the sink with the pacing gap between consecutive emissions.
// The first clip goes out immediately.
func (p *Pipeline) deliver(ctx context.Context, queue *DeliveryQueue, sink Sink) error {
	delivered := false
	for {
		res, err := queue.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrDrained) {
				return nil
			}
			return err
		}
		if res.Err != nil || len(res.Audio) == 0 {
			continue
		}
		if delivered {
			select {
			case <-time.After(p.pacing):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := sink.Audio(ctx, res.Audio); err != nil {
			return err
		}
		p.metrics.AudioBytesOut.Add(ctx, int64(len(res.Audio)))
		delivered = true
	}
}

// drainChunks discards the rest of an abandoned fragment stream so the
// provider goroutine feeding it can exit.
func drainChunks(ch <-chan llm.Chunk) {
	for range ch {
	}
}
