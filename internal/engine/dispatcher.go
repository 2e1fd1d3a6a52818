package engine

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/voxlane/voxlane/internal/observe"
	"github.com/voxlane/voxlane/pkg/provider/tts"
)

const (
	defaultSynthesisTimeout = 30 * time.Second
	defaultMaxConcurrent    = 8

	// contextWindowUnits is how many preceding units' text travels with each
	// synthesis request as a prosody continuity cue.
	contextWindowUnits = 2
)

// DispatcherConfig carries the knobs for a [Dispatcher]. Zero values fall
// back to the defaults: 30s per-unit timeout, 8 concurrent synthesis calls,
// the backend's default voice.
type DispatcherConfig struct {
	// Voice names the preset passed on every synthesis request.
	Voice string

	// Timeout bounds one unit's synthesis end to end, fallback attempts
	// included. A timed-out unit is a failed unit.
	Timeout time.Duration

	// MaxConcurrent caps outstanding synthesis calls for this dispatcher.
	MaxConcurrent int64

	// Metrics receives dispatch and synthesis recordings. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Dispatcher launches one synthesis goroutine per speakable unit and pushes
// the outcome into a [DeliveryQueue]. Dispatch never blocks the caller: the
// concurrency cap is acquired inside the goroutine, so a saturated backend
// delays synthesis, not text streaming.
//
// Dispatch and Dispatched must be called from a single goroutine (the
// streaming loop); the spawned goroutines and the queue handle their own
// synchronisation. Create one Dispatcher per response cycle.
type Dispatcher struct {
	synth   tts.Provider
	queue   *DeliveryQueue
	sem     *semaphore.Weighted
	timeout time.Duration
	voice   string
	metrics *observe.Metrics

	window []string
	count  int
	wg     sync.WaitGroup
}

// NewDispatcher returns a Dispatcher feeding queue with results from synth.
func NewDispatcher(synth tts.Provider, queue *DeliveryQueue, cfg DispatcherConfig) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSynthesisTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Dispatcher{
		synth:   synth,
		queue:   queue,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		timeout: cfg.Timeout,
		voice:   cfg.Voice,
		metrics: cfg.Metrics,
	}
}

// Dispatch starts synthesizing unit in its own goroutine and returns
// immediately. The request carries the text of up to the two units dispatched
// before this one; an empty context never blocks or fails a dispatch. Every
// dispatched unit eventually pushes exactly one [Result], so a queue sealed
// at [Dispatcher.Dispatched] always drains.
func (d *Dispatcher) Dispatch(ctx context.Context, unit Unit) {
	req := tts.Request{
		Text:    unit.Text,
		Context: strings.Join(d.window, " "),
		Voice:   d.voice,
	}
	d.window = append(d.window, unit.Text)
	if len(d.window) > contextWindowUnits {
		d.window = d.window[len(d.window)-contextWindowUnits:]
	}
	d.count++
	d.metrics.UnitsDispatched.Add(ctx, 1)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if err := d.sem.Acquire(ctx, 1); err != nil {
			d.metrics.UnitsFailed.Add(ctx, 1)
			d.queue.Push(Result{Ordinal: unit.Ordinal, Err: err})
			return
		}
		defer d.sem.Release(1)

		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		start := time.Now()
		clip, err := d.synth.Synthesize(sctx, req)
		d.metrics.RecordSynthesis(ctx, time.Since(start).Seconds(), err == nil)
		if err != nil {
			slog.Warn("unit synthesis failed, dropping audio",
				"ordinal", unit.Ordinal,
				"error", err)
			d.queue.Push(Result{Ordinal: unit.Ordinal, Err: err})
			return
		}
		d.queue.Push(Result{Ordinal: unit.Ordinal, Audio: clip})
	}()
}

// Dispatched returns the number of units dispatched so far.
func (d *Dispatcher) Dispatched() int {
	return d.count
}

// Wait blocks until every dispatched synthesis goroutine has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
