// Package app wires all voxlane subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until its context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithMetrics,
// WithChecker, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"github.com/voxlane/voxlane/internal/config"
	"github.com/voxlane/voxlane/internal/engine"
	"github.com/voxlane/voxlane/internal/gateway"
	"github.com/voxlane/voxlane/internal/health"
	"github.com/voxlane/voxlane/internal/observe"
	"github.com/voxlane/voxlane/internal/resilience"
	"github.com/voxlane/voxlane/internal/session"
	"github.com/voxlane/voxlane/internal/transcript"
	"github.com/voxlane/voxlane/pkg/provider/llm"
	"github.com/voxlane/voxlane/pkg/provider/stt"
	"github.com/voxlane/voxlane/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Populated by main
// via the config registry.
type Providers struct {
	LLM llm.Provider
	TTS tts.Provider

	// TTSFallback is an optional backup speech backend. When set, the
	// pipeline fails over to it whenever the primary synthesizer errors or
	// its circuit breaker is open.
	TTSFallback tts.Provider

	STT stt.Provider
}

// App owns all subsystem lifetimes and serves the voxlane gateway.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics   *observe.Metrics
	corrector *swappableCorrector
	registry  *session.Registry
	gateway   *gateway.Gateway
	server    *http.Server
	watcher   *config.Watcher
	logLevel  *slog.LevelVar
	checkers  []health.Checker

	reloadPath string
	watchOpts  []config.WatcherOption

	// addr holds the bound listen address once Run has opened the listener.
	addr atomic.Value

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics injects a metrics set instead of building one from the global
// meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel hands the application the level var behind the process logger
// so configuration reloads can adjust verbosity at runtime.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithChecker registers an extra readiness check served on /readyz.
func WithChecker(c health.Checker) Option {
	return func(a *App) { a.checkers = append(a.checkers, c) }
}

// WithConfigReload watches path for edits and applies the safe subset of
// changes — log level, chat settings, hotword vocabulary, stream tuning —
// without a restart. Provider and network changes still require one.
func WithConfigReload(path string, opts ...config.WatcherOption) Option {
	return func(a *App) {
		a.reloadPath = path
		a.watchOpts = opts
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main (populated via the config registry); all three slots are
// required. Use Option functions to inject test doubles for any subsystem.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	switch {
	case providers.LLM == nil:
		return nil, errors.New("app: an llm provider is required")
	case providers.TTS == nil:
		return nil, errors.New("app: a tts provider is required")
	case providers.STT == nil:
		return nil, errors.New("app: an stt provider is required")
	}

	if a.logLevel == nil {
		a.logLevel = new(slog.LevelVar)
		a.logLevel.Set(cfg.Server.LogLevel.Level())
	}

	// ── 1. Metrics ───────────────────────────────────────────────────────
	if a.metrics == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.metrics = m
	}

	// ── 2. Transcript corrector ──────────────────────────────────────────
	a.corrector = newSwappableCorrector(transcript.New(cfg.Transcription.Hotwords))

	// ── 3. Session registry ──────────────────────────────────────────────
	a.registry = session.NewRegistry(a.sessionConfig(cfg))
	a.closers = append(a.closers, func() error {
		a.registry.CloseAll()
		return nil
	})

	// ── 4. Websocket gateway + HTTP server ───────────────────────────────
	a.gateway = gateway.New(gateway.Config{
		Registry:       a.registry,
		Metrics:        a.metrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── 5. Config watcher ────────────────────────────────────────────────
	// Started last so a reload never observes a half-built App.
	if a.reloadPath != "" {
		w, err := config.NewWatcher(a.reloadPath, a.applyReload, a.watchOpts...)
		if err != nil {
			return nil, fmt.Errorf("app: start config watcher: %w", err)
		}
		a.watcher = w
		a.closers = append(a.closers, func() error {
			w.Stop()
			return nil
		})
	}

	return a, nil
}

// routes builds the HTTP mux: the websocket endpoint plus the operational
// endpoints. Health and metrics go through the observability middleware; the
// websocket route does not, because the middleware's response wrapper would
// hide the http.Hijacker the upgrade needs.
func (a *App) routes() http.Handler {
	mw := observe.Middleware(a.metrics)
	hh := health.New(a.stats, a.checkers...)

	mux := http.NewServeMux()
	mux.Handle("GET /ws", a.gateway)
	mux.Handle("GET /healthz", mw(http.HandlerFunc(hh.Healthz)))
	mux.Handle("GET /readyz", mw(http.HandlerFunc(hh.Readyz)))
	mux.Handle("GET /metrics", mw(promhttp.Handler()))
	return mux
}

// stats snapshots gateway load for the health surface.
func (a *App) stats() health.Stats {
	st := a.registry.Stats()
	return health.Stats{
		ActiveConnections: a.gateway.ActiveConnections(),
		ActiveSessions:    st.Sessions,
		ActiveStreams:     st.Recording,
	}
}

// sessionConfig assembles the shared per-session settings from cfg. Called
// again on config reload to refresh the registry template.
func (a *App) sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		LLM:          a.providers.LLM,
		STT:          a.providers.STT,
		Pipeline:     a.buildPipeline(cfg),
		Corrector:    a.corrector,
		Metrics:      a.metrics,
		SystemPrompt: cfg.Chat.SystemPrompt,
		Temperature:  cfg.Chat.Temperature,
		HistoryTurns: cfg.Chat.HistoryTurns,
		Language:     cfg.Transcription.Language,
		RecordingCap: cfg.Recording.MaxBytes,
		LLMName:      cfg.Providers.LLM.Name,
		STTName:      cfg.Providers.STT.Name,
	}
}

// buildPipeline constructs the response pipeline over the configured speech
// backend, wrapped in a fallback group when a backup synthesizer is set.
func (a *App) buildPipeline(cfg *config.Config) *engine.Pipeline {
	speech := a.providers.TTS
	if a.providers.TTSFallback != nil {
		fb := resilience.NewTTSFallback(speech, cfg.Providers.TTS.Name, resilience.FallbackConfig{})
		fb.AddFallback(cfg.Providers.TTSFallback.Name, a.providers.TTSFallback)
		speech = fb
		slog.Info("speech fallback enabled",
			"primary", cfg.Providers.TTS.Name,
			"backup", cfg.Providers.TTSFallback.Name,
		)
	}

	opts := []engine.Option{
		engine.WithMetrics(a.metrics),
		engine.WithPacing(cfg.Stream.PacingInterval()),
		engine.WithMaxConcurrent(int64(cfg.Stream.MaxConcurrentSynthesis)),
		engine.WithSynthesisTimeout(cfg.Stream.SynthesisTimeout()),
	}
	if voice := resolveVoice(cfg); voice != "" {
		opts = append(opts, engine.WithVoice(voice))
	}
	return engine.New(speech, opts...)
}

// resolveVoice maps the configured stream voice through the preset table. A
// name without a preset entry is passed to the synthesizer as-is.
func resolveVoice(cfg *config.Config) string {
	if cfg.Stream.Voice == "" {
		return ""
	}
	if id, ok := cfg.PresetMap()[cfg.Stream.Voice]; ok {
		return id
	}
	return cfg.Stream.Voice
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run opens the listener and serves HTTP until ctx is cancelled or the server
// fails. The bound address is available from [App.Addr] once serving has
// started, which matters when the config asks for port 0.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("app: listen on %q: %w", a.server.Addr, err)
	}
	a.addr.Store(ln.Addr().String())

	slog.Info("server listening",
		"addr", ln.Addr().String(),
		"tls", a.cfg.Server.TLS != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// Addr returns the bound listen address, or "" before Run has started.
func (a *App) Addr() string {
	s, _ := a.addr.Load().(string)
	return s
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown stops the HTTP server, closes live sessions, and tears down the
// remaining subsystems in order. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop accepting new connections first. Live websockets are hijacked
		// and invisible to the HTTP server; the registry closer below
		// releases them.
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
