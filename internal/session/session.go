// Package session orchestrates one conversation per transport connection.
//
// A [Session] owns the per-connection state the gateway cannot hold: the
// bounded conversation log, the push-to-talk recording buffer, and the
// idle/streaming response-cycle state with its orthogonal recording flag.
// Inbound protocol messages are handled one at a time per session, in
// arrival order; each handler emits its outbound events through the
// connection's [Emitter]. A failure anywhere in a handler produces exactly
// one error event and never escapes the session: the top of the handling
// path recovers panics and reports them as internal errors.
//
// A [Registry] tracks live sessions and tears them down synchronously on
// disconnect, cancelling in-flight model streaming and synthesis.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/voxlane/voxlane/internal/capture"
	"github.com/voxlane/voxlane/internal/engine"
	"github.com/voxlane/voxlane/internal/memory"
	"github.com/voxlane/voxlane/internal/observe"
	"github.com/voxlane/voxlane/internal/protocol"
	"github.com/voxlane/voxlane/internal/transcript"
	"github.com/voxlane/voxlane/pkg/provider/llm"
	"github.com/voxlane/voxlane/pkg/provider/stt"
	"github.com/voxlane/voxlane/pkg/types"
)

// ErrNotRecording is returned (and surfaced as an error event) when an
// audio_chunk arrives outside a recording.
var ErrNotRecording = errors.New("session: not recording, send start_recording first")

// internalErrorMessage is the client-facing text for faults that carry no
// safe detail, such as recovered panics.
const internalErrorMessage = "Internal server error"

// State is the response-cycle state of a session. Recording is tracked
// separately because it overlaps both states.
type State int

const (
	// StateIdle means no response cycle is running.
	StateIdle State = iota

	// StateStreaming means a model reply is currently being streamed,
	// synthesized and delivered.
	StateStreaming
)

// String implements [fmt.Stringer] for log output.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Emitter sends one outbound envelope to the session's client. The gateway
// implements it over the websocket connection with serialized writes, so
// handlers and the engine's delivery goroutine may emit concurrently.
type Emitter interface {
	Emit(ctx context.Context, env protocol.Envelope) error
}

// Config carries the collaborators and conversation settings shared by every
// session a [Registry] creates.
type Config struct {
	// LLM produces the streamed model reply for each user message.
	LLM llm.Provider

	// STT transcribes recorded audio. May be shared across sessions;
	// implementations serialize or pool internally.
	STT stt.Provider

	// Pipeline drives the response cycle: segmentation, concurrent
	// synthesis, ordered paced delivery.
	Pipeline *engine.Pipeline

	// Corrector rewrites transcripts against the configured hotword
	// vocabulary before they re-enter the text path. Nil disables
	// correction.
	Corrector transcript.Corrector

	// Metrics receives session recordings. Nil means
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// SystemPrompt is the persona instruction sent with every completion
	// request. May be empty.
	SystemPrompt string

	// Temperature is the model sampling temperature in [0, 2].
	Temperature float64

	// HistoryTurns caps the conversation log; the oldest turn is evicted
	// beyond it.
	HistoryTurns int

	// Language is the transcription language hint (e.g. "vi").
	Language string

	// RecordingCap is the recording buffer ceiling in bytes.
	RecordingCap int

	// LLMName and STTName label provider metrics and log lines.
	LLMName string
	STTName string
}

// Session is one conversation bound to one transport connection.
//
// HandleMessage must not be called concurrently for the same session; the
// gateway's read loop processes one message to completion before the next.
// Accessors (State, Recording, History) are safe from any goroutine.
type Session struct {
	id      string
	emitter Emitter
	cfg     Config
	metrics *observe.Metrics
	log     *memory.Log

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.Mutex
	state     State
	recording bool
	recorder  *capture.Buffer
}

// New creates a session whose lifetime context derives from ctx: cancelling
// ctx (connection teardown) aborts any in-flight streaming and synthesis.
func New(ctx context.Context, id string, emitter Emitter, cfg Config) *Session {
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:      id,
		emitter: emitter,
		cfg:     cfg,
		metrics: cfg.Metrics,
		log:     memory.NewLog(cfg.HistoryTurns),
		ctx:     sctx,
		cancel:  cancel,
	}
	s.metrics.ActiveSessions.Add(sctx, 1)
	slog.Info("session created", "session_id", id, "llm", cfg.LLMName, "stt", cfg.STTName)
	return s
}

// ID returns the session identifier minted by the gateway.
func (s *Session) ID() string {
	return s.id
}

// Context is cancelled when the session closes. The gateway's read loop
// blocks on it so a session removed from the registry releases its
// connection instead of waiting for the next frame.
func (s *Session) Context() context.Context {
	return s.ctx
}

// State returns the current response-cycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Recording reports whether the session is currently accepting audio chunks.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// History returns a snapshot of the conversation log in order.
func (s *Session) History() []types.Turn {
	return s.log.Snapshot()
}

// Close cancels in-flight work and releases the recording buffer. Safe to
// call multiple times; called by [Registry.Remove] on disconnect.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.recording = false
		if s.recorder != nil {
			s.recorder.Reset()
		}
		s.mu.Unlock()
		s.metrics.ActiveSessions.Add(context.Background(), -1)
		slog.Info("session closed", "session_id", s.id)
	})
}

// HandleMessage processes one inbound envelope to completion, emitting any
// resulting events. Unknown message types are logged and ignored. Nothing
// escapes: every failure, panics included, becomes exactly one error event.
func (s *Session) HandleMessage(env protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("session: panic in message handler",
				"session_id", s.id,
				"message_type", env.Type,
				"panic", r,
				"stack", string(debug.Stack()))
			s.emit(protocol.NewError(s.id, internalErrorMessage))
		}
	}()

	switch env.Type {
	case protocol.TypeTextInput:
		s.handleTextInput(env)
	case protocol.TypeAudioChunk:
		s.handleAudioChunk(env)
	case protocol.TypeStartRecording:
		s.handleStartRecording()
	case protocol.TypeStopRecording:
		s.handleStopRecording()
	case protocol.TypeVADAudio:
		s.handleVADAudio(env)
	case protocol.TypePing:
		s.emit(protocol.NewPong(s.id))
	default:
		slog.Warn("session: ignoring unknown message type",
			"session_id", s.id,
			"message_type", env.Type)
	}
}

// ─── Inbound handlers ───────────────────────────────────────────────────────

func (s *Session) handleTextInput(env protocol.Envelope) {
	text, err := env.TextInput()
	if err != nil {
		s.emit(protocol.NewError(s.id, err.Error()))
		return
	}
	s.respond(text)
}

func (s *Session) handleStartRecording() {
	s.mu.Lock()
	if s.recorder == nil {
		s.recorder = capture.NewBuffer(s.cfg.RecordingCap)
	} else {
		// A fresh recording never inherits stale bytes.
		s.recorder.Reset()
	}
	s.recording = true
	s.mu.Unlock()

	slog.Info("session: recording started", "session_id", s.id)
	s.emit(protocol.NewStatus(s.id, protocol.StatusRecordingStarted))
}

func (s *Session) handleAudioChunk(env protocol.Envelope) {
	chunk, err := env.AudioChunk()
	if err != nil {
		s.emit(protocol.NewError(s.id, err.Error()))
		return
	}

	s.mu.Lock()
	recording, recorder := s.recording, s.recorder
	s.mu.Unlock()
	if !recording {
		s.emit(protocol.NewError(s.id, ErrNotRecording.Error()))
		return
	}

	if err := recorder.Append(chunk); err != nil {
		// The recording stays open; the client may stop and retry.
		slog.Warn("session: audio chunk rejected",
			"session_id", s.id,
			"chunk_bytes", len(chunk),
			"buffered_bytes", recorder.Len(),
			"error", err)
		s.emit(protocol.NewError(s.id, err.Error()))
		return
	}

	slog.Debug("session: audio chunk buffered",
		"session_id", s.id,
		"chunk_bytes", len(chunk),
		"buffered_bytes", recorder.Len())
	s.emit(protocol.NewStatus(s.id, protocol.StatusBuffered(recorder.Len())))
}

func (s *Session) handleStopRecording() {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		slog.Warn("session: stop_recording without an active recording", "session_id", s.id)
		return
	}
	s.recording = false
	audio := s.recorder.Drain()
	s.mu.Unlock()

	slog.Info("session: recording stopped", "session_id", s.id, "audio_bytes", len(audio))
	s.emit(protocol.NewStatus(s.id, protocol.StatusRecordingStopped))

	if len(audio) == 0 {
		return
	}
	s.transcribeAndRespond(audio)
}

func (s *Session) handleVADAudio(env protocol.Envelope) {
	audio, err := env.VADAudio()
	if err != nil {
		s.emit(protocol.NewError(s.id, err.Error()))
		return
	}
	s.transcribeAndRespond(audio)
}

// ─── Conversation flow ──────────────────────────────────────────────────────

// respond runs one full streaming response cycle for a user message that is
// already known to be non-empty after trimming.
func (s *Session) respond(message string) {
	if err := s.log.Append(types.Turn{Role: types.RoleUser, Text: message}); err != nil {
		s.emit(protocol.NewError(s.id, err.Error()))
		return
	}

	// The model sees everything before this message; the just-appended turn
	// travels separately as the message itself.
	history := s.log.Snapshot()
	history = history[:len(history)-1]

	s.setState(StateStreaming)
	defer s.setState(StateIdle)
	s.metrics.ActiveCycles.Add(s.ctx, 1)
	defer s.metrics.ActiveCycles.Add(s.ctx, -1)

	start := time.Now()
	fragments, err := s.cfg.LLM.StreamCompletion(s.ctx, llm.Request{
		System:      s.cfg.SystemPrompt,
		History:     history,
		Message:     message,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		s.metrics.RecordProviderError(s.ctx, s.cfg.LLMName, "llm")
		slog.Error("session: model request failed",
			"session_id", s.id,
			"provider", s.cfg.LLMName,
			"error", err)
		s.emit(protocol.NewError(s.id, err.Error()))
		return
	}

	reply, err := s.cfg.Pipeline.Respond(s.ctx, fragments, cycleSink{sessionID: s.id, emitter: s.emitter})
	s.metrics.RecordStream(s.ctx, s.cfg.LLMName, time.Since(start).Seconds())
	if err != nil {
		// The cycle is aborted whole: no assistant turn, the user turn stays.
		s.metrics.RecordProviderError(s.ctx, s.cfg.LLMName, "stream")
		slog.Error("session: response cycle aborted",
			"session_id", s.id,
			"provider", s.cfg.LLMName,
			"error", err)
		s.emit(protocol.NewError(s.id, err.Error()))
		return
	}

	if strings.TrimSpace(reply) == "" {
		slog.Warn("session: empty model reply", "session_id", s.id)
		return
	}
	if err := s.log.Append(types.Turn{Role: types.RoleAssistant, Text: reply}); err != nil {
		slog.Warn("session: could not record assistant turn", "session_id", s.id, "error", err)
	}
}

// transcribeAndRespond turns captured audio into text and, when the
// transcript is non-empty, feeds it through the same path as typed input.
// The transcript event always precedes the response it triggers.
func (s *Session) transcribeAndRespond(audio []byte) {
	start := time.Now()
	result, err := s.cfg.STT.Transcribe(s.ctx, audio, s.cfg.Language)
	s.metrics.RecordTranscription(s.ctx, s.cfg.STTName, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(s.ctx, s.cfg.STTName, "stt")
		slog.Error("session: transcription failed",
			"session_id", s.id,
			"provider", s.cfg.STTName,
			"audio_bytes", len(audio),
			"error", err)
		s.emit(protocol.NewError(s.id, err.Error()))
		return
	}

	text := result.Text
	if s.cfg.Corrector != nil {
		corrected, corrections := s.cfg.Corrector.Correct(text)
		for _, c := range corrections {
			slog.Debug("session: hotword corrected",
				"session_id", s.id,
				"heard", c.Heard,
				"applied", c.Applied,
				"score", c.Score)
		}
		text = corrected
	}

	slog.Info("session: transcript ready",
		"session_id", s.id,
		"language", result.Language,
		"chars", len(text))
	s.emit(protocol.NewTranscript(s.id, text, true))

	if strings.TrimSpace(text) == "" {
		slog.Debug("session: empty transcript, no response cycle", "session_id", s.id)
		return
	}
	s.respond(text)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// emit sends one envelope, logging delivery failures instead of propagating
// them; a dead connection surfaces through the gateway's read loop.
func (s *Session) emit(env protocol.Envelope) {
	if err := s.emitter.Emit(s.ctx, env); err != nil {
		slog.Debug("session: emit failed",
			"session_id", s.id,
			"message_type", env.Type,
			"error", err)
	}
}

// cycleSink adapts the session's emitter to the engine's output contract for
// one response cycle.
type cycleSink struct {
	sessionID string
	emitter   Emitter
}

func (c cycleSink) Text(ctx context.Context, fragment string) error {
	return c.emitter.Emit(ctx, protocol.NewTextResponse(c.sessionID, fragment))
}

func (c cycleSink) Audio(ctx context.Context, clip []byte) error {
	return c.emitter.Emit(ctx, protocol.NewAudioResponse(c.sessionID, clip))
}
