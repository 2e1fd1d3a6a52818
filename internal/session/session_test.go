package session_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxlane/voxlane/internal/engine"
	"github.com/voxlane/voxlane/internal/protocol"
	"github.com/voxlane/voxlane/internal/resilience"
	"github.com/voxlane/voxlane/internal/session"
	"github.com/voxlane/voxlane/internal/transcript"
	"github.com/voxlane/voxlane/pkg/provider/llm"
	llmmock "github.com/voxlane/voxlane/pkg/provider/llm/mock"
	sttmock "github.com/voxlane/voxlane/pkg/provider/stt/mock"
	ttsmock "github.com/voxlane/voxlane/pkg/provider/tts/mock"
	"github.com/voxlane/voxlane/pkg/types"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

// recordingEmitter collects every outbound envelope in emission order.
type recordingEmitter struct {
	mu        sync.Mutex
	envelopes []protocol.Envelope
}

func (e *recordingEmitter) Emit(_ context.Context, env protocol.Envelope) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.envelopes = append(e.envelopes, env)
	return nil
}

func (e *recordingEmitter) all() []protocol.Envelope {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]protocol.Envelope, len(e.envelopes))
	copy(out, e.envelopes)
	return out
}

func (e *recordingEmitter) ofType(typ string) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range e.all() {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

type fixture struct {
	llm     *llmmock.Provider
	tts     *ttsmock.Provider
	stt     *sttmock.Provider
	emitter *recordingEmitter
	sess    *session.Session
}

// newFixture builds a session over mock providers. The default model reply
// streams "Xin" + " chào." and the default transcription is "Xin chào".
func newFixture(t *testing.T, mutate func(*session.Config)) *fixture {
	t.Helper()

	f := &fixture{
		llm:     &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: "Xin"}, {Text: " chào."}}},
		tts:     &ttsmock.Provider{},
		stt:     &sttmock.Provider{TranscribeResult: types.Transcription{Text: "Xin chào", Language: "vi"}},
		emitter: &recordingEmitter{},
	}
	cfg := session.Config{
		LLM:          f.llm,
		STT:          f.stt,
		Pipeline:     engine.New(f.tts, engine.WithPacing(time.Millisecond)),
		SystemPrompt: "Be brief.",
		Temperature:  0.7,
		HistoryTurns: 10,
		Language:     "vi",
		RecordingCap: 1 << 20,
		LLMName:      "mock",
		STTName:      "mock",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.sess = session.New(context.Background(), "sess-1", f.emitter, cfg)
	t.Cleanup(f.sess.Close)
	return f
}

func inbound(t *testing.T, typ string, payload any) protocol.Envelope {
	t.Helper()
	env := protocol.Envelope{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		env.Data = data
	}
	return env
}

func textInput(t *testing.T, text string) protocol.Envelope {
	return inbound(t, protocol.TypeTextInput, protocol.TextPayload{Text: text})
}

func audioChunk(t *testing.T, raw []byte) protocol.Envelope {
	return inbound(t, protocol.TypeAudioChunk, protocol.AudioPayload{
		Audio: base64.StdEncoding.EncodeToString(raw),
	})
}

func vadAudio(t *testing.T, raw []byte) protocol.Envelope {
	return inbound(t, protocol.TypeVADAudio, protocol.AudioPayload{
		Audio: base64.StdEncoding.EncodeToString(raw),
	})
}

func decodePayload[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var p T
	if err := json.Unmarshal(env.Data, &p); err != nil {
		t.Fatalf("decode %s payload: %v", env.Type, err)
	}
	return p
}

func statusOf(t *testing.T, env protocol.Envelope) string {
	return decodePayload[protocol.StatusPayload](t, env).Status
}

func errorOf(t *testing.T, env protocol.Envelope) string {
	return decodePayload[protocol.ErrorPayload](t, env).Error
}

func clipOf(t *testing.T, env protocol.Envelope) []byte {
	t.Helper()
	p := decodePayload[protocol.AudioPayload](t, env)
	raw, err := base64.StdEncoding.DecodeString(p.Audio)
	if err != nil {
		t.Fatalf("audio_response payload is not base64: %v", err)
	}
	return raw
}

// ─── Text input ─────────────────────────────────────────────────────────────

func TestTextInput_FullCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(textInput(t, "Xin chào"))

	texts := f.emitter.ofType(protocol.TypeTextResponse)
	if len(texts) != 2 {
		t.Fatalf("text_response events = %d, want 2", len(texts))
	}
	var full strings.Builder
	for _, env := range texts {
		full.WriteString(decodePayload[protocol.TextPayload](t, env).Text)
	}
	if full.String() != "Xin chào." {
		t.Errorf("concatenated fragments = %q, want %q", full.String(), "Xin chào.")
	}

	audios := f.emitter.ofType(protocol.TypeAudioResponse)
	if len(audios) != 1 {
		t.Fatalf("audio_response events = %d, want 1", len(audios))
	}
	if got, want := string(clipOf(t, audios[0])), "voiced:Xin chào."; got != want {
		t.Errorf("clip = %q, want %q", got, want)
	}

	turns := f.sess.History()
	if len(turns) != 2 {
		t.Fatalf("history length = %d, want 2", len(turns))
	}
	if turns[0].Role != types.RoleUser || turns[0].Text != "Xin chào" {
		t.Errorf("turn 0 = %+v, want user %q", turns[0], "Xin chào")
	}
	if turns[1].Role != types.RoleAssistant || turns[1].Text != full.String() {
		t.Errorf("turn 1 = %+v, want assistant %q", turns[1], full.String())
	}

	if got := f.sess.State(); got != session.StateIdle {
		t.Errorf("state after cycle = %v, want %v", got, session.StateIdle)
	}
}

func TestTextInput_HistoryExcludesCurrentMessage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(textInput(t, "first question"))
	f.sess.HandleMessage(textInput(t, "second question"))

	calls := f.llm.Calls()
	if len(calls) != 2 {
		t.Fatalf("StreamCompletion calls = %d, want 2", len(calls))
	}

	if len(calls[0].Req.History) != 0 {
		t.Errorf("first request history = %d turns, want 0", len(calls[0].Req.History))
	}
	if calls[0].Req.Message != "first question" {
		t.Errorf("first request message = %q, want %q", calls[0].Req.Message, "first question")
	}
	if calls[0].Req.System != "Be brief." {
		t.Errorf("system prompt = %q, want %q", calls[0].Req.System, "Be brief.")
	}

	second := calls[1].Req
	if second.Message != "second question" {
		t.Errorf("second request message = %q, want %q", second.Message, "second question")
	}
	if len(second.History) != 2 {
		t.Fatalf("second request history = %d turns, want 2", len(second.History))
	}
	if second.History[0].Role != types.RoleUser || second.History[0].Text != "first question" {
		t.Errorf("history[0] = %+v, want the first user turn", second.History[0])
	}
	if second.History[1].Role != types.RoleAssistant {
		t.Errorf("history[1].Role = %v, want assistant", second.History[1].Role)
	}
}

func TestTextInput_EmptyTextRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(textInput(t, "   "))

	errs := f.emitter.ofType(protocol.TypeError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1", len(errs))
	}
	if len(f.sess.History()) != 0 {
		t.Errorf("history length = %d, want 0 after rejected input", len(f.sess.History()))
	}
	if len(f.llm.Calls()) != 0 {
		t.Errorf("StreamCompletion calls = %d, want 0", len(f.llm.Calls()))
	}
}

func TestTextInput_RequestFailureKeepsUserTurn(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.llm.StreamErr = errors.New("model unreachable")

	f.sess.HandleMessage(textInput(t, "hello"))

	errs := f.emitter.ofType(protocol.TypeError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1", len(errs))
	}
	if got := errorOf(t, errs[0]); !strings.Contains(got, "model unreachable") {
		t.Errorf("error text = %q, want it to mention the provider failure", got)
	}
	if len(f.emitter.ofType(protocol.TypeTextResponse)) != 0 {
		t.Errorf("text_response events present after request failure")
	}

	turns := f.sess.History()
	if len(turns) != 1 || turns[0].Role != types.RoleUser {
		t.Fatalf("history = %+v, want only the user turn", turns)
	}
}

func TestTextInput_MidStreamFailureDiscardsPartialReply(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.llm.StreamChunks = []llm.Chunk{
		{Text: "Hello."},
		{Err: errors.New("stream cut")},
	}

	f.sess.HandleMessage(textInput(t, "hi"))

	if len(f.emitter.ofType(protocol.TypeError)) != 1 {
		t.Fatalf("error events = %d, want 1", len(f.emitter.ofType(protocol.TypeError)))
	}

	// The fragment before the failure was already forwarded; the assistant
	// turn must still be absent.
	if len(f.emitter.ofType(protocol.TypeTextResponse)) != 1 {
		t.Errorf("text_response events = %d, want 1", len(f.emitter.ofType(protocol.TypeTextResponse)))
	}
	turns := f.sess.History()
	if len(turns) != 1 || turns[0].Role != types.RoleUser {
		t.Fatalf("history = %+v, want only the user turn", turns)
	}
	if got := f.sess.State(); got != session.StateIdle {
		t.Errorf("state after aborted cycle = %v, want %v", got, session.StateIdle)
	}
}

// ─── Recording ──────────────────────────────────────────────────────────────

func TestRecording_ChunksConcatenateIntoTranscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(inbound(t, protocol.TypeStartRecording, nil))
	f.sess.HandleMessage(audioChunk(t, []byte("abc")))
	f.sess.HandleMessage(audioChunk(t, []byte("def")))
	f.sess.HandleMessage(audioChunk(t, []byte("ghi")))
	f.sess.HandleMessage(inbound(t, protocol.TypeStopRecording, nil))

	statuses := f.emitter.ofType(protocol.TypeStatus)
	if len(statuses) != 5 {
		t.Fatalf("status events = %d, want 5", len(statuses))
	}
	wantStatuses := []string{
		protocol.StatusRecordingStarted,
		protocol.StatusBuffered(3),
		protocol.StatusBuffered(6),
		protocol.StatusBuffered(9),
		protocol.StatusRecordingStopped,
	}
	for i, want := range wantStatuses {
		if got := statusOf(t, statuses[i]); got != want {
			t.Errorf("status[%d] = %q, want %q", i, got, want)
		}
	}

	calls := f.stt.Calls()
	if len(calls) != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", len(calls))
	}
	if got, want := string(calls[0].Audio), "abcdefghi"; got != want {
		t.Errorf("transcribed audio = %q, want %q", got, want)
	}
	if calls[0].Language != "vi" {
		t.Errorf("language hint = %q, want %q", calls[0].Language, "vi")
	}

	transcripts := f.emitter.ofType(protocol.TypeTranscript)
	if len(transcripts) != 1 {
		t.Fatalf("transcript events = %d, want 1", len(transcripts))
	}
	p := decodePayload[protocol.TranscriptPayload](t, transcripts[0])
	if p.Transcript != "Xin chào" || !p.IsFinal {
		t.Errorf("transcript = %+v, want final %q", p, "Xin chào")
	}

	// The transcript fed the text path: two turns, transcript first.
	turns := f.sess.History()
	if len(turns) != 2 || turns[0].Text != "Xin chào" {
		t.Fatalf("history = %+v, want user %q + assistant reply", turns, "Xin chào")
	}

	// Transcript precedes every text/audio event of the response it triggered.
	seenTranscript := false
	for _, env := range f.emitter.all() {
		switch env.Type {
		case protocol.TypeTranscript:
			seenTranscript = true
		case protocol.TypeTextResponse, protocol.TypeAudioResponse:
			if !seenTranscript {
				t.Fatalf("%s event emitted before the transcript", env.Type)
			}
		}
	}
}

func TestAudioChunk_RejectedWhenNotRecording(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(audioChunk(t, []byte("abc")))

	errs := f.emitter.ofType(protocol.TypeError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1", len(errs))
	}
	if got := errorOf(t, errs[0]); !strings.Contains(got, "not recording") {
		t.Errorf("error text = %q, want it to mention not recording", got)
	}
	if len(f.stt.Calls()) != 0 {
		t.Errorf("Transcribe calls = %d, want 0", len(f.stt.Calls()))
	}
}

func TestAudioChunk_OverflowKeepsRecordingOpen(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *session.Config) {
		cfg.RecordingCap = 8
	})

	f.sess.HandleMessage(inbound(t, protocol.TypeStartRecording, nil))
	f.sess.HandleMessage(audioChunk(t, []byte("123456")))  // 6 bytes, fits
	f.sess.HandleMessage(audioChunk(t, []byte("abcdef")))  // would reach 12, rejected
	f.sess.HandleMessage(audioChunk(t, []byte("78")))      // 8 bytes total, fits

	errs := f.emitter.ofType(protocol.TypeError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1 for the oversized chunk", len(errs))
	}
	if !f.sess.Recording() {
		t.Error("recording ended after a rejected chunk; it must stay open")
	}

	f.sess.HandleMessage(inbound(t, protocol.TypeStopRecording, nil))

	calls := f.stt.Calls()
	if len(calls) != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", len(calls))
	}
	if got, want := string(calls[0].Audio), "12345678"; got != want {
		t.Errorf("transcribed audio = %q, want only the accepted bytes %q", got, want)
	}
}

func TestStartRecording_ResetsPreviousCapture(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(inbound(t, protocol.TypeStartRecording, nil))
	f.sess.HandleMessage(audioChunk(t, []byte("stale")))
	f.sess.HandleMessage(inbound(t, protocol.TypeStartRecording, nil))
	f.sess.HandleMessage(audioChunk(t, []byte("fresh")))
	f.sess.HandleMessage(inbound(t, protocol.TypeStopRecording, nil))

	calls := f.stt.Calls()
	if len(calls) != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", len(calls))
	}
	if got, want := string(calls[0].Audio), "fresh"; got != want {
		t.Errorf("transcribed audio = %q, want %q", got, want)
	}
}

func TestStopRecording_WithoutRecordingIsIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(inbound(t, protocol.TypeStopRecording, nil))

	if got := len(f.emitter.all()); got != 0 {
		t.Fatalf("outbound events = %d, want 0", got)
	}
	if len(f.stt.Calls()) != 0 {
		t.Errorf("Transcribe calls = %d, want 0", len(f.stt.Calls()))
	}
}

func TestStopRecording_EmptyCaptureSkipsTranscription(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(inbound(t, protocol.TypeStartRecording, nil))
	f.sess.HandleMessage(inbound(t, protocol.TypeStopRecording, nil))

	if len(f.stt.Calls()) != 0 {
		t.Errorf("Transcribe calls = %d, want 0 for an empty capture", len(f.stt.Calls()))
	}
	if len(f.emitter.ofType(protocol.TypeTranscript)) != 0 {
		t.Errorf("transcript events present for an empty capture")
	}
	if f.sess.Recording() {
		t.Error("still recording after stop_recording")
	}
}

func TestTranscriptionFailure_EmitsOneError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.stt.TranscribeErr = errors.New("decoder choked")

	f.sess.HandleMessage(inbound(t, protocol.TypeStartRecording, nil))
	f.sess.HandleMessage(audioChunk(t, []byte("abc")))
	f.sess.HandleMessage(inbound(t, protocol.TypeStopRecording, nil))

	errs := f.emitter.ofType(protocol.TypeError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1", len(errs))
	}
	if len(f.emitter.ofType(protocol.TypeTranscript)) != 0 {
		t.Errorf("transcript events present after transcription failure")
	}
	if len(f.llm.Calls()) != 0 {
		t.Errorf("StreamCompletion calls = %d, want 0", len(f.llm.Calls()))
	}
}

// ─── VAD audio ──────────────────────────────────────────────────────────────

func TestVADAudio_OneShotTranscribeAndRespond(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(vadAudio(t, []byte("utterance")))

	calls := f.stt.Calls()
	if len(calls) != 1 {
		t.Fatalf("Transcribe calls = %d, want 1", len(calls))
	}
	if got, want := string(calls[0].Audio), "utterance"; got != want {
		t.Errorf("transcribed audio = %q, want %q", got, want)
	}
	if len(f.emitter.ofType(protocol.TypeTranscript)) != 1 {
		t.Fatalf("transcript events = %d, want 1", len(f.emitter.ofType(protocol.TypeTranscript)))
	}
	if len(f.sess.History()) != 2 {
		t.Errorf("history length = %d, want 2 after VAD-triggered cycle", len(f.sess.History()))
	}
}

func TestVADAudio_EmptyTranscriptEndsCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	f.stt.TranscribeResult = types.Transcription{Text: "  ", Language: "vi"}

	f.sess.HandleMessage(vadAudio(t, []byte("noise")))

	if len(f.emitter.ofType(protocol.TypeTranscript)) != 1 {
		t.Fatalf("transcript events = %d, want 1", len(f.emitter.ofType(protocol.TypeTranscript)))
	}
	if len(f.llm.Calls()) != 0 {
		t.Errorf("StreamCompletion calls = %d, want 0 for an empty transcript", len(f.llm.Calls()))
	}
	if len(f.sess.History()) != 0 {
		t.Errorf("history length = %d, want 0", len(f.sess.History()))
	}
}

func TestVADAudio_HotwordCorrection(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *session.Config) {
		cfg.Corrector = transcript.New([]string{"Grenlock"})
	})
	f.stt.TranscribeResult = types.Transcription{Text: "tell grenlok about it", Language: "en"}

	f.sess.HandleMessage(vadAudio(t, []byte("utterance")))

	transcripts := f.emitter.ofType(protocol.TypeTranscript)
	if len(transcripts) != 1 {
		t.Fatalf("transcript events = %d, want 1", len(transcripts))
	}
	p := decodePayload[protocol.TranscriptPayload](t, transcripts[0])
	if !strings.Contains(p.Transcript, "Grenlock") {
		t.Errorf("transcript = %q, want the corrected spelling %q", p.Transcript, "Grenlock")
	}

	calls := f.llm.Calls()
	if len(calls) != 1 {
		t.Fatalf("StreamCompletion calls = %d, want 1", len(calls))
	}
	if !strings.Contains(calls[0].Req.Message, "Grenlock") {
		t.Errorf("model message = %q, want the corrected spelling", calls[0].Req.Message)
	}
}

// ─── Fallback synthesis ─────────────────────────────────────────────────────

func TestSynthesisFallback_AllUnitsStillDelivered(t *testing.T) {
	t.Parallel()

	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	backup := &ttsmock.Provider{}
	group := resilience.NewTTSFallback(primary, "primary", resilience.FallbackConfig{})
	group.AddFallback("backup", backup)

	f := newFixture(t, func(cfg *session.Config) {
		cfg.Pipeline = engine.New(group, engine.WithPacing(time.Millisecond))
	})
	f.llm.StreamChunks = []llm.Chunk{
		{Text: "One."},
		{Text: " Two."},
		{Text: " Three."},
	}

	f.sess.HandleMessage(textInput(t, "count"))

	audios := f.emitter.ofType(protocol.TypeAudioResponse)
	if len(audios) != 3 {
		t.Fatalf("audio_response events = %d, want 3", len(audios))
	}
	want := []string{"voiced:One.", "voiced:Two.", "voiced:Three."}
	for i, env := range audios {
		if got := string(clipOf(t, env)); got != want[i] {
			t.Errorf("clip[%d] = %q, want %q", i, got, want[i])
		}
	}
	if len(f.emitter.ofType(protocol.TypeError)) != 0 {
		t.Errorf("error events present; fallback synthesis must be silent")
	}
}

// ─── Ping, unknown types, panics ────────────────────────────────────────────

func TestPing_OnePongEach(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(inbound(t, protocol.TypePing, nil))
	f.sess.HandleMessage(inbound(t, protocol.TypeStartRecording, nil))
	f.sess.HandleMessage(inbound(t, protocol.TypePing, nil))
	f.sess.HandleMessage(inbound(t, protocol.TypePing, nil))

	if got := len(f.emitter.ofType(protocol.TypePong)); got != 3 {
		t.Fatalf("pong events = %d, want 3", got)
	}
	// Ping is state-independent: recording untouched.
	if !f.sess.Recording() {
		t.Error("recording flag cleared by ping")
	}
}

func TestUnknownType_LoggedAndIgnored(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	f.sess.HandleMessage(protocol.Envelope{Type: "teleport"})

	if got := len(f.emitter.all()); got != 0 {
		t.Fatalf("outbound events = %d, want 0 for an unknown type", got)
	}
}

// panicCorrector stands in for a buggy collaborator on the handling path.
type panicCorrector struct{}

func (panicCorrector) Correct(string) (string, []transcript.Correction) {
	panic("corrector exploded")
}

func TestHandleMessage_RecoversPanic(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *session.Config) {
		cfg.Corrector = panicCorrector{}
	})

	f.sess.HandleMessage(vadAudio(t, []byte("utterance")))

	errs := f.emitter.ofType(protocol.TypeError)
	if len(errs) != 1 {
		t.Fatalf("error events = %d, want 1", len(errs))
	}
	if got := errorOf(t, errs[0]); got != "Internal server error" {
		t.Errorf("error text = %q, want %q", got, "Internal server error")
	}

	// The session survives and keeps serving.
	f.sess.HandleMessage(inbound(t, protocol.TypePing, nil))
	if got := len(f.emitter.ofType(protocol.TypePong)); got != 1 {
		t.Errorf("pong events after recovery = %d, want 1", got)
	}
}

// ─── History bounds ─────────────────────────────────────────────────────────

func TestHistory_EvictsOldestBeyondCapacity(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(cfg *session.Config) {
		cfg.HistoryTurns = 4
	})

	for _, msg := range []string{"one", "two", "three"} {
		f.sess.HandleMessage(textInput(t, msg))
	}

	turns := f.sess.History()
	if len(turns) != 4 {
		t.Fatalf("history length = %d, want capacity 4", len(turns))
	}
	// Three exchanges produced six turns; the first exchange was evicted.
	if turns[0].Role != types.RoleUser || turns[0].Text != "two" {
		t.Errorf("oldest retained turn = %+v, want user %q", turns[0], "two")
	}
}
