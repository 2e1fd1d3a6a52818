// Package protocol defines the JSON message envelope exchanged with clients
// over the gateway websocket, one logical message per frame.
//
// Inbound messages carry client intent (text input, recorded audio, recording
// control, ping); outbound messages carry the assistant's streamed text,
// synthesized audio clips, transcripts, status notices, and errors. Payload
// validation lives here so the session layer can treat a decoded message as
// well-formed.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Inbound message types.
const (
	TypeTextInput      = "text_input"
	TypeAudioChunk     = "audio_chunk"
	TypeStartRecording = "start_recording"
	TypeStopRecording  = "stop_recording"
	TypeVADAudio       = "vad_audio"
	TypePing           = "ping"
)

// Outbound message types.
const (
	TypeTextResponse  = "text_response"
	TypeAudioResponse = "audio_response"
	TypeTranscript    = "transcript"
	TypeStatus        = "status"
	TypeError         = "error"
	TypePong          = "pong"
)

// Status strings carried by status events.
const (
	StatusConnected        = "connected"
	StatusRecordingStarted = "recording_started"
	StatusRecordingStopped = "recording_stopped"
)

var (
	// ErrMalformed marks an inbound message that violates the wire contract:
	// unparseable JSON, a missing type, or a payload of the wrong shape.
	ErrMalformed = errors.New("protocol: malformed message")

	// ErrEmptyText marks a text_input whose text is empty after trimming.
	ErrEmptyText = errors.New("protocol: text_input text is empty")
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp float64         `json:"timestamp,omitempty"`
}

// TextPayload is the data shape of text_input and text_response.
type TextPayload struct {
	Text string `json:"text"`
}

// AudioPayload is the data shape of audio_chunk, vad_audio and
// audio_response. Audio is standard base64.
type AudioPayload struct {
	Audio string `json:"audio"`
}

// TranscriptPayload is the data shape of transcript events.
type TranscriptPayload struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

// StatusPayload is the data shape of status events.
type StatusPayload struct {
	Status string `json:"status"`
}

// ErrorPayload is the data shape of error events.
type ErrorPayload struct {
	Error string `json:"error"`
}

// ─── Decoding ───────────────────────────────────────────────────────────────

// Decode parses a raw websocket frame into an [Envelope]. The payload is left
// undecoded; use the typed accessors to extract and validate it.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: decode envelope: %s: %w", err, ErrMalformed)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("protocol: missing message type: %w", ErrMalformed)
	}
	return env, nil
}

// TextInput extracts and validates the payload of a text_input message.
// The text must be non-empty after trimming; the untrimmed original is
// returned so the model sees exactly what the client sent.
func (e Envelope) TextInput() (string, error) {
	var p TextPayload
	if err := e.decodeData(&p); err != nil {
		return "", err
	}
	if strings.TrimSpace(p.Text) == "" {
		return "", ErrEmptyText
	}
	return p.Text, nil
}

// AudioChunk extracts and decodes the payload of an audio_chunk message.
// The audio field must be a base64 string.
func (e Envelope) AudioChunk() ([]byte, error) {
	return e.audioData()
}

// VADAudio extracts and decodes the payload of a vad_audio message.
func (e Envelope) VADAudio() ([]byte, error) {
	return e.audioData()
}

func (e Envelope) audioData() ([]byte, error) {
	var p AudioPayload
	if err := e.decodeData(&p); err != nil {
		return nil, err
	}
	if p.Audio == "" {
		return nil, fmt.Errorf("protocol: %s requires an audio field: %w", e.Type, ErrMalformed)
	}
	decoded, err := base64.StdEncoding.DecodeString(p.Audio)
	if err != nil {
		return nil, fmt.Errorf("protocol: %s audio is not valid base64: %w", e.Type, ErrMalformed)
	}
	return decoded, nil
}

func (e Envelope) decodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("protocol: %s requires a data object: %w", e.Type, ErrMalformed)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("protocol: %s payload: %s: %w", e.Type, err, ErrMalformed)
	}
	return nil
}

// ─── Encoding ───────────────────────────────────────────────────────────────

// NewTextResponse builds a text_response event carrying one streamed text
// fragment.
func NewTextResponse(sessionID, text string) Envelope {
	return outbound(TypeTextResponse, sessionID, TextPayload{Text: text})
}

// NewAudioResponse builds an audio_response event. The clip is base64-encoded
// for the JSON transport.
func NewAudioResponse(sessionID string, clip []byte) Envelope {
	return outbound(TypeAudioResponse, sessionID, AudioPayload{
		Audio: base64.StdEncoding.EncodeToString(clip),
	})
}

// NewTranscript builds a transcript event.
func NewTranscript(sessionID, transcript string, isFinal bool) Envelope {
	return outbound(TypeTranscript, sessionID, TranscriptPayload{
		Transcript: transcript,
		IsFinal:    isFinal,
	})
}

// NewStatus builds a status event.
func NewStatus(sessionID, status string) Envelope {
	return outbound(TypeStatus, sessionID, StatusPayload{Status: status})
}

// StatusBuffered renders the running status line sent after each accepted
// recording chunk.
func StatusBuffered(totalBytes int) string {
	return fmt.Sprintf("buffered %d bytes", totalBytes)
}

// NewError builds an error event.
func NewError(sessionID, message string) Envelope {
	return outbound(TypeError, sessionID, ErrorPayload{Error: message})
}

// NewPong builds the reply to a ping.
func NewPong(sessionID string) Envelope {
	return outbound(TypePong, sessionID, struct{}{})
}

// Encode serialises the envelope to its wire form.
func (e Envelope) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", e.Type, err)
	}
	return raw, nil
}

func outbound(typ, sessionID string, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		// The payload structs above marshal unconditionally.
		panic("protocol: marshal " + typ + " payload: " + err.Error())
	}
	return Envelope{
		Type:      typ,
		Data:      data,
		SessionID: sessionID,
		Timestamp: unixNow(),
	}
}

// unixNow returns the current time as Unix seconds with sub-second precision,
// the timestamp format clients already consume.
func unixNow() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
