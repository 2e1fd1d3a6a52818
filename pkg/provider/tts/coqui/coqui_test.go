package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlane/voxlane/pkg/provider/tts"
)

func TestNew_EmptyServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty server URL, got nil")
	}
}

func TestSynthesize_Standard(t *testing.T) {
	wantClip := []byte("RIFF-wav-bytes")

	var gotPath string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		_, _ = w.Write(wantClip)
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithLanguage("vi"), WithVoice("p225"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := p.Synthesize(context.Background(), tts.Request{Text: "Xin chào."})
	if err != nil {
		t.Fatalf("Synthesize: unexpected error: %v", err)
	}

	if !bytes.Equal(clip, wantClip) {
		t.Errorf("clip = %q, want %q", clip, wantClip)
	}
	if gotPath != standardSpeechPath {
		t.Errorf("path = %q, want %q", gotPath, standardSpeechPath)
	}
	if got := gotQuery["text"]; len(got) != 1 || got[0] != "Xin chào." {
		t.Errorf("text query = %v, want [Xin chào.]", got)
	}
	if got := gotQuery["speaker_id"]; len(got) != 1 || got[0] != "p225" {
		t.Errorf("speaker_id query = %v, want [p225] (configured default)", got)
	}
	if got := gotQuery["language_id"]; len(got) != 1 || got[0] != "vi" {
		t.Errorf("language_id query = %v, want [vi]", got)
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	var gotPath string
	var gotReq xttsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("wav"))
	}))
	defer srv.Close()

	p, err := New(srv.URL, WithAPIMode(APIModeXTTS), WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "Hello.", Voice: "narrator"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if gotPath != xttsSpeechPath {
		t.Errorf("path = %q, want %q", gotPath, xttsSpeechPath)
	}
	if gotReq.Text != "Hello." {
		t.Errorf("text = %q, want %q", gotReq.Text, "Hello.")
	}
	if gotReq.SpeakerWav != "narrator" {
		t.Errorf("speaker_wav = %q, want %q", gotReq.SpeakerWav, "narrator")
	}
	if gotReq.Language != "en" {
		t.Errorf("language = %q, want %q", gotReq.Language, "en")
	}
}

func TestSynthesize_XTTSRequiresVoice(t *testing.T) {
	p, err := New("http://localhost:8002", WithAPIMode(APIModeXTTS))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "Hello."}); err == nil {
		t.Fatal("expected error for missing XTTS voice, got nil")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, err := New("http://localhost:5002")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "  "}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("error = %v, want ErrEmptyText", err)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi."}); err == nil {
		t.Fatal("expected error for non-200 response, got nil")
	}
}

func TestSynthesize_EmptyClip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi."}); err == nil {
		t.Fatal("expected error for empty clip, got nil")
	}
}
