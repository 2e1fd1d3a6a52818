package whisper_test

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voxlane/voxlane/pkg/provider/stt"
	"github.com/voxlane/voxlane/pkg/provider/stt/whisper"
)

// makePCM returns n int16 samples of the given value as little-endian bytes.
func makePCM(n int, value int16) []byte {
	buf := make([]byte, n*2)
	for i := range n {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(value))
	}
	return buf
}

func TestNew_EmptyURL(t *testing.T) {
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty server URL, got nil")
	}
}

func TestTranscribe(t *testing.T) {
	var gotLang, gotModel string
	var gotWAV []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			http.Error(w, "bad multipart", http.StatusBadRequest)
			return
		}
		gotLang = r.FormValue("language")
		gotModel = r.FormValue("model")
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotWAV, _ = io.ReadAll(file)
		_, _ = w.Write([]byte(`{"text":"  xin chào thế giới  "}`))
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithModel("base"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pcm := makePCM(16000, 1000) // one second at 16 kHz
	tr, err := p.Transcribe(context.Background(), pcm, "vi")
	if err != nil {
		t.Fatalf("Transcribe: unexpected error: %v", err)
	}

	if tr.Text != "xin chào thế giới" {
		t.Errorf("text = %q, want trimmed %q", tr.Text, "xin chào thế giới")
	}
	if tr.Language != "vi" {
		t.Errorf("language = %q, want %q", tr.Language, "vi")
	}
	if tr.Duration != time.Second {
		t.Errorf("duration = %v, want %v", tr.Duration, time.Second)
	}
	if gotLang != "vi" {
		t.Errorf("language field = %q, want %q", gotLang, "vi")
	}
	if gotModel != "base" {
		t.Errorf("model field = %q, want %q", gotModel, "base")
	}
	if len(gotWAV) != 44+len(pcm) {
		t.Errorf("uploaded WAV = %d bytes, want %d (44-byte header + PCM)", len(gotWAV), 44+len(pcm))
	}
	if string(gotWAV[0:4]) != "RIFF" {
		t.Error("uploaded file is not a RIFF container")
	}
}

func TestTranscribe_DefaultLanguage(t *testing.T) {
	var gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(10 << 20)
		gotLang = r.FormValue("language")
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), makePCM(100, 1), ""); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if gotLang != "en" {
		t.Errorf("language field = %q, want configured default %q", gotLang, "en")
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	p, err := whisper.New("http://localhost:8080")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), nil, ""); !errors.Is(err, stt.ErrNoAudio) {
		t.Errorf("error = %v, want ErrNoAudio", err)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), makePCM(100, 1), ""); err == nil {
		t.Fatal("expected error for non-200 response, got nil")
	}
}

func TestTranscribe_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), makePCM(100, 1), ""); err == nil {
		t.Fatal("expected error for invalid JSON response, got nil")
	}
}

func TestTranscribe_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{"text":"late"}`))
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, makePCM(100, 1), ""); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}
