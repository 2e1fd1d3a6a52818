package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/voxlane/voxlane/pkg/provider/tts"
	ttsmock "github.com/voxlane/voxlane/pkg/provider/tts/mock"
)

func TestTTSFallback_PrimarySuccess(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeResult: []byte("primary-clip")}
	secondary := &ttsmock.Provider{SynthesizeResult: []byte("fallback-clip")}

	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{Threshold: 3},
	})
	fb.AddFallback("openai", secondary)

	clip, err := fb.Synthesize(context.Background(), tts.Request{Text: "Xin chào."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(clip) != "primary-clip" {
		t.Fatalf("clip = %q, want primary-clip", clip)
	}
	if len(primary.Calls()) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls()))
	}
	if len(secondary.Calls()) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls()))
	}
}

func TestTTSFallback_Failover(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{SynthesizeResult: []byte("fallback-clip")}

	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{Threshold: 3},
	})
	fb.AddFallback("openai", secondary)

	req := tts.Request{Text: "Hôm nay trời đẹp.", Context: "Xin chào."}
	clip, err := fb.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(clip) != "fallback-clip" {
		t.Fatalf("clip = %q, want fallback-clip", clip)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Fatalf("calls = %d/%d, want exactly one call each",
			len(primary.Calls()), len(secondary.Calls()))
	}
	// The fallback receives the same request, continuity context included.
	got := secondary.Calls()[0].Req
	if got.Text != req.Text || got.Context != req.Context {
		t.Fatalf("fallback req = %+v, want %+v", got, req)
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}
	secondary := &ttsmock.Provider{SynthesizeErr: errors.New("secondary down")}

	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{Threshold: 3},
	})
	fb.AddFallback("openai", secondary)

	_, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 1 {
		t.Fatalf("calls = %d/%d, want exactly one attempt each",
			len(primary.Calls()), len(secondary.Calls()))
	}
}

func TestTTSFallback_NoFallbackConfigured(t *testing.T) {
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("primary down")}

	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{Threshold: 3},
	})

	_, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_Backends(t *testing.T) {
	fb := NewTTSFallback(&ttsmock.Provider{}, "elevenlabs", FallbackConfig{})
	fb.AddFallback("openai", &ttsmock.Provider{})

	got := fb.Backends()
	want := []string{"elevenlabs", "openai"}
	if len(got) != len(want) {
		t.Fatalf("Backends() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Backends()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
