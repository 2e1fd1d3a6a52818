package openai

import (
	"testing"

	"github.com/voxlane/voxlane/pkg/provider/llm"
	"github.com/voxlane/voxlane/pkg/types"
)

// TestConvertTurn_User checks that user turns become user message params.
func TestConvertTurn_User(t *testing.T) {
	param, err := convertTurn(types.Turn{Role: types.RoleUser, Text: "Hello!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

// TestConvertTurn_Assistant checks that assistant turns become assistant
// message params carrying their text.
func TestConvertTurn_Assistant(t *testing.T) {
	param, err := convertTurn(types.Turn{Role: types.RoleAssistant, Text: "Hi there!"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if got := param.OfAssistant.Content.OfString.Value; got != "Hi there!" {
		t.Errorf("expected content %q, got %q", "Hi there!", got)
	}
}

// TestConvertTurn_UnknownRole checks that unrecognised roles are rejected.
func TestConvertTurn_UnknownRole(t *testing.T) {
	if _, err := convertTurn(types.Turn{Role: "narrator", Text: "Once upon a time"}); err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

// TestBuildParams_Ordering checks that the system prompt leads, history
// follows in order, and the new message comes last.
func TestBuildParams_Ordering(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini", maxInputChars: defaultMaxInputChars}
	params, err := p.buildParams(llm.Request{
		System: "You are helpful.",
		History: []types.Turn{
			{Role: types.RoleUser, Text: "Hi"},
			{Role: types.RoleAssistant, Text: "Hello!"},
		},
		Message: "How are you?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected message 0 to be the system prompt")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected message 1 to be the history user turn")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected message 2 to be the history assistant turn")
	}
	if params.Messages[3].OfUser == nil {
		t.Error("expected message 3 to be the new user message")
	}
	if got := string(params.Model); got != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", got)
	}
}

// TestBuildParams_NoSystemPrompt checks that an empty system prompt adds no
// leading message.
func TestBuildParams_NoSystemPrompt(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini", maxInputChars: defaultMaxInputChars}
	params, err := p.buildParams(llm.Request{Message: "Hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(params.Messages))
	}
	if params.Messages[0].OfUser == nil {
		t.Error("expected the only message to be the user message")
	}
}

// TestBuildParams_Temperature checks that a non-zero temperature is forwarded
// and a zero temperature leaves the provider default in place.
func TestBuildParams_Temperature(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini", maxInputChars: defaultMaxInputChars}

	params, err := p.buildParams(llm.Request{Message: "Hi", Temperature: 0.9})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.9 {
		t.Errorf("expected temperature 0.9, got %+v", params.Temperature)
	}

	params, err = p.buildParams(llm.Request{Message: "Hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Temperature.Valid() {
		t.Errorf("expected unset temperature, got %+v", params.Temperature)
	}
}

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Error("expected error for empty API key, got nil")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model, got nil")
	}
	if _, err := New("sk-test", "gpt-4o-mini"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// TestStreamCompletion_MessageTooLong checks the input ceiling rejects
// over-length messages before any network call.
func TestStreamCompletion_MessageTooLong(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini", WithMaxInputChars(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := p.StreamCompletion(t.Context(), llm.Request{Message: "this message is longer than ten characters"}); err == nil {
		t.Fatal("expected error for over-length message, got nil")
	}
}
