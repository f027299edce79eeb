package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aurabot/aura/internal/ollama"
	"github.com/aurabot/aura/internal/retrieval"
)

type mockLLM struct {
	call     *ollama.ToolCall
	err      error
	gotMsgs  []ollama.Message
	gotTools []ollama.Tool
}

func (m *mockLLM) CompleteWithTools(ctx context.Context, messages []ollama.Message, tools []ollama.Tool) (*ollama.ToolCall, error) {
	m.gotMsgs = messages
	m.gotTools = tools
	return m.call, m.err
}

var testNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func TestExtract_ReturnsToolCall(t *testing.T) {
	llm := &mockLLM{call: &ollama.ToolCall{
		Name:      "create_task",
		Arguments: map[string]any{"content": "call the dentist", "new_context_name": "Dentist"},
	}}
	e := New(llm)

	call, err := e.Extract(context.Background(), "remind me to call the dentist", nil, testNow)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if call == nil || call.Name != "create_task" {
		t.Fatalf("Extract() = %+v, want create_task call", call)
	}
	if len(llm.gotTools) != 4 {
		t.Errorf("offered %d tools, want 4", len(llm.gotTools))
	}
}

func TestExtract_CandidatesSerializedIntoPrompt(t *testing.T) {
	llm := &mockLLM{call: &ollama.ToolCall{Name: "query_context", Arguments: map[string]any{"context_id": float64(5)}}}
	e := New(llm)

	candidates := []retrieval.ContextMatch{
		{ID: 5, Name: "Project Phoenix", Summary: "Launch planning for Q4."},
	}
	if _, err := e.Extract(context.Background(), "what's the status of Project Phoenix", candidates, testNow); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if len(llm.gotMsgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(llm.gotMsgs))
	}
	user := llm.gotMsgs[1].Content
	if !strings.Contains(user, `"Project Phoenix"`) {
		t.Errorf("user message missing candidate name: %q", user)
	}
	if !strings.Contains(user, `"id":5`) {
		t.Errorf("user message missing candidate id: %q", user)
	}
	if !strings.Contains(user, testNow.Format(time.RFC3339)) {
		t.Errorf("user message missing current time: %q", user)
	}
}

func TestExtract_EmptyCandidateListSerializesAsEmptyArray(t *testing.T) {
	llm := &mockLLM{call: &ollama.ToolCall{Name: "store_note", Arguments: map[string]any{"content": "x", "new_context_name": "Misc"}}}
	e := New(llm)

	if _, err := e.Extract(context.Background(), "note this down", nil, testNow); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !strings.Contains(llm.gotMsgs[1].Content, "[]") {
		t.Errorf("user message missing empty candidate list: %q", llm.gotMsgs[1].Content)
	}
}

func TestExtract_DeclineReturnsNil(t *testing.T) {
	e := New(&mockLLM{call: nil})

	call, err := e.Extract(context.Background(), "thanks!", nil, testNow)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if call != nil {
		t.Errorf("Extract() = %+v, want nil for decline", call)
	}
}

func TestExtract_TransportErrorPropagates(t *testing.T) {
	e := New(&mockLLM{err: errors.New("both backends failed")})

	if _, err := e.Extract(context.Background(), "message", nil, testNow); err == nil {
		t.Fatal("Extract() error = nil, want transport error")
	}
}
