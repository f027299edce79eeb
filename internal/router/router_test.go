package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aurabot/aura/internal/ollama"
	"github.com/aurabot/aura/internal/record"
)

// mockCompleter implements the completer interface for testing.
type mockCompleter struct {
	obj map[string]any
	err error
}

func (m *mockCompleter) CompleteJSON(ctx context.Context, messages []ollama.Message, jsonSchema *ollama.Schema) (map[string]any, error) {
	return m.obj, m.err
}

var testNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

func TestClassify_LocalPermanent(t *testing.T) {
	r := New(&mockCompleter{obj: map[string]any{
		"request_type": "local_processing",
		"permanence":   "permanent",
	}})

	d, err := r.Classify(context.Background(), "remember that I prefer aisle seats", testNow)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d == nil {
		t.Fatal("Classify() = nil, want decision")
	}
	if d.Route != RouteLocal {
		t.Errorf("Route = %q, want %q", d.Route, RouteLocal)
	}
	if d.Permanence != record.Permanent {
		t.Errorf("Permanence = %q, want permanent", d.Permanence)
	}
	if d.ExpiryDate != nil {
		t.Errorf("ExpiryDate = %v, want nil for permanent", d.ExpiryDate)
	}
}

func TestClassify_NonPermanentCarriesExpiry(t *testing.T) {
	expiry := "2026-09-05T12:00:00Z"
	r := New(&mockCompleter{obj: map[string]any{
		"request_type": "local_processing",
		"permanence":   "non-permanent",
		"expiry_date":  expiry,
	}})

	d, err := r.Classify(context.Background(), "remind me to call the dentist tomorrow", testNow)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d == nil {
		t.Fatal("Classify() = nil, want decision")
	}
	if d.ExpiryDate == nil {
		t.Fatal("ExpiryDate = nil, want set for non-permanent")
	}
	want, _ := time.Parse(time.RFC3339, expiry)
	if !d.ExpiryDate.Equal(want) {
		t.Errorf("ExpiryDate = %v, want %v", d.ExpiryDate, want)
	}
}

func TestClassify_NonPermanentMissingExpiryIsInvalid(t *testing.T) {
	r := New(&mockCompleter{obj: map[string]any{
		"request_type": "local_processing",
		"permanence":   "non-permanent",
	}})

	d, err := r.Classify(context.Background(), "message", testNow)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d != nil {
		t.Errorf("Classify() = %+v, want nil for missing expiry", d)
	}
}

func TestClassify_PastExpiryIsInvalid(t *testing.T) {
	r := New(&mockCompleter{obj: map[string]any{
		"request_type": "local_processing",
		"permanence":   "non-permanent",
		"expiry_date":  "2020-01-01T00:00:00Z",
	}})

	d, err := r.Classify(context.Background(), "remind me about something", testNow)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d != nil {
		t.Errorf("Classify() = %+v, want nil for expiry in the past", d)
	}
}

func TestClassify_ExpiryEqualToNowIsInvalid(t *testing.T) {
	r := New(&mockCompleter{obj: map[string]any{
		"request_type": "local_processing",
		"permanence":   "non-permanent",
		"expiry_date":  testNow.Format(time.RFC3339),
	}})

	d, err := r.Classify(context.Background(), "message", testNow)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d != nil {
		t.Errorf("Classify() = %+v, want nil; expiry must be strictly after now", d)
	}
}

func TestClassify_PermanentDropsStrayExpiry(t *testing.T) {
	r := New(&mockCompleter{obj: map[string]any{
		"request_type": "cloud_synthesis",
		"permanence":   "permanent",
		"expiry_date":  "2026-09-05T12:00:00Z",
	}})

	d, err := r.Classify(context.Background(), "message", testNow)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d == nil {
		t.Fatal("Classify() = nil, want decision")
	}
	if d.ExpiryDate != nil {
		t.Errorf("ExpiryDate = %v, want dropped for permanent", d.ExpiryDate)
	}
}

func TestClassify_UnknownRequestType(t *testing.T) {
	r := New(&mockCompleter{obj: map[string]any{
		"request_type": "maybe_later",
		"permanence":   "permanent",
	}})

	d, err := r.Classify(context.Background(), "message", testNow)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d != nil {
		t.Errorf("Classify() = %+v, want nil for unknown request_type", d)
	}
}

func TestClassify_NoParseableOutput(t *testing.T) {
	r := New(&mockCompleter{obj: nil})

	d, err := r.Classify(context.Background(), "message", testNow)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if d != nil {
		t.Errorf("Classify() = %+v, want nil", d)
	}
}

func TestClassify_TransportErrorPropagates(t *testing.T) {
	r := New(&mockCompleter{err: errors.New("both backends failed")})

	if _, err := r.Classify(context.Background(), "message", testNow); err == nil {
		t.Fatal("Classify() error = nil, want transport error")
	}
}
