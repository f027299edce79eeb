package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aurabot/aura/internal/ollama"
	"github.com/aurabot/aura/internal/record"
)

// Route selects which processing path handles a message.
type Route string

const (
	// RouteLocal covers structured capture: tasks, notes, events, lookups.
	RouteLocal Route = "local_processing"
	// RouteCloud covers open-ended synthesis: drafting, analysis, research.
	RouteCloud Route = "cloud_synthesis"
)

// Decision is the classification produced for each incoming message.
// ExpiryDate is set only for non-permanent decisions.
type Decision struct {
	Route      Route
	Permanence record.Permanence
	ExpiryDate *time.Time
}

// completer is the slice of the generation gateway the router needs.
type completer interface {
	CompleteJSON(ctx context.Context, messages []ollama.Message, jsonSchema *ollama.Schema) (map[string]any, error)
}

// Router classifies incoming messages into a processing route and a
// data-retention class using a schema-constrained completion.
type Router struct {
	llm    completer
	logger *slog.Logger
}

func New(llm completer) *Router {
	return &Router{llm: llm, logger: slog.Default()}
}

const systemPrompt = `You are a routing classifier for a personal assistant.
Classify the user's message and respond with JSON only.

Decide "request_type":
- "local_processing": the message captures or retrieves personal data (tasks, reminders, notes, calendar events, questions about stored information).
- "cloud_synthesis": the message asks for open-ended generation (drafting text, analysis, research, summarization of external content).

Decide "permanence":
- "permanent": worth keeping indefinitely (standing facts, preferences, long-lived commitments).
- "non-permanent": relevant only until a point in time. Provide "expiry_date" as an RFC 3339 timestamp for when it stops mattering.

Respond with a single JSON object and nothing else.`

// schema constrains the classifier output. expiry_date stays optional at the
// schema level; presence is enforced in code only for non-permanent results.
var schema = &ollama.Schema{
	Type: "object",
	Properties: map[string]ollama.SchemaProperty{
		"request_type": {
			Type:        "string",
			Description: "Processing route for the message",
			Enum:        []string{string(RouteLocal), string(RouteCloud)},
		},
		"permanence": {
			Type:        "string",
			Description: "Retention class of any captured data",
			Enum:        []string{"permanent", "non-permanent"},
		},
		"expiry_date": {
			Type:        "string",
			Description: "When a non-permanent item stops mattering",
			Format:      "date-time",
		},
	},
	Required: []string{"request_type", "permanence"},
}

// Classify routes a message. Returns nil (with nil error) when the model
// output is missing or invalid; the caller treats an unroutable message as
// a distinct terminal outcome, not a transport failure.
func (r *Router) Classify(ctx context.Context, message string, now time.Time) (*Decision, error) {
	messages := []ollama.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Current time: %s\n\nMessage:\n%s", now.UTC().Format(time.RFC3339), message)},
	}

	obj, err := r.llm.CompleteJSON(ctx, messages, schema)
	if err != nil {
		return nil, fmt.Errorf("routing classification: %w", err)
	}
	if obj == nil {
		r.logger.Warn("router produced no parseable decision")
		return nil, nil
	}

	rawType, _ := obj["request_type"].(string)
	rawPerm, _ := obj["permanence"].(string)

	route := Route(rawType)
	if route != RouteLocal && route != RouteCloud {
		r.logger.Warn("router returned unknown request_type", "value", rawType)
		return nil, nil
	}
	perm := record.Permanence(rawPerm)
	if !perm.Valid() {
		r.logger.Warn("router returned unknown permanence", "value", rawPerm)
		return nil, nil
	}

	d := &Decision{Route: route, Permanence: perm}

	// An expiry on a permanent decision is contradictory; the permanence
	// field wins and the expiry is dropped.
	if perm == record.NonPermanent {
		rawExpiry, _ := obj["expiry_date"].(string)
		if rawExpiry == "" {
			r.logger.Warn("non-permanent decision missing expiry_date")
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, rawExpiry)
		if err != nil {
			r.logger.Warn("router returned unparseable expiry_date", "value", rawExpiry)
			return nil, nil
		}
		// A non-permanent item must expire strictly after now; an expiry at
		// or before now would be purged on the next sweep without ever being
		// retrievable.
		if !t.After(now) {
			r.logger.Warn("router returned expiry_date not in the future", "value", rawExpiry)
			return nil, nil
		}
		d.ExpiryDate = &t
	}

	return d, nil
}
