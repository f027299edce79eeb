package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aurabot/aura/internal/ollama"
	"github.com/aurabot/aura/internal/retrieval"
)

// llm is the slice of the generation gateway the extractor needs.
type llm interface {
	CompleteWithTools(ctx context.Context, messages []ollama.Message, tools []ollama.Tool) (*ollama.ToolCall, error)
}

// Extractor turns a request plus candidate contexts into a single action
// tool call. The four action tools are offered simultaneously; the model
// picks one and binds it to a context, either by id from the candidate list
// or by naming a new one. A nil result means the model found no actionable
// intent, which the caller treats as a distinct terminal outcome.
type Extractor struct {
	llm    llm
	logger *slog.Logger
}

func New(llm llm) *Extractor {
	return &Extractor{llm: llm, logger: slog.Default()}
}

const systemPrompt = `You are the action extraction step of a personal assistant.
Read the user's message and call exactly one tool.

Context binding rules:
- The candidate contexts below were retrieved by semantic search. If one of
  them genuinely covers the message topic, pass its id as context_id.
- If none fits, pass a short descriptive new_context_name instead.
- Set exactly one of context_id / new_context_name, never both.

Use RFC 3339 timestamps for all dates. Resolve relative dates ("tomorrow",
"next Friday") against the current time given below.

If the message contains no actionable request, do not call any tool.`

// candidateView is the serialized shape of one candidate shown to the model.
type candidateView struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

var contextProps = map[string]ollama.SchemaProperty{
	"context_id": {
		Type:        "integer",
		Description: "ID of an existing candidate context this belongs to",
	},
	"new_context_name": {
		Type:        "string",
		Description: "Name for a new context when no candidate fits",
	},
}

func withContextProps(props map[string]ollama.SchemaProperty) map[string]ollama.SchemaProperty {
	merged := make(map[string]ollama.SchemaProperty, len(props)+len(contextProps))
	for k, v := range props {
		merged[k] = v
	}
	for k, v := range contextProps {
		merged[k] = v
	}
	return merged
}

// Tools returns the four action tools offered on every extraction call.
func Tools() []ollama.Tool {
	return []ollama.Tool{
		ollama.NewTool("create_task",
			"Record an actionable to-do item",
			&ollama.Schema{
				Type: "object",
				Properties: withContextProps(map[string]ollama.SchemaProperty{
					"content": {Type: "string", Description: "What needs to be done"},
					"due_date": {
						Type: "string", Format: "date-time",
						Description: "When the task is due, if the message says",
					},
				}),
				Required: []string{"content"},
			}),
		ollama.NewTool("store_note",
			"Store a piece of information with no action attached",
			&ollama.Schema{
				Type: "object",
				Properties: withContextProps(map[string]ollama.SchemaProperty{
					"content": {Type: "string", Description: "The information to remember"},
				}),
				Required: []string{"content"},
			}),
		ollama.NewTool("create_event",
			"Record a calendar event",
			&ollama.Schema{
				Type: "object",
				Properties: withContextProps(map[string]ollama.SchemaProperty{
					"title": {Type: "string", Description: "Event title"},
					"start_time": {
						Type: "string", Format: "date-time",
						Description: "When the event starts",
					},
					"end_time": {
						Type: "string", Format: "date-time",
						Description: "When the event ends, if known",
					},
					"location":    {Type: "string", Description: "Where the event happens"},
					"description": {Type: "string", Description: "Additional details"},
				}),
				Required: []string{"title", "start_time"},
			}),
		ollama.NewTool("query_context",
			"Retrieve everything stored in an existing context",
			&ollama.Schema{
				Type: "object",
				Properties: map[string]ollama.SchemaProperty{
					"context_id": {
						Type:        "integer",
						Description: "ID of the candidate context to read",
					},
				},
				Required: []string{"context_id"},
			}),
	}
}

// Extract returns the single action tool call for a request, or nil when the
// model declines. The contract that exactly one of context_id and
// new_context_name is populated is not enforced here; the execution step
// validates arguments and reports violations.
func (e *Extractor) Extract(ctx context.Context, message string, candidates []retrieval.ContextMatch, now time.Time) (*ollama.ToolCall, error) {
	views := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, candidateView{ID: c.ID, Name: c.Name, Summary: c.Summary})
	}
	serialized, err := json.Marshal(views)
	if err != nil {
		return nil, fmt.Errorf("serializing candidates: %w", err)
	}

	messages := []ollama.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(
			"Current time: %s\n\nCandidate contexts:\n%s\n\nMessage:\n%s",
			now.UTC().Format(time.RFC3339), serialized, message)},
	}

	call, err := e.llm.CompleteWithTools(ctx, messages, Tools())
	if err != nil {
		return nil, fmt.Errorf("extracting action: %w", err)
	}
	if call == nil {
		e.logger.Info("no actionable intent extracted")
		return nil, nil
	}
	return call, nil
}
