package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aurabot/aura/internal/ollama"
	"github.com/aurabot/aura/internal/retrieval"
)

// ErrContextUndetermined means the model failed to produce the required
// get_or_create_context call. Terminal for the request; not retried.
var ErrContextUndetermined = errors.New("context undetermined")

const defaultTopK = 3

// Resolution carries the formulated search query, its embedding, and the
// nearest stored contexts. The embedding is kept so the execution step can
// create a new context without re-embedding. An empty Candidates list is
// valid and means no stored context resembles the request.
type Resolution struct {
	Query      string
	Embedding  []float32
	Candidates []retrieval.ContextMatch
}

// llm is the slice of the generation gateway the resolver needs.
type llm interface {
	CompleteWithTools(ctx context.Context, messages []ollama.Message, tools []ollama.Tool) (*ollama.ToolCall, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// searcher is the similarity index lookup.
type searcher interface {
	Search(vector []float32, topK int) ([]retrieval.ContextMatch, error)
}

// Resolver finds the stored contexts most relevant to a request. It asks the
// model to formulate a retrieval query, embeds it, and runs a cosine search.
// No similarity threshold is applied here: judging whether the best match is
// good enough is left to action extraction, which sees the full candidate
// list alongside the original text.
type Resolver struct {
	llm    llm
	index  searcher
	topK   int
	logger *slog.Logger
}

// New creates a Resolver returning up to topK candidates per search.
// topK <= 0 falls back to the default of 3.
func New(llm llm, index searcher, topK int) *Resolver {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Resolver{llm: llm, index: index, topK: topK, logger: slog.Default()}
}

const systemPrompt = `You are the memory lookup step of a personal assistant.
Read the user's message and call get_or_create_context with a short query
string capturing the topic the message belongs to (for example "dentist
appointments" or "home renovation"). Always call the tool exactly once.`

var queryTool = ollama.NewTool("get_or_create_context",
	"Look up or create the memory context for a topic",
	&ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"query": {
				Type:        "string",
				Description: "Short topic phrase to search stored contexts with",
			},
		},
		Required: []string{"query"},
	})

// Resolve produces the candidate contexts for a request. Embedding failures
// propagate wrapped (never degraded to an empty result); a missing or wrong
// tool call yields ErrContextUndetermined.
func (r *Resolver) Resolve(ctx context.Context, message string) (*Resolution, error) {
	messages := []ollama.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: message},
	}

	call, err := r.llm.CompleteWithTools(ctx, messages, []ollama.Tool{queryTool})
	if err != nil {
		return nil, fmt.Errorf("formulating context query: %w", err)
	}
	if call == nil || call.Name != "get_or_create_context" {
		return nil, ErrContextUndetermined
	}
	query, _ := call.Arguments["query"].(string)
	if query == "" {
		return nil, ErrContextUndetermined
	}

	embedding, err := r.llm.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding context query: %w", err)
	}

	candidates, err := r.index.Search(embedding, r.topK)
	if err != nil {
		return nil, fmt.Errorf("searching contexts: %w", err)
	}

	r.logger.Debug("resolved context candidates", "query", query, "count", len(candidates))
	return &Resolution{Query: query, Embedding: embedding, Candidates: candidates}, nil
}
