package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aurabot/aura/internal/ollama"
)

// ErrEmbedding wraps any embedding failure. Embedding has no fallback:
// vectors from different model families are not comparable, and mixing them
// would silently corrupt similarity search, so the error always propagates.
var ErrEmbedding = errors.New("embedding failed")

// Backend abstracts a text-generation backend. The local Ollama client and
// the cloud proxy both satisfy it through thin adapters, letting tests
// inject fakes.
type Backend interface {
	// Complete returns the assistant text for the given messages. When
	// jsonSchema is non-nil the backend is asked for schema-constrained output.
	Complete(ctx context.Context, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)

	// CompleteWithTools returns the first tool call the model makes, or nil
	// if the model declined to call any tool.
	CompleteWithTools(ctx context.Context, messages []ollama.Message, tools []ollama.Tool) (*ollama.ToolCall, error)
}

// Embedder generates embedding vectors. Only the local backend implements it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Gateway front-ends a primary (local) backend with a secondary (cloud)
// fallback for completions. The primary attempt is bounded by a timeout;
// any error or timeout triggers exactly one fallback attempt. Embedding
// never falls back.
type Gateway struct {
	primary        Backend
	secondary      Backend
	embedder       Embedder
	primaryTimeout time.Duration
	logger         *slog.Logger
}

// New creates a Gateway. secondary may be nil, in which case primary
// failures surface directly. primaryTimeout <= 0 defaults to 30s.
func New(primary, secondary Backend, embedder Embedder, primaryTimeout time.Duration) *Gateway {
	if primaryTimeout <= 0 {
		primaryTimeout = 30 * time.Second
	}
	return &Gateway{
		primary:        primary,
		secondary:      secondary,
		embedder:       embedder,
		primaryTimeout: primaryTimeout,
		logger:         slog.Default(),
	}
}

// Complete runs a completion against the primary backend, falling back to
// the secondary on any failure.
func (g *Gateway) Complete(ctx context.Context, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error) {
	primCtx, cancel := context.WithTimeout(ctx, g.primaryTimeout)
	text, err := g.primary.Complete(primCtx, messages, jsonSchema)
	cancel()
	if err == nil {
		return text, nil
	}
	if g.secondary == nil {
		return "", fmt.Errorf("primary completion failed: %w", err)
	}

	g.logger.Warn("primary backend failed, falling back", "error", err)
	text, err2 := g.secondary.Complete(ctx, messages, jsonSchema)
	if err2 != nil {
		return "", fmt.Errorf("both backends failed: primary: %v; fallback: %w", err, err2)
	}
	return text, nil
}

// CompleteJSON runs Complete and extracts the first balanced JSON object
// from the response text. Responses wrapped in code fences or surrounding
// prose are tolerated. A response with no parseable object yields a nil map
// and nil error; malformed model text is not a transport failure and must
// not escape this boundary as one.
func (g *Gateway) CompleteJSON(ctx context.Context, messages []ollama.Message, jsonSchema *ollama.Schema) (map[string]any, error) {
	text, err := g.Complete(ctx, messages, jsonSchema)
	if err != nil {
		return nil, err
	}
	obj, ok := ExtractJSONObject(text)
	if !ok {
		g.logger.Warn("completion contained no parseable JSON object", "response", truncate(text, 200))
		return nil, nil
	}
	return obj, nil
}

// CompleteWithTools runs a tool-calling completion with the same failover
// policy. A nil tool call with nil error means the model declined; declining
// is an answer, not a failure, and does not trigger fallback.
func (g *Gateway) CompleteWithTools(ctx context.Context, messages []ollama.Message, tools []ollama.Tool) (*ollama.ToolCall, error) {
	primCtx, cancel := context.WithTimeout(ctx, g.primaryTimeout)
	call, err := g.primary.CompleteWithTools(primCtx, messages, tools)
	cancel()
	if err == nil {
		return call, nil
	}
	if g.secondary == nil {
		return nil, fmt.Errorf("primary tool completion failed: %w", err)
	}

	g.logger.Warn("primary backend failed on tool call, falling back", "error", err)
	call, err2 := g.secondary.CompleteWithTools(ctx, messages, tools)
	if err2 != nil {
		return nil, fmt.Errorf("both backends failed: primary: %v; fallback: %w", err, err2)
	}
	return call, nil
}

// Embed returns the embedding vector for text using the local backend only.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return vec, nil
}

// EmbedBatch returns one embedding vector per input text, in order, using
// the local backend only. Like Embed, a failure never falls back.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := g.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	return vecs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// LocalBackend adapts the Ollama client to the Backend interface for a
// fixed model.
type LocalBackend struct {
	Client *ollama.Client
	Model  string
}

func (b *LocalBackend) Complete(ctx context.Context, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error) {
	return b.Client.Chat(ctx, b.Model, messages, jsonSchema)
}

func (b *LocalBackend) CompleteWithTools(ctx context.Context, messages []ollama.Message, tools []ollama.Tool) (*ollama.ToolCall, error) {
	return b.Client.ChatWithTools(ctx, b.Model, messages, tools)
}
