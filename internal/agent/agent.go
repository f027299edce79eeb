package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/aurabot/aura/internal/gateway"
	"github.com/aurabot/aura/internal/mail"
	"github.com/aurabot/aura/internal/ollama"
	"github.com/aurabot/aura/internal/resolver"
	"github.com/aurabot/aura/internal/retrieval"
	"github.com/aurabot/aura/internal/router"
)

// Fixed replies for the terminal branches of the pipeline. Every message
// gets exactly one of these or an execution result; the user is never left
// without an answer.
const (
	replyUnroutable = "I had trouble understanding the intent of your message, so nothing was saved."
	replyUnreadable = "I couldn't read the content of your message, so nothing was saved."
	replyEmbedding  = "A critical embedding error occurred while processing your message. Nothing was saved."
	replyNoContext  = "I couldn't determine which topic your message belongs to, so nothing was saved."
	replyNoAction   = "I understood the topic of your message but found no actionable request, so nothing was saved."
	replySynthFail  = "I couldn't process that request right now. Please try again later."
)

// Consumer-side slices of each pipeline stage so tests inject fakes.

type classifier interface {
	Classify(ctx context.Context, message string, now time.Time) (*router.Decision, error)
}

type contextResolver interface {
	Resolve(ctx context.Context, message string) (*resolver.Resolution, error)
}

type actionExtractor interface {
	Extract(ctx context.Context, message string, candidates []retrieval.ContextMatch, now time.Time) (*ollama.ToolCall, error)
}

type actionExecutor interface {
	Execute(call *ollama.ToolCall, decision *router.Decision, embedding []float32) string
}

type completer interface {
	Complete(ctx context.Context, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Agent drives one message at a time through the pipeline: classify, resolve
// context, extract an action, execute it, reply. Each stage's failure mode
// maps to a distinct terminal reply, and the source message is archived
// exactly once no matter which branch fires.
type Agent struct {
	transport mail.Transport
	router    classifier
	resolver  contextResolver
	extractor actionExtractor
	executor  actionExecutor

	// synthesizer handles cloud_synthesis requests and confirmation
	// rewrites. May be nil; both uses degrade gracefully.
	synthesizer completer

	pollInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

func New(transport mail.Transport, rt classifier, rs contextResolver, ex actionExtractor, exec actionExecutor, synthesizer completer, pollInterval time.Duration) *Agent {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Agent{
		transport:    transport,
		router:       rt,
		resolver:     rs,
		extractor:    ex,
		executor:     exec,
		synthesizer:  synthesizer,
		pollInterval: pollInterval,
		logger:       slog.Default(),
		now:          time.Now,
	}
}

// Run polls the mailbox until ctx is cancelled, draining all unread messages
// on each tick. Messages are processed strictly one at a time.
func (a *Agent) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	a.logger.Info("agent started", "poll_interval", a.pollInterval)
	for {
		a.drainInbox(ctx)
		select {
		case <-ctx.Done():
			a.logger.Info("agent stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Agent) drainInbox(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := a.transport.FetchNextUnread(ctx)
		if err != nil {
			a.logger.Error("fetching unread mail failed", "error", err)
			return
		}
		if msg == nil {
			return
		}
		a.HandleIncoming(ctx, msg)
	}
}

// HandleIncoming processes a single message to one of its terminal states.
// It always sends exactly one reply and archives the message exactly once;
// a failed reply still archives, otherwise the message would be reprocessed
// forever.
func (a *Agent) HandleIncoming(ctx context.Context, msg *mail.Message) {
	reply := a.process(ctx, msg)

	if err := a.transport.SendReply(ctx, msg, reply); err != nil {
		a.logger.Error("sending reply failed", "message_id", msg.ID, "error", err)
	}
	if err := a.transport.Archive(ctx, msg); err != nil {
		a.logger.Error("archiving message failed", "message_id", msg.ID, "error", err)
	}
}

// process parses the message body and runs the pipeline, returning the reply
// text for its terminal state.
func (a *Agent) process(ctx context.Context, msg *mail.Message) string {
	body, err := a.transport.ParseBody(ctx, msg)
	if err != nil {
		a.logger.Warn("unreadable message body", "message_id", msg.ID, "error", err)
		return replyUnreadable
	}
	return a.ProcessText(ctx, body)
}

// ProcessText runs the pipeline on raw request text and returns the
// user-facing result. This is the transport-independent core, also exposed
// through the MCP capture tool. All failure handling happens here; callers
// only deliver the reply.
func (a *Agent) ProcessText(ctx context.Context, body string) string {
	now := a.now()

	decision, err := a.router.Classify(ctx, body, now)
	if err != nil || decision == nil {
		if err != nil {
			a.logger.Error("routing failed", "error", err)
		}
		return replyUnroutable
	}

	if decision.Route == router.RouteCloud {
		return a.synthesize(ctx, body)
	}

	resolution, err := a.resolver.Resolve(ctx, body)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrEmbedding):
			a.logger.Error("embedding failed", "error", err)
			return replyEmbedding
		case errors.Is(err, resolver.ErrContextUndetermined):
			a.logger.Warn("context undetermined")
			return replyNoContext
		default:
			a.logger.Error("context resolution failed", "error", err)
			return replyNoContext
		}
	}

	call, err := a.extractor.Extract(ctx, body, resolution.Candidates, now)
	if err != nil {
		a.logger.Error("action extraction failed", "error", err)
		return replyNoAction
	}
	if call == nil {
		return replyNoAction
	}

	result := a.executor.Execute(call, decision, resolution.Embedding)
	if strings.HasPrefix(result, "ERROR:") {
		return result
	}
	return a.rewrite(ctx, body, result)
}

// synthesize answers an open-ended request directly, with no persistence.
func (a *Agent) synthesize(ctx context.Context, body string) string {
	if a.synthesizer == nil {
		return replySynthFail
	}
	answer, err := a.synthesizer.Complete(ctx, []ollama.Message{
		{Role: "system", Content: "You are a helpful personal assistant. Answer the user's message directly and concisely."},
		{Role: "user", Content: body},
	}, nil)
	if err != nil || strings.TrimSpace(answer) == "" {
		a.logger.Error("synthesis failed", "error", err)
		return replySynthFail
	}
	return answer
}

// rewrite turns a raw confirmation into a natural reply. Best effort: any
// failure falls back to the confirmation verbatim rather than blocking.
func (a *Agent) rewrite(ctx context.Context, request, confirmation string) string {
	if a.synthesizer == nil {
		return confirmation
	}
	reply, err := a.synthesizer.Complete(ctx, []ollama.Message{
		{Role: "system", Content: "Rewrite the assistant's confirmation below as a short, friendly reply to the user's message. Keep every factual detail (record type, number, context name). Output only the reply text."},
		{Role: "user", Content: "User message:\n" + request + "\n\nConfirmation:\n" + confirmation},
	}, nil)
	if err != nil || strings.TrimSpace(reply) == "" {
		a.logger.Warn("reply rewrite failed, sending raw confirmation", "error", err)
		return confirmation
	}
	return strings.TrimSpace(reply)
}
