package executor

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aurabot/aura/internal/ollama"
	"github.com/aurabot/aura/internal/record"
	"github.com/aurabot/aura/internal/router"
	"github.com/aurabot/aura/internal/storage"
)

// store is the slice of the persistence layer the executor needs.
type store interface {
	InsertRecord(r record.Record) (int64, error)
	CreateContext(name string, embedding []float32) (*storage.Context, error)
	GetContext(id int64) (*storage.Context, error)
	GetContextByName(name string) (*storage.Context, error)
	GetContentForContext(contextID int64) ([]storage.RecordSummary, error)
}

// Executor runs a validated action tool call against storage. Results are
// plain strings surfaced verbatim in user-facing replies; failures carry an
// "ERROR:" prefix instead of a structured error because the caller only
// needs the lexical distinction.
type Executor struct {
	store  store
	logger *slog.Logger
	now    func() time.Time
}

func New(store store) *Executor {
	return &Executor{store: store, logger: slog.Default(), now: time.Now}
}

// Execute validates and runs a single tool call. The RoutingDecision is
// authoritative for permanence and expiry; anything the extraction step
// thought about retention is ignored. embedding is the context-resolution
// query vector, used only when a new context must be created. Nothing
// escapes as a fault: panics during execution are converted to error strings.
func (e *Executor) Execute(call *ollama.ToolCall, decision *router.Decision, embedding []float32) (result string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic during execution", "tool", call.Name, "panic", r)
			result = fmt.Sprintf("ERROR: internal failure executing %s.", call.Name)
		}
	}()

	switch call.Name {
	case "query_context":
		return e.queryContext(call.Arguments)
	case "create_task", "store_note", "create_event":
		return e.createRecord(call, decision, embedding)
	default:
		return fmt.Sprintf("ERROR: unknown tool %q.", call.Name)
	}
}

// queryContext is the read-only path: everything in the context, no mutation.
func (e *Executor) queryContext(args map[string]any) string {
	id, ok := intArg(args, "context_id")
	if !ok {
		return "ERROR: query_context requires a context_id."
	}
	ctx, err := e.store.GetContext(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Sprintf("ERROR: context %d does not exist.", id)
		}
		e.logger.Error("fetching context failed", "context_id", id, "error", err)
		return fmt.Sprintf("ERROR: could not read context %d.", id)
	}

	records, err := e.store.GetContentForContext(id)
	if err != nil {
		e.logger.Error("fetching context records failed", "context_id", id, "error", err)
		return fmt.Sprintf("ERROR: could not read context %d.", id)
	}
	if len(records) == 0 {
		return fmt.Sprintf("Context '%s' is empty.", ctx.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Context '%s' contains %d record(s):\n", ctx.Name, len(records))
	for _, r := range records {
		fmt.Fprintf(&b, "- %s #%d (%s): %s\n", r.Kind, r.ID, r.CreatedAt.Format("2006-01-02"), r.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (e *Executor) createRecord(call *ollama.ToolCall, decision *router.Decision, embedding []float32) string {
	ctx, errStr := e.resolveContext(call.Arguments, embedding)
	if errStr != "" {
		return errStr
	}

	rec, errStr := e.buildRecord(call, decision, ctx.ID)
	if errStr != "" {
		return errStr
	}

	id, err := e.store.InsertRecord(rec)
	if err != nil {
		e.logger.Error("persisting record failed", "tool", call.Name, "context_id", ctx.ID, "error", err)
		return fmt.Sprintf("ERROR: could not save your %s.", strings.ToLower(string(rec.Kind)))
	}

	return fmt.Sprintf("CONFIRMED: %s #%d created successfully in Context: '%s'.", rec.Kind, id, ctx.Name)
}

// resolveContext binds the action to its context. Exactly one of context_id
// and new_context_name must be populated; this is where violations of the
// extraction contract surface.
func (e *Executor) resolveContext(args map[string]any, embedding []float32) (*storage.Context, string) {
	id, hasID := intArg(args, "context_id")
	name, hasName := stringArg(args, "new_context_name")

	switch {
	case hasID && hasName:
		return nil, "ERROR: both context_id and new_context_name were given; exactly one is required."
	case hasID:
		ctx, err := e.store.GetContext(id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// The candidate came from a search over data that has since
				// changed. A consistency fault, not a user error.
				e.logger.Error("candidate context vanished", "context_id", id)
				return nil, fmt.Sprintf("ERROR: critical: context %d no longer exists.", id)
			}
			e.logger.Error("fetching context failed", "context_id", id, "error", err)
			return nil, fmt.Sprintf("ERROR: could not resolve context %d.", id)
		}
		return ctx, ""
	case hasName:
		ctx, err := e.store.CreateContext(name, embedding)
		if errors.Is(err, storage.ErrContextExists) {
			// Lost a create race or the model named an existing context the
			// search missed. Reuse the existing row.
			existing, lookupErr := e.store.GetContextByName(name)
			if lookupErr != nil {
				e.logger.Error("re-resolving existing context failed", "name", name, "error", lookupErr)
				return nil, fmt.Sprintf("ERROR: could not resolve context '%s'.", name)
			}
			return existing, ""
		}
		if err != nil {
			e.logger.Error("creating context failed", "name", name, "error", err)
			return nil, fmt.Sprintf("ERROR: could not create context '%s'.", name)
		}
		return ctx, ""
	default:
		return nil, "ERROR: neither context_id nor new_context_name was given; exactly one is required."
	}
}

// buildRecord validates tool arguments and assembles the typed record,
// stamping permanence and expiry from the routing decision.
func (e *Executor) buildRecord(call *ollama.ToolCall, decision *router.Decision, contextID int64) (record.Record, string) {
	now := e.now().UTC()

	switch call.Name {
	case "create_task":
		content, ok := stringArg(call.Arguments, "content")
		if !ok {
			return record.Record{}, "ERROR: create_task requires content."
		}
		due, ok, errStr := timeArg(call.Arguments, "due_date", "create_task")
		if errStr != "" {
			return record.Record{}, errStr
		}
		t := record.Task{Content: content}
		if ok {
			t.DueDate = &due
		}
		return record.NewTask(t, decision.Permanence, now, decision.ExpiryDate, contextID), ""

	case "store_note":
		content, ok := stringArg(call.Arguments, "content")
		if !ok {
			return record.Record{}, "ERROR: store_note requires content."
		}
		return record.NewNote(record.Note{Content: content}, decision.Permanence, now, decision.ExpiryDate, contextID), ""

	case "create_event":
		title, ok := stringArg(call.Arguments, "title")
		if !ok {
			return record.Record{}, "ERROR: create_event requires a title."
		}
		start, ok, errStr := timeArg(call.Arguments, "start_time", "create_event")
		if errStr != "" {
			return record.Record{}, errStr
		}
		if !ok {
			return record.Record{}, "ERROR: create_event requires a start_time."
		}
		ev := record.Event{Title: title, StartTime: start}
		if end, ok, errStr := timeArg(call.Arguments, "end_time", "create_event"); errStr != "" {
			return record.Record{}, errStr
		} else if ok {
			ev.EndTime = &end
		}
		ev.Location, _ = stringArg(call.Arguments, "location")
		ev.Description, _ = stringArg(call.Arguments, "description")
		return record.NewEvent(ev, decision.Permanence, now, decision.ExpiryDate, contextID), ""
	}

	return record.Record{}, fmt.Sprintf("ERROR: unknown tool %q.", call.Name)
}

// stringArg extracts a non-empty string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// intArg extracts an integer argument. Decoded JSON numbers arrive as
// float64; string-encoded integers from cloud tool calls are accepted too.
func intArg(args map[string]any, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		var i int64
		if _, err := fmt.Sscanf(strings.TrimSpace(v), "%d", &i); err == nil {
			return i, true
		}
	}
	return 0, false
}

// timeArg extracts an optional RFC 3339 timestamp argument. Returns an error
// string when the value is present but unparseable.
func timeArg(args map[string]any, key, tool string) (time.Time, bool, string) {
	s, ok := args[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return time.Time{}, false, ""
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Sprintf("ERROR: %s received unparseable %s %q.", tool, key, s)
	}
	return t, true, ""
}
