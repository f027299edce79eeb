package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aurabot/aura/internal/storage"
)

// Pipeline runs the full capture pipeline on raw text, exactly as if the
// text had arrived by mail, and returns the user-facing result.
type Pipeline interface {
	ProcessText(ctx context.Context, text string) string
}

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    AdminStore
	Pipeline Pipeline
}

// NewMCPServer creates an MCP server exposing the assistant over stdio, so
// MCP-speaking clients can capture and query without going through email.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"aura",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("aura is a personal assistant memory: capture tasks, notes, and events into named contexts and query them back."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("capture",
			mcp.WithDescription("Run a natural-language request through the assistant pipeline: classify it, resolve its context, and store the resulting task, note, or event."),
			mcp.WithString("text", mcp.Description("The request text, as the user would have emailed it"), mcp.Required()),
		),
		mcpCapture(deps),
	)

	s.AddTool(
		mcp.NewTool("query_context",
			mcp.WithDescription("Return every record stored in a context."),
			mcp.WithNumber("context_id", mcp.Description("ID of the context to read"), mcp.Required()),
		),
		mcpQueryContext(deps),
	)

	s.AddTool(
		mcp.NewTool("list_contexts",
			mcp.WithDescription("List all stored contexts with their summaries."),
		),
		mcpListContexts(deps),
	)

	return s
}

func mcpCapture(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcpError("text is required"), nil
		}
		return mcpText(deps.Pipeline.ProcessText(ctx, text)), nil
	}
}

func mcpQueryContext(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := req.GetInt("context_id", 0)
		if id <= 0 {
			return mcpError("context_id is required"), nil
		}

		c, err := deps.Store.GetContext(int64(id))
		if errors.Is(err, storage.ErrNotFound) {
			return mcpError(fmt.Sprintf("context %d not found", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("failed to get context: %v", err)), nil
		}

		records, err := deps.Store.GetContentForContext(c.ID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list records: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"context": c.Name,
			"summary": c.Summary,
			"records": recordViews(records),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal records: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListContexts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		contexts, err := deps.Store.ListContexts()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list contexts: %v", err)), nil
		}

		views := make([]contextView, len(contexts))
		for i, c := range contexts {
			views[i] = contextView{
				ID:          c.ID,
				Name:        c.Name,
				Summary:     c.Summary,
				State:       string(c.State),
				LastUpdated: c.LastUpdated.Format(time.RFC3339),
			}
		}

		b, err := json.Marshal(views)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal contexts: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
