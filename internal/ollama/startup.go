package ollama

import (
	"context"
	"fmt"
	"io"
	"time"
)

// EnsureReady verifies the local inference stack before the agent starts:
// the server must be reachable, the chat and embedding models must be present
// (missing ones are pulled with progress written to w), and both are probed
// with a trivial request so the first real message doesn't pay the cold-load
// penalty. Probe failures are reported but non-fatal; a model that loads
// slowly will still serve once warm.
func EnsureReady(ctx context.Context, c *Client, chatModel, embedModel string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not reachable at the configured base URL. Start it with: ollama serve")
	}

	if err := ensureModel(ctx, c, chatModel, w); err != nil {
		return err
	}
	if err := ensureModel(ctx, c, embedModel, w); err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if _, err := c.Chat(probeCtx, chatModel, []Message{{Role: "user", Content: "ping"}}, nil); err != nil {
		fmt.Fprintf(w, "chat model %s: probe failed (non-fatal): %v\n", chatModel, err)
	} else {
		fmt.Fprintf(w, "chat model %s: warm\n", chatModel)
	}
	if _, err := c.Embed(probeCtx, embedModel, "ping"); err != nil {
		fmt.Fprintf(w, "embed model %s: probe failed (non-fatal): %v\n", embedModel, err)
	} else {
		fmt.Fprintf(w, "embed model %s: warm\n", embedModel)
	}

	return nil
}

// ensureModel pulls a model if it is not already present locally.
func ensureModel(ctx context.Context, c *Client, model string, w io.Writer) error {
	if c.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: present\n", model)
		return nil
	}

	fmt.Fprintf(w, "model %s: not found locally, pulling...\n", model)
	lastStatus := ""
	err := c.PullModel(ctx, model, func(p PullProgress) {
		switch {
		case p.Total > 0:
			fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, float64(p.Completed)/float64(p.Total)*100)
		case p.Status != lastStatus:
			// Progress lines without byte counts repeat; print each status once.
			fmt.Fprintf(w, "  %s\n", p.Status)
		}
		lastStatus = p.Status
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	fmt.Fprintf(w, "model %s: pulled\n", model)
	return nil
}
