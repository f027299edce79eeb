package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/aurabot/aura/internal/config"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show aura system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError("config error: %v", err)
			return nil
		}

		client := &http.Client{Timeout: 2 * time.Second}

		var health struct {
			Status   string `json:"status"`
			Contexts int    `json:"contexts"`
			Tasks    int    `json:"tasks"`
			Notes    int    `json:"notes"`
			Events   int    `json:"events"`
		}
		serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
		resp, err := client.Get(serverURL + "/health")
		if err != nil {
			printStatus("Server", "stopped")
		} else if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		} else {
			if decodeErr := decodeJSON(resp, &health); decodeErr == nil {
				printStatus("Server", "running on port %d", cfg.Server.Port)
				printStatus("Contexts", "%d", health.Contexts)
				printStatus("Records", "%d tasks, %d notes, %d events", health.Tasks, health.Notes, health.Events)
			} else {
				printStatus("Server", "running on port %d (health unreadable)", cfg.Server.Port)
			}
		}

		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}

		printStatus("Chat model", "%s", cfg.Ollama.ChatModel)
		printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
		printStatus("Cloud model", "%s", cfg.Proxy.Model)
		printStatus("Mailbox", "%s", cfg.Mail.UserAddress)
		printStatus("Data dir", "%s", cfg.Storage.DataDir)
		return nil
	},
}

// --- contexts ---

var contextsCmd = &cobra.Command{
	Use:   "contexts",
	Short: "List stored contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get("/contexts")
		if err != nil {
			return err
		}

		var contexts []struct {
			ID          int64  `json:"id"`
			Name        string `json:"name"`
			Summary     string `json:"summary"`
			State       string `json:"state"`
			LastUpdated string `json:"last_updated"`
		}
		if err := decodeJSON(resp, &contexts); err != nil {
			return err
		}

		if len(contexts) == 0 {
			fmt.Println("No contexts stored yet.")
			return nil
		}

		for _, c := range contexts {
			state := c.State
			if state == "needs_summary" {
				state = colorize(colorYellow, state)
			}
			fmt.Printf("%s  %s  [%s]\n", colorize(colorCyan, fmt.Sprintf("#%d", c.ID)), colorize(colorBold, c.Name), state)
			if c.Summary != "" {
				summary := c.Summary
				if len(summary) > 120 {
					summary = summary[:120] + "..."
				}
				fmt.Printf("    %s\n", summary)
			}
		}
		return nil
	},
}

// --- records ---

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List recent records across all contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		contextID, _ := cmd.Flags().GetInt64("context")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/records?limit=%d", limit)
		if contextID > 0 {
			path = fmt.Sprintf("/contexts/%d/records", contextID)
		}
		resp, err := client.get(path)
		if err != nil {
			return err
		}

		var records []struct {
			Kind      string `json:"kind"`
			ID        int64  `json:"id"`
			Content   string `json:"content"`
			CreatedAt string `json:"created_at"`
		}
		if err := decodeJSON(resp, &records); err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No records found.")
			return nil
		}

		for _, r := range records {
			content := r.Content
			if len(content) > 80 {
				content = content[:80] + "..."
			}
			fmt.Printf("%s %s  %s  %s\n",
				colorize(colorCyan, fmt.Sprintf("%-5s", r.Kind)),
				colorize(colorBold, fmt.Sprintf("#%d", r.ID)),
				r.CreatedAt,
				content,
			)
		}
		return nil
	},
}

func init() {
	recordsCmd.Flags().Int("limit", 20, "maximum number of records to list")
	recordsCmd.Flags().Int64("context", 0, "list records for a single context id")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			if k.Secret {
				fmt.Printf("  %s = %s  (env-only: %s)\n", colorize(colorBold, k.Key), colorize(colorYellow, k.Value), k.EnvVar)
				continue
			}
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
