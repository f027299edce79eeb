package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/aurabot/aura/internal/agent"
	"github.com/aurabot/aura/internal/api"
	"github.com/aurabot/aura/internal/config"
	"github.com/aurabot/aura/internal/executor"
	"github.com/aurabot/aura/internal/extractor"
	"github.com/aurabot/aura/internal/gateway"
	"github.com/aurabot/aura/internal/mail"
	"github.com/aurabot/aura/internal/ollama"
	"github.com/aurabot/aura/internal/proxy"
	"github.com/aurabot/aura/internal/resolver"
	"github.com/aurabot/aura/internal/retrieval"
	"github.com/aurabot/aura/internal/router"
	"github.com/aurabot/aura/internal/scheduler"
	"github.com/aurabot/aura/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant: mail loop, background jobs, admin API, MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "aura version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateMail(); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Check local inference readiness, pulling missing models.
	ollamaClient := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, ollamaClient, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	// Generation gateway: local primary, cloud fallback, local-only embedding.
	embedder := retrieval.NewEmbedder(ollamaClient, cfg.Ollama.EmbedModel)
	local := &gateway.LocalBackend{Client: ollamaClient, Model: cfg.Ollama.ChatModel}
	cloud := proxy.NewClient(cfg.Proxy.OpenRouterAPIKey, cfg.Proxy.Model)
	gw := gateway.New(local, cloud, embedder, config.Duration(cfg.Agent.PrimaryTimeout, 30*time.Second))

	// Pipeline stages.
	index := retrieval.NewContextIndex(store.DB())
	transport := mail.NewGmail(cfg.Mail)
	ag := agent.New(
		transport,
		router.New(gw),
		resolver.New(gw, index, cfg.Agent.TopK),
		extractor.New(gw),
		executor.New(store),
		cloud,
		config.Duration(cfg.Agent.PollInterval, time.Minute),
	)

	sched := scheduler.New(store, transport, gw, scheduler.Intervals{
		Reminder: config.Duration(cfg.Scheduler.ReminderInterval, 5*time.Minute),
		Purge:    config.Duration(cfg.Scheduler.PurgeInterval, time.Hour),
		Summary:  config.Duration(cfg.Scheduler.SummaryInterval, 2*time.Minute),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewHandler(api.Deps{Store: store, Token: cfg.Server.AdminToken}),
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Pipeline: ag})
	stdioSrv := server.NewStdioServer(mcpSrv)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		ag.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		slog.Info("admin API listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	wg.Wait()
	return err
}
