package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "agent.poll_interval", typ: kString, env: "AURA_AGENT_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Agent.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.PollInterval },
	},
	{
		key: "agent.primary_timeout", typ: kString, env: "AURA_AGENT_PRIMARY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Agent.PrimaryTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Agent.PrimaryTimeout },
	},
	{
		key: "agent.top_k", typ: kInt, env: "AURA_AGENT_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Agent.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Agent.TopK },
	},
	{
		key: "mail.user_address", typ: kString, env: "AURA_MAIL_USER_ADDRESS",
		apply:   func(cfg *Config, v any) { cfg.Mail.UserAddress = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.UserAddress },
	},
	{
		key: "mail.client_id", typ: kString, env: "AURA_MAIL_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Mail.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.ClientID },
	},
	{
		key: "mail.client_secret", typ: kString, env: "AURA_MAIL_CLIENT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Mail.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.ClientSecret },
	},
	{
		key: "mail.refresh_token", typ: kString, env: "AURA_MAIL_REFRESH_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Mail.RefreshToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.RefreshToken },
	},
	{
		key: "ollama.base_url", typ: kString, env: "AURA_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "AURA_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "AURA_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "AURA_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.model", typ: kString, env: "AURA_PROXY_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.Model },
	},
	{
		key: "storage.data_dir", typ: kString, env: "AURA_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "scheduler.reminder_interval", typ: kString, env: "AURA_SCHEDULER_REMINDER_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Scheduler.ReminderInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Scheduler.ReminderInterval },
	},
	{
		key: "scheduler.purge_interval", typ: kString, env: "AURA_SCHEDULER_PURGE_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Scheduler.PurgeInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Scheduler.PurgeInterval },
	},
	{
		key: "scheduler.summary_interval", typ: kString, env: "AURA_SCHEDULER_SUMMARY_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Scheduler.SummaryInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Scheduler.SummaryInterval },
	},
	{
		key: "server.port", typ: kInt, env: "AURA_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.admin_token", typ: kString, env: "AURA_SERVER_ADMIN_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.AdminToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AdminToken },
	},
	{
		key: "log.level", typ: kString, env: "AURA_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
