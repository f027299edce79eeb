package config

import (
	"fmt"
	"time"
)

type Config struct {
	Agent     AgentConfig
	Mail      MailConfig
	Ollama    OllamaConfig
	Proxy     ProxyConfig
	Storage   StorageConfig
	Scheduler SchedulerConfig
	Server    ServerConfig
	Log       LogConfig
}

type AgentConfig struct {
	PollInterval   string
	PrimaryTimeout string
	TopK           int
}

type MailConfig struct {
	UserAddress  string
	ClientID     string
	ClientSecret string
	RefreshToken string
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	Model            string
}

type StorageConfig struct {
	DataDir string
}

type SchedulerConfig struct {
	ReminderInterval string
	PurgeInterval    string
	SummaryInterval  string
}

type ServerConfig struct {
	Port       int
	AdminToken string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Agent: AgentConfig{
			PollInterval:   "60s",
			PrimaryTimeout: "30s",
			TopK:           3,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "mistral-nemo",
			EmbedModel: "nomic-embed-text",
		},
		Proxy: ProxyConfig{
			Model: "anthropic/claude-opus-4",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Scheduler: SchedulerConfig{
			ReminderInterval: "5m",
			PurgeInterval:    "1h",
			SummaryInterval:  "2m",
		},
		Server: ServerConfig{
			Port: 4000,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/aura/config.json, then applies AURA_* environment
// variable overrides. Secrets (API keys, OAuth credentials, tokens) are
// never stored in the file and must come from the environment.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Proxy.OpenRouterAPIKey == "" {
		return Config{}, fmt.Errorf("missing required config: OpenRouter API key. " +
			"Set it via environment variable AURA_OPENROUTER_API_KEY")
	}

	return cfg, nil
}

// ValidateMail checks that the Gmail OAuth credentials needed by the serve
// loop are present. Commands that never touch the mailbox skip this.
func (c Config) ValidateMail() error {
	missing := ""
	switch {
	case c.Mail.UserAddress == "":
		missing = "AURA_MAIL_USER_ADDRESS"
	case c.Mail.ClientID == "":
		missing = "AURA_MAIL_CLIENT_ID"
	case c.Mail.ClientSecret == "":
		missing = "AURA_MAIL_CLIENT_SECRET"
	case c.Mail.RefreshToken == "":
		missing = "AURA_MAIL_REFRESH_TOKEN"
	}
	if missing != "" {
		return fmt.Errorf("missing required config: set environment variable %s", missing)
	}
	return nil
}

// Duration parses a config duration string, falling back to def when the
// value is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
