package config

import (
	"strings"
	"testing"
	"time"
)

// mapBackend is an in-memory Backend for tests.
type mapBackend struct {
	strings map[string]string
	ints    map[string]int
}

func newMapBackend() *mapBackend {
	return &mapBackend{strings: make(map[string]string), ints: make(map[string]int)}
}

func (b *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *mapBackend) SetString(key, val string) error {
	b.strings[key] = val
	return nil
}

func (b *mapBackend) SetInt(key string, val int) error {
	b.ints[key] = val
	return nil
}

func (b *mapBackend) Delete(key string) error {
	delete(b.strings, key)
	delete(b.ints, key)
	return nil
}

func TestLoadWith_Defaults(t *testing.T) {
	t.Setenv("AURA_OPENROUTER_API_KEY", "sk-or-test")

	cfg, err := loadWith(newMapBackend())
	if err != nil {
		t.Fatalf("loadWith() error = %v", err)
	}
	if cfg.Agent.PollInterval != "60s" {
		t.Errorf("PollInterval = %q, want 60s", cfg.Agent.PollInterval)
	}
	if cfg.Agent.TopK != 3 {
		t.Errorf("TopK = %d, want 3", cfg.Agent.TopK)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Port = %d, want 4000", cfg.Server.Port)
	}
}

func TestLoadWith_MissingAPIKeyFails(t *testing.T) {
	t.Setenv("AURA_OPENROUTER_API_KEY", "")

	_, err := loadWith(newMapBackend())
	if err == nil {
		t.Fatal("loadWith() error = nil, want missing API key error")
	}
	if !strings.Contains(err.Error(), "AURA_OPENROUTER_API_KEY") {
		t.Errorf("error = %v, want mention of the env var to set", err)
	}
}

func TestLoadWith_BackendValuesOverrideDefaults(t *testing.T) {
	t.Setenv("AURA_OPENROUTER_API_KEY", "sk-or-test")

	b := newMapBackend()
	b.strings["ollama.chat_model"] = "llama3.1"
	b.ints["server.port"] = 8080

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith() error = %v", err)
	}
	if cfg.Ollama.ChatModel != "llama3.1" {
		t.Errorf("ChatModel = %q, want llama3.1", cfg.Ollama.ChatModel)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadWith_EnvOverridesBackend(t *testing.T) {
	t.Setenv("AURA_OPENROUTER_API_KEY", "sk-or-test")
	t.Setenv("AURA_OLLAMA_CHAT_MODEL", "qwen2.5")

	b := newMapBackend()
	b.strings["ollama.chat_model"] = "llama3.1"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith() error = %v", err)
	}
	if cfg.Ollama.ChatModel != "qwen2.5" {
		t.Errorf("ChatModel = %q, want the env override", cfg.Ollama.ChatModel)
	}
}

func TestLoadWith_SecretsNeverReadFromBackend(t *testing.T) {
	t.Setenv("AURA_OPENROUTER_API_KEY", "sk-or-env")

	b := newMapBackend()
	b.strings["proxy.openrouter_api_key"] = "sk-or-file"
	b.strings["mail.refresh_token"] = "file-token"

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("loadWith() error = %v", err)
	}
	if cfg.Proxy.OpenRouterAPIKey != "sk-or-env" {
		t.Errorf("OpenRouterAPIKey = %q, want the environment value only", cfg.Proxy.OpenRouterAPIKey)
	}
	if cfg.Mail.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty: secrets are env-only", cfg.Mail.RefreshToken)
	}
}

func TestValidateMail(t *testing.T) {
	cfg := Config{Mail: MailConfig{
		UserAddress:  "me@example.com",
		ClientID:     "id",
		ClientSecret: "secret",
		RefreshToken: "token",
	}}
	if err := cfg.ValidateMail(); err != nil {
		t.Errorf("ValidateMail() error = %v, want nil for complete credentials", err)
	}

	cfg.Mail.RefreshToken = ""
	err := cfg.ValidateMail()
	if err == nil {
		t.Fatal("ValidateMail() error = nil, want error for missing refresh token")
	}
	if !strings.Contains(err.Error(), "AURA_MAIL_REFRESH_TOKEN") {
		t.Errorf("error = %v, want mention of the missing env var", err)
	}
}

func TestSetKey_UnknownKeyListsValidKeys(t *testing.T) {
	err := SetKey("ollama.chat_mdoel", "mistral-nemo")
	if err == nil {
		t.Fatal("SetKey() error = nil, want error for unknown key")
	}
	if !strings.Contains(err.Error(), "ollama.chat_model") {
		t.Errorf("error = %v, want the valid key names listed", err)
	}
	if strings.Contains(err.Error(), "mail.client_secret") {
		t.Errorf("error = %v, secret keys must not be offered for SetKey", err)
	}
}

func TestSetKey_SecretRejected(t *testing.T) {
	err := SetKey("mail.refresh_token", "rt-123")
	if err == nil {
		t.Fatal("SetKey() error = nil, want error for secret key")
	}
	if !strings.Contains(err.Error(), "AURA_MAIL_REFRESH_TOKEN") {
		t.Errorf("error = %v, want pointer to the env var", err)
	}
}

func TestDuration(t *testing.T) {
	if got := Duration("90s", time.Minute); got != 90*time.Second {
		t.Errorf("Duration(90s) = %v, want 90s", got)
	}
	if got := Duration("", time.Minute); got != time.Minute {
		t.Errorf("Duration(empty) = %v, want the default", got)
	}
	if got := Duration("soon", time.Minute); got != time.Minute {
		t.Errorf("Duration(malformed) = %v, want the default", got)
	}
	if got := Duration("-5s", time.Minute); got != time.Minute {
		t.Errorf("Duration(negative) = %v, want the default", got)
	}
}
