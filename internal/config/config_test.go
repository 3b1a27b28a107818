package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"client_id": "client-123",
		"token_path": "/tmp/token.json"
	}`)

	cfg, err := LoadConfig(path, "", "", "")
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if cfg.Tenant != "common" {
		t.Errorf("Expected default tenant common, got %q", cfg.Tenant)
	}
	if cfg.PollInterval() != 5*time.Minute {
		t.Errorf("Expected default poll interval 5m, got %v", cfg.PollInterval())
	}
	if cfg.TickInterval() != 30*time.Second {
		t.Errorf("Expected default tick interval 30s, got %v", cfg.TickInterval())
	}
	if cfg.LeadTime() != 10*time.Minute {
		t.Errorf("Expected default lead time 10m, got %v", cfg.LeadTime())
	}
	if cfg.Retention() != time.Hour {
		t.Errorf("Expected default retention 1h, got %v", cfg.Retention())
	}
	if cfg.LimitDays != 7 {
		t.Errorf("Expected default limit of 7 days, got %d", cfg.LimitDays)
	}
	if cfg.Multiplexer != "zellij" {
		t.Errorf("Expected default multiplexer zellij, got %q", cfg.Multiplexer)
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfigFile(t, `{
		"client_id": "client-123",
		"token_path": "/tmp/token.json",
		"tenant": "my-org",
		"refresh_period_seconds": 60,
		"notification_lead_minutes": 5,
		"multiplexer": "tmux"
	}`)

	cfg, err := LoadConfig(path, "", "", "")
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if cfg.Tenant != "my-org" {
		t.Errorf("Expected tenant my-org, got %q", cfg.Tenant)
	}
	if cfg.PollInterval() != time.Minute {
		t.Errorf("Expected poll interval 1m, got %v", cfg.PollInterval())
	}
	if cfg.LeadTime() != 5*time.Minute {
		t.Errorf("Expected lead time 5m, got %v", cfg.LeadTime())
	}
	if cfg.Multiplexer != "tmux" {
		t.Errorf("Expected multiplexer tmux, got %q", cfg.Multiplexer)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"client_id": "from-file",
		"token_path": "/tmp/token.json",
		"refresh_period_seconds": 60
	}`)

	t.Setenv("CALNOTIFY_CLIENT_ID", "from-env")
	t.Setenv("CALNOTIFY_REFRESH_PERIOD_SECONDS", "120")

	cfg, err := LoadConfig(path, "", "", "")
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if cfg.ClientID != "from-env" {
		t.Errorf("Expected the env var to win over the file, got %q", cfg.ClientID)
	}
	if cfg.RefreshPeriodSeconds != 120 {
		t.Errorf("Expected refresh period 120, got %d", cfg.RefreshPeriodSeconds)
	}
}

func TestLoadConfig_FlagOverridesEnv(t *testing.T) {
	t.Setenv("CALNOTIFY_CLIENT_ID", "from-env")
	t.Setenv("CALNOTIFY_TOKEN_PATH", "/tmp/env-token.json")

	cfg, err := LoadConfig("", "from-flag", "", "")
	if err != nil {
		t.Fatalf("LoadConfig() returned an error: %v", err)
	}

	if cfg.ClientID != "from-flag" {
		t.Errorf("Expected the flag to win over the env var, got %q", cfg.ClientID)
	}
	if cfg.TokenPath != "/tmp/env-token.json" {
		t.Errorf("Expected the env token path, got %q", cfg.TokenPath)
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing client_id", `{"token_path": "/tmp/token.json"}`},
		{"missing token_path", `{"client_id": "client-123"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.content)
			if _, err := LoadConfig(path, "", "", ""); err == nil {
				t.Error("Expected an error for missing required value")
			}
		})
	}
}

func TestLoadConfig_BadMultiplexer(t *testing.T) {
	path := writeConfigFile(t, `{
		"client_id": "client-123",
		"token_path": "/tmp/token.json",
		"multiplexer": "screen"
	}`)

	if _, err := LoadConfig(path, "", "", ""); err == nil {
		t.Error("Expected an error for an unsupported multiplexer")
	}
}

func TestLoadConfig_BadIntEnv(t *testing.T) {
	t.Setenv("CALNOTIFY_LIMIT_DAYS", "not-a-number")

	if _, err := LoadConfig("", "client-123", "/tmp/token.json", ""); err == nil {
		t.Error("Expected an error for a malformed integer env var")
	}
}
