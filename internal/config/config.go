package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults for everything optional. Lead time and retention come from here
// rather than hard-coded literals at the use sites.
const (
	DefaultTenant              = "common"
	DefaultRefreshPeriodSec    = 300
	DefaultTickPeriodSec       = 30
	DefaultNotificationLeadMin = 10
	DefaultRetentionMin        = 60
	DefaultLimitDays           = 7
	DefaultAuthTimeoutSec      = 300
	DefaultMultiplexer         = "zellij"
)

// Config holds the immutable runtime configuration. Values are fixed at
// construction; nothing mutates them afterwards.
type Config struct {
	ClientID     string `json:"client_id"`
	Tenant       string `json:"tenant,omitempty"`
	GraphBaseURL string `json:"graph_base_url,omitempty"`
	TokenPath    string `json:"token_path"`

	RefreshPeriodSeconds    int `json:"refresh_period_seconds,omitempty"`
	TickPeriodSeconds       int `json:"tick_period_seconds,omitempty"`
	NotificationLeadMinutes int `json:"notification_lead_minutes,omitempty"`
	RetentionMinutes        int `json:"retention_minutes,omitempty"`
	LimitDays               int `json:"limit_days,omitempty"`
	AuthTimeoutSeconds      int `json:"auth_timeout_seconds,omitempty"`

	Multiplexer string `json:"multiplexer,omitempty"`
	ExportPath  string `json:"export_path,omitempty"`
}

// PollInterval is how often the sync engine polls the provider.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.RefreshPeriodSeconds) * time.Second
}

// TickInterval is how often the scheduler scans pending triggers.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickPeriodSeconds) * time.Second
}

// LeadTime is how long before an event's start its reminder fires.
func (c *Config) LeadTime() time.Duration {
	return time.Duration(c.NotificationLeadMinutes) * time.Minute
}

// Retention is how long finished events stay in the store before pruning.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

// AuthTimeout bounds the interactive consent flow.
func (c *Config) AuthTimeout() time.Duration {
	return time.Duration(c.AuthTimeoutSeconds) * time.Second
}

// LoadConfigFromFile loads configuration from a JSON file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to
// lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile, clientIDFlag, tokenPathFlag, multiplexerFlag string) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if clientID := os.Getenv("CALNOTIFY_CLIENT_ID"); clientID != "" {
		config.ClientID = clientID
	}
	if tenant := os.Getenv("CALNOTIFY_TENANT"); tenant != "" {
		config.Tenant = tenant
	}
	if baseURL := os.Getenv("CALNOTIFY_GRAPH_BASE_URL"); baseURL != "" {
		config.GraphBaseURL = baseURL
	}
	if tokenPath := os.Getenv("CALNOTIFY_TOKEN_PATH"); tokenPath != "" {
		config.TokenPath = tokenPath
	}
	if multiplexer := os.Getenv("CALNOTIFY_MULTIPLEXER"); multiplexer != "" {
		config.Multiplexer = multiplexer
	}

	intEnvs := []struct {
		name string
		dest *int
	}{
		{"CALNOTIFY_REFRESH_PERIOD_SECONDS", &config.RefreshPeriodSeconds},
		{"CALNOTIFY_TICK_PERIOD_SECONDS", &config.TickPeriodSeconds},
		{"CALNOTIFY_NOTIFICATION_LEAD_MINUTES", &config.NotificationLeadMinutes},
		{"CALNOTIFY_RETENTION_MINUTES", &config.RetentionMinutes},
		{"CALNOTIFY_LIMIT_DAYS", &config.LimitDays},
		{"CALNOTIFY_AUTH_TIMEOUT_SECONDS", &config.AuthTimeoutSeconds},
	}
	for _, env := range intEnvs {
		value := os.Getenv(env.name)
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value: %w", env.name, err)
		}
		*env.dest = parsed
	}

	// Step 3: Override with command-line flags (highest priority)
	if clientIDFlag != "" {
		config.ClientID = clientIDFlag
	}
	if tokenPathFlag != "" {
		config.TokenPath = tokenPathFlag
	}
	if multiplexerFlag != "" {
		config.Multiplexer = multiplexerFlag
	}

	// Step 4: Apply defaults and validate required fields
	if config.ClientID == "" {
		return nil, fmt.Errorf("client_id must be provided via --client-id flag, CALNOTIFY_CLIENT_ID environment variable, or config file")
	}
	if config.TokenPath == "" {
		return nil, fmt.Errorf("token_path must be provided via --token-path flag, CALNOTIFY_TOKEN_PATH environment variable, or config file")
	}

	if config.Tenant == "" {
		config.Tenant = DefaultTenant
	}
	if config.RefreshPeriodSeconds == 0 {
		config.RefreshPeriodSeconds = DefaultRefreshPeriodSec
	}
	if config.TickPeriodSeconds == 0 {
		config.TickPeriodSeconds = DefaultTickPeriodSec
	}
	if config.NotificationLeadMinutes == 0 {
		config.NotificationLeadMinutes = DefaultNotificationLeadMin
	}
	if config.RetentionMinutes == 0 {
		config.RetentionMinutes = DefaultRetentionMin
	}
	if config.LimitDays == 0 {
		config.LimitDays = DefaultLimitDays
	}
	if config.AuthTimeoutSeconds == 0 {
		config.AuthTimeoutSeconds = DefaultAuthTimeoutSec
	}
	if config.Multiplexer == "" {
		config.Multiplexer = DefaultMultiplexer
	}
	if config.Multiplexer != "zellij" && config.Multiplexer != "tmux" {
		return nil, fmt.Errorf("multiplexer must be 'zellij' or 'tmux', got '%s'", config.Multiplexer)
	}

	if config.RefreshPeriodSeconds < 0 || config.TickPeriodSeconds < 0 ||
		config.NotificationLeadMinutes < 0 || config.RetentionMinutes < 0 ||
		config.LimitDays < 0 || config.AuthTimeoutSeconds < 0 {
		return nil, fmt.Errorf("durations must not be negative")
	}

	return &config, nil
}
