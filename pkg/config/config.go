package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config is the root runtime configuration. Values come from an optional
// config.json layered with environment variables; the environment wins.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Backend  BackendConfig  `json:"backend"`
	Session  SessionConfig  `json:"session"`
	Ops      OpsConfig      `json:"ops"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// TelegramConfig configures the Telegram channel. The token is the one
// required setting in the whole configuration.
type TelegramConfig struct {
	Token     string   `json:"token" env:"BOT_TOKEN"`
	AllowFrom []string `json:"allow_from" env:"RELAYGRAM_ALLOW_FROM"`
}

// BackendConfig configures the webhook exchange with the decision server.
type BackendConfig struct {
	URL                   string `json:"url" env:"SERVER_URL"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" env:"RELAYGRAM_BACKEND_TIMEOUT_SECONDS"`
}

// SessionConfig bounds the per-chat session store.
type SessionConfig struct {
	MaxEntries   int `json:"max_entries" env:"RELAYGRAM_SESSION_MAX_ENTRIES"`
	IdleTTLHours int `json:"idle_ttl_hours" env:"RELAYGRAM_SESSION_IDLE_TTL_HOURS"`
}

// OpsConfig configures the optional health/readiness/status HTTP server.
// The server only runs when Enabled is set.
type OpsConfig struct {
	Enabled bool   `json:"enabled" env:"RELAYGRAM_OPS_ENABLED"`
	Host    string `json:"host" env:"RELAYGRAM_OPS_HOST"`
	Port    int    `json:"port" env:"RELAYGRAM_OPS_PORT"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string        `json:"format,omitempty" env:"RELAYGRAM_LOG_FORMAT"`
	Level     string        `json:"level,omitempty" env:"RELAYGRAM_LOG_LEVEL"`
	AddSource bool          `json:"add_source,omitempty" env:"RELAYGRAM_LOG_ADD_SOURCE"`
	File      FileLogConfig `json:"file,omitempty"`
}

// FileLogConfig enables a rotating log file alongside stderr output.
type FileLogConfig struct {
	Enabled    bool   `json:"enabled" env:"RELAYGRAM_LOG_FILE_ENABLED"`
	Path       string `json:"path" env:"RELAYGRAM_LOG_FILE_PATH"`
	MaxSizeMB  int    `json:"max_size_mb" env:"RELAYGRAM_LOG_FILE_MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" env:"RELAYGRAM_LOG_FILE_MAX_BACKUPS"`
	MaxAgeDays int    `json:"max_age_days" env:"RELAYGRAM_LOG_FILE_MAX_AGE_DAYS"`
}

// DefaultConfig returns the built-in settings a bare environment starts
// from: local backend, unbounded-feeling but capped session store, ops
// server off.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:                   "http://localhost:8000",
			RequestTimeoutSeconds: 30,
		},
		Session: SessionConfig{
			MaxEntries:   4096,
			IdleTTLHours: 24,
		},
		Ops: OpsConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    18790,
		},
		Logging: LoggingConfig{
			File: FileLogConfig{
				Path:       "relaygram.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 7,
			},
		},
	}
}

// LoadConfig resolves the optional config.json, unmarshals it over the
// defaults, and applies environment overrides on top.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// Validate reports whether the configuration can start the relay. A missing
// bot token is the one fatal condition.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram token is required (set BOT_TOKEN or telegram.token)")
	}

	if strings.TrimSpace(c.Backend.URL) == "" {
		return errors.New("backend url is required (set SERVER_URL or backend.url)")
	}

	return nil
}

// findConfigPath resolves the active config file location.
//
// Precedence is RELAYGRAM_CONFIG first, then cwd-local fallback paths. No
// file anywhere is fine; the defaults plus environment carry a full setup.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("RELAYGRAM_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("RELAYGRAM_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}
