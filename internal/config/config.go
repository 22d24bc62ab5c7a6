// Package config loads tracker configuration from an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"jobtracker/internal/apperrors"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend selects the Status Client implementation.
type Backend string

const (
	BackendHTTP   Backend = "http"
	BackendDocker Backend = "docker"
)

// Config defaults.
const (
	DefaultPollInterval    = 3 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultBreakerCooldown = 30 * time.Second
	DefaultBreakerLimit    = 5
)

// TrackerConfig holds all settings of a jobwatch process.
type TrackerConfig struct {
	// Backend is "http" (default) or "docker"
	Backend Backend `yaml:"backend"`

	// BaseURL of the jobs HTTP API, required for the http backend
	BaseURL string `yaml:"base_url"`

	// APIKeyFile holds the bearer token; APIKey is read from it on Load
	APIKeyFile string `yaml:"api_key_file"`
	APIKey     string `yaml:"-"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// StrictIcons shows an "unknown" icon for unrecognized phase statuses
	StrictIcons bool `yaml:"strict_icons"`

	// LenientStatus folds case and accepts synonyms (SUCCEEDED, CANCELLED...)
	// when mapping backend status codes
	LenientStatus bool `yaml:"lenient_status"`

	// MetricsPort enables the status server (metrics, probes, /v1/session)
	MetricsPort string `yaml:"metrics_port"`

	// StatusTokenFile holds the bearer token guarding /v1 status endpoints
	StatusTokenFile string `yaml:"status_token_file"`
	StatusToken     string `yaml:"-"`

	// LogLevel is debug, info, warn or error
	LogLevel string `yaml:"log_level"`

	Breaker BreakerConfig `yaml:"breaker"`
	Webhook WebhookConfig `yaml:"webhook"`
	Docker  DockerConfig  `yaml:"docker"`
}

// BreakerConfig guards the backend with a circuit breaker.
// A zero threshold disables the breaker.
type BreakerConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// WebhookConfig forwards session events as CloudEvents.
type WebhookConfig struct {
	URL        string   `yaml:"url"`
	KeyFile    string   `yaml:"key_file"`
	SigningKey string   `yaml:"-"`
	Events     []string `yaml:"events"` // empty = all
}

// DockerConfig applies to the docker backend.
type DockerConfig struct {
	PullImages bool     `yaml:"pull_images"`
	ExtraHosts []string `yaml:"extra_hosts"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *TrackerConfig {
	return &TrackerConfig{
		Backend:        BackendHTTP,
		PollInterval:   DefaultPollInterval,
		RequestTimeout: DefaultRequestTimeout,
		LogLevel:       "info",
		Breaker: BreakerConfig{
			Threshold: DefaultBreakerLimit,
			Cooldown:  DefaultBreakerCooldown,
		},
	}
}

// Override adjusts a loaded configuration before validation.
type Override func(*TrackerConfig)

// Load applies defaults, then the YAML file at path (if path is not empty),
// then environment overrides and finally overrides, in order. It reads secret
// files and validates the result.
func Load(path string, overrides ...Override) (*TrackerConfig, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, apperrors.Validation("config", fmt.Sprintf("config file %s not found", path))
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, apperrors.Validation("config", fmt.Sprintf("parse %s: %v", path, err))
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}

	cfg.APIKey = GetSecretFile(cfg.APIKeyFile)
	cfg.Webhook.SigningKey = GetSecretFile(cfg.Webhook.KeyFile)
	cfg.StatusToken = GetSecretFile(cfg.StatusTokenFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration. Errors are apperrors.ErrValidation.
func (c *TrackerConfig) Validate() error {
	switch c.Backend {
	case BackendHTTP:
		if c.BaseURL == "" {
			return apperrors.Validation("base_url", "base URL is required for the http backend")
		}
		if !isHTTPURL(c.BaseURL) {
			return apperrors.Validation("base_url", fmt.Sprintf("invalid base URL %q", c.BaseURL))
		}
	case BackendDocker:
	default:
		return apperrors.Validation("backend", fmt.Sprintf("unknown backend %q (must be 'http' or 'docker')", c.Backend))
	}

	if c.PollInterval <= 0 {
		return apperrors.Validation("poll_interval", "poll interval must be positive")
	}
	if c.RequestTimeout <= 0 {
		return apperrors.Validation("request_timeout", "request timeout must be positive")
	}
	if c.Breaker.Threshold < 0 {
		return apperrors.Validation("breaker.threshold", "threshold cannot be negative")
	}
	if c.Breaker.Threshold > 0 && c.Breaker.Cooldown <= 0 {
		return apperrors.Validation("breaker.cooldown", "cooldown must be positive")
	}
	if c.Webhook.URL != "" && !isHTTPURL(c.Webhook.URL) {
		return apperrors.Validation("webhook.url", fmt.Sprintf("invalid webhook URL %q", c.Webhook.URL))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// SlogLevel returns the configured log level, info when invalid.
func (c *TrackerConfig) SlogLevel() slog.Level {
	level, err := ParseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLogLevel maps debug, info, warn and error to slog levels.
// The empty string is info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, apperrors.Validation("log_level", fmt.Sprintf("unknown log level %q", s))
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
