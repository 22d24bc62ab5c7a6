package config

import (
	"fmt"
	"jobtracker/internal/apperrors"
	"os"
	"strconv"
	"strings"
	"time"
)

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*TrackerConfig, string) error
}{
	{"JOBTRACKER_BACKEND", func(c *TrackerConfig, v string) error {
		c.Backend = Backend(strings.ToLower(v))
		return nil
	}},
	{"JOBTRACKER_BASE_URL", func(c *TrackerConfig, v string) error {
		c.BaseURL = v
		return nil
	}},
	{"JOBTRACKER_API_KEY_FILE", func(c *TrackerConfig, v string) error {
		c.APIKeyFile = v
		return nil
	}},
	{"JOBTRACKER_POLL_INTERVAL", durationSetter("JOBTRACKER_POLL_INTERVAL", func(c *TrackerConfig) *time.Duration { return &c.PollInterval })},
	{"JOBTRACKER_REQUEST_TIMEOUT", durationSetter("JOBTRACKER_REQUEST_TIMEOUT", func(c *TrackerConfig) *time.Duration { return &c.RequestTimeout })},
	{"JOBTRACKER_STRICT_ICONS", func(c *TrackerConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.Validation("JOBTRACKER_STRICT_ICONS", fmt.Sprintf("invalid boolean %q", v))
		}
		c.StrictIcons = b
		return nil
	}},
	{"JOBTRACKER_LENIENT_STATUS", func(c *TrackerConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.Validation("JOBTRACKER_LENIENT_STATUS", fmt.Sprintf("invalid boolean %q", v))
		}
		c.LenientStatus = b
		return nil
	}},
	{"JOBTRACKER_METRICS_PORT", func(c *TrackerConfig, v string) error {
		c.MetricsPort = v
		return nil
	}},
	{"JOBTRACKER_STATUS_TOKEN_FILE", func(c *TrackerConfig, v string) error {
		c.StatusTokenFile = v
		return nil
	}},
	{"JOBTRACKER_BREAKER_THRESHOLD", func(c *TrackerConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return apperrors.Validation("JOBTRACKER_BREAKER_THRESHOLD", fmt.Sprintf("invalid integer %q", v))
		}
		c.Breaker.Threshold = n
		return nil
	}},
	{"JOBTRACKER_BREAKER_COOLDOWN", durationSetter("JOBTRACKER_BREAKER_COOLDOWN", func(c *TrackerConfig) *time.Duration { return &c.Breaker.Cooldown })},
	{"JOBTRACKER_WEBHOOK_URL", func(c *TrackerConfig, v string) error {
		c.Webhook.URL = v
		return nil
	}},
	{"JOBTRACKER_WEBHOOK_KEY_FILE", func(c *TrackerConfig, v string) error {
		c.Webhook.KeyFile = v
		return nil
	}},
	{"JOBTRACKER_WEBHOOK_EVENTS", func(c *TrackerConfig, v string) error {
		c.Webhook.Events = splitList(v)
		return nil
	}},
	{"JOBTRACKER_DOCKER_PULL", func(c *TrackerConfig, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return apperrors.Validation("JOBTRACKER_DOCKER_PULL", fmt.Sprintf("invalid boolean %q", v))
		}
		c.Docker.PullImages = b
		return nil
	}},
	{"JOBTRACKER_DOCKER_EXTRA_HOSTS", func(c *TrackerConfig, v string) error {
		c.Docker.ExtraHosts = splitList(v)
		return nil
	}},
	{"LOG_LEVEL", func(c *TrackerConfig, v string) error {
		c.LogLevel = v
		return nil
	}},
}

// splitList splits a comma-separated value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationSetter(name string, field func(*TrackerConfig) *time.Duration) func(*TrackerConfig, string) error {
	return func(c *TrackerConfig, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return apperrors.Validation(name, fmt.Sprintf("invalid duration %q", v))
		}
		*field(c) = d
		return nil
	}
}

// applyEnvOverrides modifies cfg in place with environment variable values.
func applyEnvOverrides(cfg *TrackerConfig) error {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			if err := override.apply(cfg, val); err != nil {
				return err
			}
		}
	}
	return nil
}
