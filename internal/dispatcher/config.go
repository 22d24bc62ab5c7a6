package dispatcher

import (
	"jobtracker/internal/config"
	"jobtracker/pkg/backoff"
	"jobtracker/pkg/circuitbreaker"
	"time"
)

// Delivery defaults. A single worker keeps events of a session in order.
const (
	defaultBufferSize  = 256
	defaultWorkers     = 1
	defaultHTTPTimeout = 10 * time.Second
	defaultMaxRetries  = 3
	defaultMaxRequeues = 10
)

// MemoryConfig holds configuration for the in-memory dispatcher.
type MemoryConfig struct {
	BufferSize   int                   // pending events buffer (default: 256)
	Workers      int                   // concurrent delivery goroutines (default: 1)
	HTTPTimeout  time.Duration         // per-request timeout (default: 10s)
	MaxRetries   int                   // retries after the first attempt (default: 3, negative = none)
	MaxRequeues  int                   // requeues while a breaker is open (default: 10)
	RequeueDelay time.Duration         // wait before a requeue (default: breaker cooldown)
	Backoff      backoff.Config        // delay between retries
	Breaker      circuitbreaker.Config // per-host breaker settings
	UserAgent    string                // sent with every delivery
}

// LoadConfigFromEnv loads dispatcher configuration from environment variables.
func LoadConfigFromEnv() MemoryConfig {
	cfg := MemoryConfig{
		BufferSize:  config.GetIntEnv("JOBTRACKER_WEBHOOK_BUFFER", defaultBufferSize),
		Workers:     config.GetIntEnv("JOBTRACKER_WEBHOOK_WORKERS", defaultWorkers),
		HTTPTimeout: config.GetDurationEnv("JOBTRACKER_WEBHOOK_TIMEOUT", defaultHTTPTimeout),
		MaxRetries:  config.GetIntEnv("JOBTRACKER_WEBHOOK_RETRIES", defaultMaxRetries),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxRequeues <= 0 {
		c.MaxRequeues = defaultMaxRequeues
	}
	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = circuitbreaker.DefaultConfig().Threshold
	}
	if c.Breaker.Cooldown <= 0 {
		c.Breaker.Cooldown = circuitbreaker.DefaultConfig().Cooldown
	}
	if c.RequeueDelay <= 0 {
		c.RequeueDelay = c.Breaker.Cooldown
	}
	if c.UserAgent == "" {
		c.UserAgent = "jobtracker"
	}
	return c
}
