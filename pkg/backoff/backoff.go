// Package backoff provides exponential backoff for explicit caller retries.
package backoff

import (
	"context"
	"math"
	"time"
)

// Defaults applied to zero Config fields.
const (
	DefaultInitial    = 100 * time.Millisecond
	DefaultMax        = 5 * time.Second
	DefaultMultiplier = 2.0
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial    time.Duration // delay before the first retry (default: 100ms)
	Max        time.Duration // upper bound for any delay (default: 5s)
	Multiplier float64       // growth factor per attempt, must be > 1 (default: 2)
}

// Exponential returns the delay before retry number attempt.
// Attempt 1 returns Initial, attempt 2 returns Initial*Multiplier, and so on,
// capped at Max. A nil cfg uses the defaults.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial, maxDelay, multiplier := DefaultInitial, DefaultMax, DefaultMultiplier
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxDelay = cfg.Max
		}
		if cfg.Multiplier > 1 {
			multiplier = cfg.Multiplier
		}
	}

	if attempt < 1 {
		return min(initial, maxDelay)
	}
	delay := float64(initial) * math.Pow(multiplier, float64(attempt-1))
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(delay)
}

// Wait sleeps for the delay of attempt or until ctx is done, whichever
// comes first. It returns ctx.Err() when the wait was cut short.
func Wait(ctx context.Context, attempt int, cfg *Config) error {
	timer := time.NewTimer(Exponential(attempt, cfg))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
