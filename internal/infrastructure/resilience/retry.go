package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"travel-companion/internal/config"
)

// RetryConfig defines retry behavior for outbound calls.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffFactor   float64
	RetryableErrors []string
}

// DefaultRetryConfig retries throttling and transient upstream failures.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
		RetryableErrors: []string{
			"timeout",
			"connection refused",
			"connection reset",
			"temporary failure",
			"429",
			"500",
			"502",
			"503",
			"504",
		},
	}
}

// Merge overrides the defaults with any positive values from other.
func (c RetryConfig) Merge(maxAttempts int, initial, maxDelay time.Duration, factor float64) RetryConfig {
	if maxAttempts > 0 {
		c.MaxAttempts = maxAttempts
	}
	if initial > 0 {
		c.InitialDelay = initial
	}
	if maxDelay > 0 {
		c.MaxDelay = maxDelay
	}
	if factor > 0 {
		c.BackoffFactor = factor
	}
	return c
}

// RetryableFunc is a function that can be retried.
type RetryableFunc[T any] func() (T, error)

// WithRetry executes fn with exponential backoff until it succeeds, returns a
// non-retryable error, or runs out of attempts.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, operation string, fn RetryableFunc[T]) (T, error) {
	var zero T
	var lastErr error

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("operation", operation).
					Int("attempt", attempt).
					Msg("operation succeeded after retry")
			}
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err, cfg.RetryableErrors) {
			log.Debug().
				Err(err).
				Str("operation", operation).
				Int("attempt", attempt).
				Msg("non-retryable error, aborting")
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := Backoff(attempt, cfg.InitialDelay, cfg.MaxDelay, cfg.BackoffFactor)
		log.Warn().
			Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("retry_delay", delay).
			Msg("retrying operation after error")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", operation, attempts, lastErr)
}

// Backoff computes the exponential delay for an attempt with 10% jitter.
func Backoff(attempt int, initial, maxDelay time.Duration, factor float64) time.Duration {
	if factor <= 0 {
		factor = 1
	}
	backoff := float64(initial) * math.Pow(factor, float64(attempt-1))
	if maxDelay > 0 && backoff > float64(maxDelay) {
		backoff = float64(maxDelay)
	}
	jitter := backoff * 0.1 * (2*rand.Float64() - 1)
	return time.Duration(backoff + jitter)
}

// IsRetryable reports whether err matches one of the retryable patterns.
func IsRetryable(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// RetryFromConfig builds the retry policy from service configuration.
func RetryFromConfig(cfg *config.Config) RetryConfig {
	return DefaultRetryConfig().Merge(cfg.RetryMaxAttempts, cfg.RetryInitialDelay, cfg.RetryMaxDelay, cfg.RetryBackoffFactor)
}
