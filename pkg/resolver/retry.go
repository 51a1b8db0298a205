package resolver

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/williamjxj/bestitconsultants-sub001/pkg/origin"
)

// RetryConfig holds the configuration for the remote retry loop.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Base is the delay before the first retry.
	Base time.Duration

	// MaxBackoff caps a single delay.
	MaxBackoff time.Duration

	// Jitter spreads each delay by ±20%.
	Jitter bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		Base:       100 * time.Millisecond,
		MaxBackoff: 2 * time.Second,
		Jitter:     true,
	}
}

// Backoff returns min(Base * 2^attempt, MaxBackoff) for a zero-based retry attempt.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if c.Base <= 0 {
		return 0
	}
	d := c.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if c.MaxBackoff > 0 && d >= c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := c.Backoff(attempt)
	if c.Jitter && d > 0 {
		// Add jitter (±20% randomness)
		d = time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	}
	return d
}

// retryWithBackoff runs fn until it succeeds, fails with an error that
// origin.Retryable rejects, or MaxRetries is used up. It returns the number of
// attempts made. Cancellation is checked before every attempt and during every wait.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, onRetry func(class origin.ErrorClass), fn func(context.Context) error) (int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempts, lastErr
			}
			return attempts, err
		}

		attempts++
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info().
					Int("attempt", attempts).
					Msg("Remote fetch succeeded after retry")
			}
			return attempts, nil
		}

		lastErr = err

		// Don't retry auth, not found or an open circuit
		if !origin.Retryable(err) {
			return attempts, lastErr
		}

		// If this was the last attempt, don't wait
		if attempt >= config.MaxRetries {
			break
		}

		class := origin.ClassOf(err)
		if onRetry != nil {
			onRetry(class)
		}

		wait := config.delay(attempt)
		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempts).
			Dur("backoff", wait).
			Msg("Retrying remote fetch after backoff")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Int("attempt", attempts).
				Msg("Context cancelled during retry backoff")
			return attempts, lastErr
		case <-timer.C:
		}
	}

	logger.Warn().
		Int("max_retries", config.MaxRetries).
		Err(lastErr).
		Msg("Retry attempts exhausted")

	return attempts, fmt.Errorf("retries exhausted after %d attempts: %w", attempts, lastErr)
}
