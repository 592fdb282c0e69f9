package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	fxRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fx_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	fxRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fx_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5},
	}, []string{"error_class"})

	fxRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fx_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// Unbounded is the MaxAttempts value that retries until success.
const Unbounded = 0

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	// Unbounded (0) retries forever; a permanently failing endpoint then
	// blocks the caller until its context ends.
	MaxAttempts int

	// Backoff is the fixed pause between attempts.
	Backoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: Unbounded,
		Backoff:     100 * time.Millisecond,
	}
}

// waitFunc pauses for d or until ctx ends.
type waitFunc func(ctx context.Context, d time.Duration) error

// sleepContext waits for d with context cancellation support.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWithBackoff runs fn until it returns nil or a non-retryable error.
// fn signals a retryable failure by returning a *FetchError with Retryable set.
func retryWithBackoff(ctx context.Context, config RetryConfig, wait waitFunc, logger zerolog.Logger, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) || !fetchErr.Retryable {
			return err
		}
		errorClass := string(fetchErr.ErrorClass)

		if config.MaxAttempts > 0 && attempt >= config.MaxAttempts {
			fxRetryExhaustedTotal.WithLabelValues(errorClass).Inc()
			logger.Warn().
				Str("error_class", errorClass).
				Int("max_attempts", config.MaxAttempts).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		fxRetriesTotal.WithLabelValues(errorClass).Inc()
		fxRetryBackoffSeconds.WithLabelValues(errorClass).Observe(config.Backoff.Seconds())

		logger.Warn().
			Str("error_class", errorClass).
			Int("status", fetchErr.StatusCode).
			Int("attempt", attempt).
			Dur("backoff", config.Backoff).
			Msg("Retrying request after backoff")

		if err := wait(ctx, config.Backoff); err != nil {
			logger.Warn().
				Str("error_class", errorClass).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}
}
