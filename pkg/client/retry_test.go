package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	if cfg.MaxAttempts != Unbounded {
		t.Errorf("MaxAttempts = %d, want %d", cfg.MaxAttempts, Unbounded)
	}
	if cfg.Backoff != 100*time.Millisecond {
		t.Errorf("Backoff = %v, want 100ms", cfg.Backoff)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	retryable := &FetchError{ErrorClass: ErrorClassServer, StatusCode: 503, Retryable: true}
	hard := &FetchError{ErrorClass: ErrorClassNetwork, Retryable: false}

	tests := []struct {
		name        string
		config      RetryConfig
		failures    []error
		wantErr     error
		wantCalls   int
		wantBackoff int
	}{
		{
			name:        "success first try",
			config:      RetryConfig{Backoff: time.Millisecond},
			failures:    nil,
			wantCalls:   1,
			wantBackoff: 0,
		},
		{
			name:        "unbounded keeps going",
			config:      RetryConfig{MaxAttempts: Unbounded, Backoff: time.Millisecond},
			failures:    []error{retryable, retryable, retryable, retryable, retryable},
			wantCalls:   6,
			wantBackoff: 5,
		},
		{
			name:        "ceiling reached",
			config:      RetryConfig{MaxAttempts: 2, Backoff: time.Millisecond},
			failures:    []error{retryable, retryable, retryable},
			wantErr:     ErrRetryExhausted,
			wantCalls:   2,
			wantBackoff: 1,
		},
		{
			name:        "non-retryable stops",
			config:      RetryConfig{Backoff: time.Millisecond},
			failures:    []error{hard},
			wantErr:     hard,
			wantCalls:   1,
			wantBackoff: 0,
		},
		{
			name:        "plain error stops",
			config:      RetryConfig{Backoff: time.Millisecond},
			failures:    []error{ErrContextCancelled},
			wantErr:     ErrContextCancelled,
			wantCalls:   1,
			wantBackoff: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			backoffs := 0
			wait := func(ctx context.Context, d time.Duration) error {
				backoffs++
				if d != tt.config.Backoff {
					t.Errorf("backoff = %v, want %v", d, tt.config.Backoff)
				}
				return nil
			}

			err := retryWithBackoff(context.Background(), tt.config, wait, zerolog.Nop(), func(attempt int) error {
				calls++
				if attempt != calls {
					t.Errorf("attempt = %d, want %d", attempt, calls)
				}
				if calls <= len(tt.failures) {
					return tt.failures[calls-1]
				}
				return nil
			})

			if tt.wantErr == nil && err != nil {
				t.Errorf("error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if backoffs != tt.wantBackoff {
				t.Errorf("backoffs = %d, want %d", backoffs, tt.wantBackoff)
			}
		})
	}
}

func TestSleepContext(t *testing.T) {
	t.Run("completes", func(t *testing.T) {
		if err := sleepContext(context.Background(), time.Millisecond); err != nil {
			t.Errorf("sleepContext() error = %v", err)
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := sleepContext(ctx, time.Hour)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("sleepContext() error = %v, want context.Canceled", err)
		}
		if time.Since(start) > time.Second {
			t.Error("sleepContext() did not return promptly on cancel")
		}
	})
}
