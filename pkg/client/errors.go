package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when a configured attempt ceiling is reached.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends during a fetch or backoff.
	ErrContextCancelled = errors.New("context cancelled")
)

// FetchError describes one failed attempt.
type FetchError struct {
	Method     string
	URL        string
	StatusCode int
	ErrorClass ErrorClass
	Retryable  bool
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s error: %v", e.Method, e.URL, e.ErrorClass, e.Err)
	}
	return fmt.Sprintf("%s %s: %s error (status %d)", e.Method, e.URL, e.ErrorClass, e.StatusCode)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// shouldRetry determines if an attempt that failed with errorClass is
// attempted again. Timeouts always are; status failures only when the caller
// demands a 200.
func shouldRetry(errorClass ErrorClass, mustSucceed bool) bool {
	switch errorClass {
	case ErrorClassTimeout:
		return true
	case ErrorClassClient, ErrorClassServer, ErrorClassStatus:
		return mustSucceed
	case ErrorClassNetwork:
		// Refused connections, DNS and TLS failures are hard failures
		return false
	default:
		return false
	}
}
