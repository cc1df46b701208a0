package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCancelled is returned when the caller's context ends an operation.
// It wraps the underlying context error.
var ErrCancelled = errors.New("operation cancelled")

// ConfigError reports invalid or missing configuration. Always fatal.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// TransientError is a retryable failure: timeout, connection error, 5xx or 429.
type TransientError struct {
	Instance   string
	StatusCode int // 0 when no HTTP response was received
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient error from %s (status %d): %v", e.Instance, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient error from %s: %v", e.Instance, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError is a non-retryable request failure (malformed query, auth).
type FatalError struct {
	Instance   string
	StatusCode int
	Err        error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal error from %s (status %d): %v", e.Instance, e.StatusCode, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// ExhaustedError is returned once every retry attempt has failed.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts (%s): %v", e.Attempts, e.Elapsed.Round(time.Millisecond), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// CacheError wraps a persistent cache read/write failure.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string { return fmt.Sprintf("cache %s: %v", e.Op, e.Err) }

func (e *CacheError) Unwrap() error { return e.Err }

// EnrichmentError wraps a page fetch or parse failure.
type EnrichmentError struct {
	URL string
	Err error
}

func (e *EnrichmentError) Error() string { return fmt.Sprintf("enrichment of %s: %v", e.URL, e.Err) }

func (e *EnrichmentError) Unwrap() error { return e.Err }

// Cancelled wraps a context error into ErrCancelled.
func Cancelled(ctxErr error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err must abort without retry.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// IsCancelled reports whether err stems from context cancellation or deadline.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
