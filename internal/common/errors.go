// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
)

// Common application errors.
var (
	// Frame errors.
	ErrBadFrame = errors.New("malformed frame")
	ErrBadBCC   = errors.New("bcc mismatch")
	ErrNoTag    = errors.New("no tag id in frame")

	// Delivery errors.
	ErrMaxAttempts = errors.New("delivery attempts exhausted")

	// Classifier errors.
	ErrClassifierUnavailable = errors.New("classifier unavailable")

	// Configuration errors.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// RetryableError wraps an error with retry-specific metadata.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// Retryable marks err as transient so WithRetry keeps trying.
func Retryable(err error) error {
	return &RetryableError{Err: err, Retryable: true}
}

// Permanent marks err as terminal so WithRetry gives up immediately.
func Permanent(err error) error {
	return &RetryableError{Err: err, Retryable: false}
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
