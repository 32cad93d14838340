package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dccollins/pet-chip-reader/internal/service"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// BackoffDelay returns the wait after the given attempt (1-based): the
// initial delay grown by the multiplier per prior attempt, capped at the
// maximum. The delivery worker schedules its queue on the same curve.
func BackoffDelay(opts service.RetryOptions, attempt int) time.Duration {
	if attempt <= 1 {
		return opts.InitialDelay
	}
	delay := time.Duration(float64(opts.InitialDelay) * math.Pow(opts.Multiplier, float64(attempt-1)))
	if delay > opts.MaxDelay || delay < 0 {
		delay = opts.MaxDelay
	}
	return delay
}

// WithRetry runs operation until it succeeds, returns an error marked
// permanent, or the attempt budget runs out. Zero-valued options get
// modest defaults suited to inline calls, not the delivery queue's
// long schedule.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 100 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.Multiplier <= 0 {
		opts.Multiplier = 2.0
	}

	for attempt := 1; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		var retryableErr *RetryableError
		if errors.As(err, &retryableErr) && !retryableErr.Retryable {
			return err
		}

		if attempt >= opts.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrMaxRetries, opts.MaxAttempts, err)
		}

		delay := BackoffDelay(opts, attempt)
		slog.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", opts.MaxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
