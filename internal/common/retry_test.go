package common

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dccollins/pet-chip-reader/internal/service"
)

func fastOpts(attempts int) service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastOpts(5))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), func() error {
		calls++
		return errors.New("still down")
	}, fastOpts(3))

	require.ErrorIs(t, err, ErrMaxRetries)
	assert.Equal(t, 3, calls)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	cause := errors.New("bad credentials")
	err := WithRetry(context.Background(), func() error {
		calls++
		return Permanent(cause)
	}, fastOpts(5))

	require.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, func() error {
		return errors.New("transient")
	}, service.RetryOptions{MaxAttempts: 5, InitialDelay: time.Hour})

	require.ErrorIs(t, err, context.Canceled)
}

func TestBackoffDelayCurve(t *testing.T) {
	opts := service.RetryOptions{
		InitialDelay: 30 * time.Second,
		MaxDelay:     10 * time.Minute,
		Multiplier:   2,
	}

	assert.Equal(t, 30*time.Second, BackoffDelay(opts, 1))
	assert.Equal(t, time.Minute, BackoffDelay(opts, 2))
	assert.Equal(t, 2*time.Minute, BackoffDelay(opts, 3))
	// Caps at MaxDelay once the curve overshoots.
	assert.Equal(t, 10*time.Minute, BackoffDelay(opts, 7))
}

func TestRetryableErrorWrapping(t *testing.T) {
	cause := errors.New("socket closed")

	assert.True(t, IsRetryable(Retryable(cause)))
	assert.False(t, IsRetryable(Permanent(cause)))
	assert.True(t, IsRetryable(context.DeadlineExceeded))
	assert.False(t, IsRetryable(errors.New("untagged")))

	assert.ErrorIs(t, Retryable(cause), cause)
	assert.Equal(t, "socket closed", Permanent(cause).Error())
}
