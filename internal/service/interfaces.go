// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/dccollins/pet-chip-reader/internal/model"
)

// Ledger records tag encounters and answers recency queries over them.
type Ledger interface {
	Record(ctx context.Context, tagID string, ts time.Time) error
	Stats(ctx context.Context, tagID string, now time.Time, recentWindow time.Duration) (model.EncounterStats, error)
}

// Transport sends one delivery item to its destination. Implementations
// must be safe for concurrent use; a returned error means the attempt
// failed and the item may be retried.
type Transport interface {
	Send(ctx context.Context, item *model.DeliveryItem) error
}

// Capture produces artifact paths for a detected tag. A hardware failure
// yields an empty slice, never an error that stops the pipeline.
type Capture interface {
	Capture(ctx context.Context, tagID string) []string
}

// Classifier describes the animal in an artifact. Calls are bounded by
// the implementation's timeout and are safe to repeat.
type Classifier interface {
	Describe(ctx context.Context, artifactPath string) (string, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
