// Package selector picks the most identifiable detection out of a batch
// using the vision classifier.
package selector

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dccollins/pet-chip-reader/internal/common"
	"github.com/dccollins/pet-chip-reader/internal/model"
	"github.com/dccollins/pet-chip-reader/internal/service"
)

// Scoring weights. A description that names a species clearly outranks a
// hedge like "animal (analysis failed)", and every identification keyword
// adds to the score.
const (
	nonGenericScore = 10
	keywordScore    = 5

	// DefaultGoodEnough stops scoring once a description is this strong.
	DefaultGoodEnough = 15
)

// identificationKeywords mark descriptions that actually identify the
// animal rather than hedging.
var identificationKeywords = []string{
	"cat", "dog", "raccoon", "fox", "squirrel", "opossum", "possum",
	"rabbit", "confident",
}

// genericMarkers flag classifier fallback phrasing that carries no
// identification value.
var genericMarkers = []string{
	"not configured", "failed", "error", "unable", "no animal", "unclear",
}

// Selector scores a batch of detections and returns the best one.
type Selector struct {
	classifier service.Classifier
	logger     *slog.Logger
	retry      service.RetryOptions
	goodEnough int
}

// New creates a Selector. goodEnough <= 0 selects DefaultGoodEnough.
func New(classifier service.Classifier, goodEnough int, logger *slog.Logger) *Selector {
	if goodEnough <= 0 {
		goodEnough = DefaultGoodEnough
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		classifier: classifier,
		goodEnough: goodEnough,
		logger:     logger,
		// One quick in-line retry; the batch is already minutes old, a
		// long schedule here would stall the flush.
		retry: service.RetryOptions{
			MaxAttempts:  2,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
		},
	}
}

// Best returns the detection with the strongest classifier description.
// Ties break toward the earliest timestamp. If the classifier fails for
// every detection, the first detection in arrival order is returned so a
// notification is still produced.
func (s *Selector) Best(ctx context.Context, detections []model.Detection) model.Detection {
	if len(detections) == 0 {
		return model.Detection{}
	}

	if len(detections) == 1 {
		best := detections[0]
		best.Description, _ = s.describe(ctx, best)
		return best
	}

	best := detections[0]
	bestScore := -1

	for _, d := range detections {
		desc, score := s.score(ctx, d)
		d.Description = desc

		if score > bestScore || (score == bestScore && d.Timestamp.Before(best.Timestamp)) {
			best = d
			bestScore = score
		}

		if bestScore >= s.goodEnough {
			s.logger.Debug("selector early exit", "tag_id", d.TagID, "score", bestScore)
			break
		}
	}

	return best
}

// describe classifies the detection's first artifact, tolerating missing
// artifacts and classifier failures.
func (s *Selector) describe(ctx context.Context, d model.Detection) (string, error) {
	if len(d.ArtifactPaths) == 0 || s.classifier == nil {
		return "", nil
	}

	var desc string
	err := common.WithRetry(ctx, func() error {
		var describeErr error
		desc, describeErr = s.classifier.Describe(ctx, d.ArtifactPaths[0])
		return describeErr
	}, s.retry)
	if err != nil {
		s.logger.Warn("classifier failed for artifact",
			"tag_id", d.TagID, "artifact", d.ArtifactPaths[0], "error", err)
		return "", err
	}
	return desc, nil
}

func (s *Selector) score(ctx context.Context, d model.Detection) (string, int) {
	desc, err := s.describe(ctx, d)
	if err != nil || desc == "" {
		return "", 0
	}
	return desc, Score(desc)
}

// Score rates a classifier description for identification quality.
func Score(description string) int {
	if description == "" {
		return 0
	}

	lower := strings.ToLower(description)
	for _, marker := range genericMarkers {
		if strings.Contains(lower, marker) {
			return 0
		}
	}

	score := nonGenericScore
	for _, kw := range identificationKeywords {
		if strings.Contains(lower, kw) {
			score += keywordScore
		}
	}
	return score
}
