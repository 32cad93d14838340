// Package engine wires the poll loop to the event pipeline: frames come
// off the serial link one at a time, survive decode and dedupe, get
// photographed and recorded, and leave as batched notifications.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/dccollins/pet-chip-reader/internal/a04"
	"github.com/dccollins/pet-chip-reader/internal/batch"
	"github.com/dccollins/pet-chip-reader/internal/dedupe"
	"github.com/dccollins/pet-chip-reader/internal/delivery"
	"github.com/dccollins/pet-chip-reader/internal/model"
	"github.com/dccollins/pet-chip-reader/internal/notify"
	"github.com/dccollins/pet-chip-reader/internal/selector"
	"github.com/dccollins/pet-chip-reader/internal/service"
)

// Poller issues one poll cycle against the reader hardware.
type Poller interface {
	Poll(ctx context.Context) ([]byte, error)
}

// Config holds the orchestrator's tunables.
type Config struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
	DedupeWindow time.Duration
	BatchDelay   time.Duration
	MaxPerBatch  int
	RecentWindow time.Duration
	DrainOnStop  bool
	NotifyTo     []string
	UploadDest   string
	LostTags     []string
	FlushTimeout time.Duration
}

// Deps bundles the services the orchestrator drives.
type Deps struct {
	Poller   Poller
	Capture  service.Capture
	Ledger   service.Ledger
	Selector *selector.Selector
	Pipeline *delivery.Pipeline
	Clock    batch.Clock
	Logger   *slog.Logger
}

// Orchestrator runs the serial poll loop and the flush path. Polling is
// strictly serial; only batch flushes run concurrently with it.
type Orchestrator struct {
	cfg        Config
	poller     Poller
	dedupe     *dedupe.Deduplicator
	aggregator *batch.Aggregator
	capture    service.Capture
	ledger     service.Ledger
	selector   *selector.Selector
	pipeline   *delivery.Pipeline
	clock      batch.Clock
	logger     *slog.Logger
	lostTags   map[string]bool
}

// New assembles an orchestrator. Zero durations fall back to the
// documented defaults so tests can construct one tersely.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 5 * time.Second
	}
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = 2 * time.Second
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = time.Minute
	}
	if cfg.MaxPerBatch < 1 {
		cfg.MaxPerBatch = 5
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 30 * time.Minute
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Minute
	}
	if cfg.UploadDest == "" {
		cfg.UploadDest = "drive"
	}
	if deps.Clock == nil {
		deps.Clock = batch.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	lost := make(map[string]bool, len(cfg.LostTags))
	for _, tag := range cfg.LostTags {
		lost[tag] = true
	}

	o := &Orchestrator{
		cfg:      cfg,
		poller:   deps.Poller,
		dedupe:   dedupe.New(cfg.DedupeWindow),
		capture:  deps.Capture,
		ledger:   deps.Ledger,
		selector: deps.Selector,
		pipeline: deps.Pipeline,
		clock:    deps.Clock,
		logger:   deps.Logger,
		lostTags: lost,
	}
	o.aggregator = batch.New(cfg.BatchDelay, cfg.MaxPerBatch, deps.Clock, o.flushBatch, deps.Logger)
	return o
}

// Run polls the reader until ctx is cancelled, then winds the pipeline
// down. It always returns nil on a clean shutdown.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.pipeline.Start(ctx)
	o.logger.Info("poll loop started",
		"poll_interval", o.cfg.PollInterval,
		"batch_delay", o.cfg.BatchDelay)

	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.shutdown()
			return nil
		case <-ticker.C:
			if err := o.cycle(ctx); err != nil {
				if ctx.Err() != nil {
					o.shutdown()
					return nil
				}
				o.logger.Warn("poll cycle failed, backing off",
					"error", err,
					"backoff", o.cfg.ErrorBackoff)
				select {
				case <-ctx.Done():
					o.shutdown()
					return nil
				case <-time.After(o.cfg.ErrorBackoff):
				}
			}
		}
	}
}

// cycle runs one poll exchange. Malformed frames are dropped silently
// aside from a debug line; only transport-level failures propagate so
// Run can back off.
func (o *Orchestrator) cycle(ctx context.Context) error {
	frame, err := o.poller.Poll(ctx)
	if err != nil {
		return err
	}
	if frame == nil {
		return nil
	}

	tagID, err := a04.DecodeFrame(frame)
	if err != nil {
		o.logger.Debug("dropping malformed frame", "error", err, "raw", string(frame))
		return nil
	}

	o.handleTag(ctx, tagID)
	return nil
}

// handleTag takes one decoded tag through dedupe, capture, the
// encounter ledger, and the aggregator.
func (o *Orchestrator) handleTag(ctx context.Context, tagID string) {
	now := o.clock.Now()
	if o.dedupe.IsDuplicate(tagID, now) {
		return
	}

	o.logger.Info("tag detected", "tag_id", tagID)

	artifacts := o.capture.Capture(ctx, tagID)

	if err := o.ledger.Record(ctx, tagID, now); err != nil {
		o.logger.Error("failed to record encounter", "tag_id", tagID, "error", err)
	}

	o.aggregator.Add(model.Detection{
		Timestamp:     now,
		TagID:         tagID,
		ArtifactPaths: artifacts,
	})
}

// flushBatch is the aggregator's flush callback: pick the best
// detection, ship its artifacts, and send one notification per
// recipient. It runs on the aggregator's goroutine with its own
// deadline because Run may already be gone.
func (o *Orchestrator) flushBatch(tagID string, detections []model.Detection) {
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.FlushTimeout)
	defer cancel()

	best := o.selector.Best(ctx, detections)

	for _, path := range best.ArtifactPaths {
		item := delivery.NewItem(model.KindUpload, tagID, path, o.cfg.UploadDest)
		delivered := o.pipeline.Deliver(ctx, item)
		if delivered.Link != "" {
			best.ArtifactLinks = append(best.ArtifactLinks, delivered.Link)
		}
	}

	now := o.clock.Now()
	stats, err := o.ledger.Stats(ctx, tagID, now, o.cfg.RecentWindow)
	if err != nil {
		o.logger.Error("failed to load encounter stats", "tag_id", tagID, "error", err)
	}

	var lostTag string
	if o.lostTags[tagID] {
		lostTag = tagID
	}
	msg := notify.Compose(best, stats, notify.ComposeOptions{
		Now:          now,
		LostTag:      lostTag,
		RecentWindow: o.cfg.RecentWindow,
	})

	for _, dest := range o.cfg.NotifyTo {
		o.pipeline.Deliver(ctx, delivery.NewItem(model.KindNotification, tagID, msg, dest))
	}

	o.logger.Info("batch flushed",
		"tag_id", tagID,
		"detections", len(detections),
		"links", len(best.ArtifactLinks))
}

func (o *Orchestrator) shutdown() {
	o.logger.Info("shutting down", "drain", o.cfg.DrainOnStop)
	o.aggregator.Stop(o.cfg.DrainOnStop)
	o.pipeline.Stop()
}
