// Package delivery implements the failure-tolerant delivery pipeline:
// items are attempted once inline, persisted to a local backup on
// failure, and retried by a background worker until they succeed or
// exhaust their attempt budget. The guarantee is at-least-once: a crash
// can duplicate a delivery, never silently drop one.
package delivery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dccollins/pet-chip-reader/internal/common"
	"github.com/dccollins/pet-chip-reader/internal/model"
	"github.com/dccollins/pet-chip-reader/internal/service"
)

// OutcomeRecorder persists terminal delivery outcomes for auditing.
type OutcomeRecorder interface {
	RecordDeliveryOutcome(ctx context.Context, item *model.DeliveryItem, completedAt time.Time) error
}

// Config holds pipeline settings.
type Config struct {
	// BackupDir receives copies of artifacts that failed to deliver,
	// plus the durable manifest.
	BackupDir string
	// Retry bounds the background worker's per-item schedule.
	Retry service.RetryOptions
	// PollInterval is how often the background worker scans the queue.
	PollInterval time.Duration
}

// Pipeline delivers items through per-kind transports.
type Pipeline struct {
	transports map[model.DeliveryKind]service.Transport
	manifest   *manifest
	recorder   OutcomeRecorder
	logger     *slog.Logger
	now        func() time.Time
	stopCh     chan struct{}
	doneCh     chan struct{}
	backupDir  string
	retry      service.RetryOptions
	interval   time.Duration
}

// New creates a Pipeline, loading any manifest left by a previous run so
// undelivered items survive restarts.
func New(cfg Config, transports map[model.DeliveryKind]service.Transport, recorder OutcomeRecorder, logger *slog.Logger) (*Pipeline, error) {
	if cfg.BackupDir == "" {
		return nil, fmt.Errorf("delivery: backup directory is required")
	}
	if err := os.MkdirAll(cfg.BackupDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	m, err := loadManifest(defaultManifestPath(cfg.BackupDir))
	if err != nil {
		return nil, err
	}

	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 5
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = 30 * time.Second
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = 10 * time.Minute
	}
	if cfg.Retry.Multiplier <= 0 {
		cfg.Retry.Multiplier = 2.0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		transports: transports,
		manifest:   m,
		recorder:   recorder,
		logger:     logger,
		now:        time.Now,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		backupDir:  cfg.BackupDir,
		retry:      cfg.Retry,
		interval:   cfg.PollInterval,
	}, nil
}

// NewItem builds a pending delivery item.
func NewItem(kind model.DeliveryKind, tagID, payload, destination string) model.DeliveryItem {
	return model.DeliveryItem{
		ID:          uuid.NewString(),
		Kind:        kind,
		Status:      model.DeliveryPending,
		TagID:       tagID,
		Payload:     payload,
		Destination: destination,
		CreatedAt:   time.Now(),
	}
}

// Deliver attempts the item once and returns its resulting state. On
// failure the item is persisted for the background worker; no error is
// returned because a failed first attempt is an expected condition, not
// a caller problem. A returned status of delivered means transports may
// have filled in fields like the share link.
func (p *Pipeline) Deliver(ctx context.Context, item model.DeliveryItem) model.DeliveryItem {
	item.Status = model.DeliveryInFlight
	item.Attempts++
	item.LastAttempt = p.now()

	err := p.send(ctx, &item)
	if err == nil {
		item.Status = model.DeliveryDelivered
		p.recordOutcome(ctx, &item)
		p.logger.Info("delivered", "kind", item.Kind, "id", item.ID, "destination", item.Destination)
		return item
	}

	p.logger.Warn("delivery failed, queueing for retry",
		"kind", item.Kind, "id", item.ID, "error", err)

	item.Status = model.DeliveryPending
	item.LastError = err.Error()

	if backupErr := p.backupArtifact(&item); backupErr != nil {
		p.logger.Error("failed to back up artifact", "id", item.ID, "error", backupErr)
	}
	if addErr := p.manifest.add(item); addErr != nil {
		p.logger.Error("failed to persist delivery manifest", "id", item.ID, "error", addErr)
	}
	return item
}

// send routes the item to its transport.
func (p *Pipeline) send(ctx context.Context, item *model.DeliveryItem) error {
	transport, ok := p.transports[item.Kind]
	if !ok {
		return fmt.Errorf("no transport registered for kind %q", item.Kind)
	}
	return transport.Send(ctx, item)
}

// backupArtifact copies an upload's artifact into the backup directory
// and repoints the item at the copy, so the delivery survives even if
// the original photo directory is cleaned.
func (p *Pipeline) backupArtifact(item *model.DeliveryItem) error {
	if item.Kind != model.KindUpload {
		return nil // notification payloads live in the manifest itself
	}

	dst := filepath.Join(p.backupDir, filepath.Base(item.Payload))
	if dst == item.Payload {
		return nil // already backed up
	}

	src, err := os.Open(item.Payload)
	if err != nil {
		return fmt.Errorf("failed to open artifact: %w", err)
	}
	defer func() { _ = src.Close() }()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create backup copy: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close backup copy: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to finalize backup copy: %w", err)
	}

	item.Payload = dst
	return nil
}

// Pending returns the queued items awaiting retry.
func (p *Pipeline) Pending() []model.DeliveryItem {
	return p.manifest.pending()
}

// DeadLetters returns items that exhausted their attempt budget.
func (p *Pipeline) DeadLetters() []model.DeliveryItem {
	var out []model.DeliveryItem
	for _, it := range p.manifest.all() {
		if it.Status == model.DeliveryFailed {
			out = append(out, it)
		}
	}
	return out
}

// Start launches the background retry worker.
func (p *Pipeline) Start(ctx context.Context) {
	go func() {
		defer close(p.doneCh)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.ProcessQueue(ctx)
			}
		}
	}()
}

// Stop shuts the worker down and waits for it to exit.
func (p *Pipeline) Stop() {
	close(p.stopCh)
	<-p.doneCh
}

// ProcessQueue makes one retry pass over the pending queue, honoring each
// item's backoff schedule. It returns how many items were delivered.
func (p *Pipeline) ProcessQueue(ctx context.Context) int {
	delivered := 0

	for _, item := range p.manifest.pending() {
		if ctx.Err() != nil {
			return delivered
		}

		if wait := p.backoffRemaining(&item); wait > 0 {
			continue
		}

		if p.retryItem(ctx, item) {
			delivered++
		}
	}

	return delivered
}

// ForceProcessQueue retries every pending item immediately, ignoring
// backoff. Used by the queue drain command.
func (p *Pipeline) ForceProcessQueue(ctx context.Context, each func(item model.DeliveryItem, ok bool)) int {
	delivered := 0
	for _, item := range p.manifest.pending() {
		if ctx.Err() != nil {
			return delivered
		}
		ok := p.retryItem(ctx, item)
		if ok {
			delivered++
		}
		if each != nil {
			each(item, ok)
		}
	}
	return delivered
}

// retryItem makes one attempt and updates the durable state accordingly.
func (p *Pipeline) retryItem(ctx context.Context, item model.DeliveryItem) bool {
	item.Status = model.DeliveryInFlight
	item.Attempts++
	item.LastAttempt = p.now()

	err := p.send(ctx, &item)
	if err == nil {
		if removeErr := p.manifest.remove(item.ID); removeErr != nil {
			p.logger.Error("failed to remove delivered item from manifest", "id", item.ID, "error", removeErr)
		}
		p.removeBackup(&item)
		item.Status = model.DeliveryDelivered
		p.recordOutcome(ctx, &item)
		p.logger.Info("retry delivered", "kind", item.Kind, "id", item.ID, "attempts", item.Attempts)
		return true
	}

	item.LastError = err.Error()

	if item.Attempts >= p.retry.MaxAttempts {
		item.Status = model.DeliveryFailed
		item.LastError = fmt.Sprintf("%v: %v", common.ErrMaxAttempts, err)
		p.recordOutcome(ctx, &item)
		p.logger.Warn("delivery failed permanently",
			"kind", item.Kind, "id", item.ID, "attempts", item.Attempts, "error", err)
	} else {
		item.Status = model.DeliveryPending
		p.logger.Warn("retry failed",
			"kind", item.Kind, "id", item.ID, "attempts", item.Attempts, "error", err)
	}

	if updateErr := p.manifest.update(item); updateErr != nil {
		p.logger.Error("failed to persist delivery manifest", "id", item.ID, "error", updateErr)
	}
	return false
}

// backoffRemaining computes how long until the item is due for another
// attempt: initial delay doubled (by the configured multiplier) per prior
// attempt, capped at the maximum delay.
func (p *Pipeline) backoffRemaining(item *model.DeliveryItem) time.Duration {
	if item.Attempts == 0 || item.LastAttempt.IsZero() {
		return 0
	}

	due := item.LastAttempt.Add(common.BackoffDelay(p.retry, item.Attempts))
	if remaining := due.Sub(p.now()); remaining > 0 {
		return remaining
	}
	return 0
}

func (p *Pipeline) removeBackup(item *model.DeliveryItem) {
	if item.Kind != model.KindUpload {
		return
	}
	if filepath.Dir(item.Payload) != filepath.Clean(p.backupDir) {
		return
	}
	if err := os.Remove(item.Payload); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove backup copy", "path", item.Payload, "error", err)
	}
}

func (p *Pipeline) recordOutcome(ctx context.Context, item *model.DeliveryItem) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordDeliveryOutcome(ctx, item, p.now()); err != nil {
		p.logger.Warn("failed to record delivery outcome", "id", item.ID, "error", err)
	}
}
