// Package batch collapses detections of one tag arriving within a quiet
// period into a single outbound batch.
package batch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dccollins/pet-chip-reader/internal/model"
)

// FlushFunc receives a completed batch in arrival order. It runs on a
// worker goroutine, never on the caller of Add.
type FlushFunc func(tagID string, detections []model.Detection)

// Aggregator debounces detections per tag: each new detection appends to
// the tag's pending batch and pushes the flush deadline out by the full
// delay. A batch flushes when its timer fires undisturbed or when it
// reaches the per-batch cap, whichever comes first.
type Aggregator struct {
	clock   Clock
	pending map[string]*pendingBatch
	flush   FlushFunc
	logger  *slog.Logger
	delay   time.Duration
	max     int
	stopped bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

type pendingBatch struct {
	timer      Timer
	detections []model.Detection
	generation uint64
}

// New creates an Aggregator. delay must be positive and max at least 1;
// violations are programmer errors and panic.
func New(delay time.Duration, max int, clock Clock, flush FlushFunc, logger *slog.Logger) *Aggregator {
	if delay <= 0 {
		panic("batch: delay must be positive")
	}
	if max < 1 {
		panic("batch: max per batch must be at least 1")
	}
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		clock:   clock,
		pending: make(map[string]*pendingBatch),
		flush:   flush,
		logger:  logger,
		delay:   delay,
		max:     max,
	}
}

// Add appends det to its tag's pending batch and resets the flush timer.
// Detections arriving after Stop are dropped with a warning.
func (a *Aggregator) Add(det model.Detection) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		a.logger.Warn("detection dropped, aggregator stopped", "tag_id", det.TagID)
		return
	}

	b, ok := a.pending[det.TagID]
	if !ok {
		b = &pendingBatch{}
		a.pending[det.TagID] = b
	}

	b.detections = append(b.detections, det)

	// Cancel the previous timer explicitly; a stale timer that already
	// fired is fenced off by the generation check in fire.
	if b.timer != nil {
		b.timer.Stop()
	}
	b.generation++

	if len(b.detections) >= a.max {
		a.logger.Info("batch reached cap, flushing early",
			"tag_id", det.TagID, "size", len(b.detections))
		a.flushLocked(det.TagID, b)
		return
	}

	gen := b.generation
	b.timer = a.clock.AfterFunc(a.delay, func() {
		a.fire(det.TagID, gen)
	})
}

// fire is the timer callback. The generation fence drops callbacks from
// timers that were logically cancelled by a later Add.
func (a *Aggregator) fire(tagID string, generation uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.pending[tagID]
	if !ok || b.generation != generation || a.stopped {
		return
	}
	a.flushLocked(tagID, b)
}

// flushLocked swaps the batch out and hands it to the flush callback on a
// worker goroutine. Caller holds a.mu.
func (a *Aggregator) flushLocked(tagID string, b *pendingBatch) {
	if b.timer != nil {
		b.timer.Stop()
	}
	detections := b.detections
	delete(a.pending, tagID)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.flush(tagID, detections)
	}()
}

// Pending reports the number of tags with an open batch.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Stop shuts the aggregator down. With drain set, every open batch is
// flushed immediately; otherwise open batches are discarded with a
// warning. Stop blocks until all flush callbacks have returned.
func (a *Aggregator) Stop(drain bool) {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true

	for tagID, b := range a.pending {
		if b.timer != nil {
			b.timer.Stop()
		}
		if drain {
			a.flushLocked(tagID, b)
		} else {
			a.logger.Warn("discarding pending batch on shutdown",
				"tag_id", tagID, "size", len(b.detections))
			delete(a.pending, tagID)
		}
	}
	a.mu.Unlock()

	a.wg.Wait()
}
