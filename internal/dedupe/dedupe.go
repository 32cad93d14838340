// Package dedupe suppresses repeat reads of a tag within a short window.
package dedupe

import (
	"sync"
	"time"
)

// Deduplicator tracks the last time each tag was seen. It always records
// the newest timestamp, even for suppressed reads, so a burst of decode
// noise cannot slip through once the window elapses mid-burst.
type Deduplicator struct {
	lastSeen map[string]time.Time
	window   time.Duration
	mu       sync.Mutex
}

// New creates a Deduplicator with the given suppression window.
func New(window time.Duration) *Deduplicator {
	if window <= 0 {
		panic("dedupe: window must be positive")
	}
	return &Deduplicator{
		lastSeen: make(map[string]time.Time),
		window:   window,
	}
}

// IsDuplicate reports whether tagID was seen less than the window before
// now, and records now as the latest sighting regardless of the outcome.
func (d *Deduplicator) IsDuplicate(tagID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, seen := d.lastSeen[tagID]
	d.lastSeen[tagID] = now

	return seen && now.Sub(last) < d.window
}
