// Package ledger maintains rolling per-tag encounter history and computes
// recency statistics over it.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/dccollins/pet-chip-reader/internal/model"
	"github.com/dccollins/pet-chip-reader/internal/storage"
)

// Ledger records encounters in SQLite and answers recent/lifetime count
// queries. Entries older than the retention window are purged lazily on
// every write, so retained state stays bounded by retention multiplied by
// observed tag cardinality.
type Ledger struct {
	db        *storage.DB
	retention time.Duration
}

// New creates a Ledger over db with the given retention window.
func New(db *storage.DB, retention time.Duration) *Ledger {
	if retention <= 0 {
		panic("ledger: retention must be positive")
	}
	return &Ledger{db: db, retention: retention}
}

// Record appends an encounter for tagID and purges that tag's entries
// older than the retention window.
func (l *Ledger) Record(ctx context.Context, tagID string, ts time.Time) error {
	conn := l.db.Conn()

	if _, err := conn.ExecContext(ctx,
		`INSERT INTO encounters (tag_id, seen_at) VALUES (?, ?)`,
		tagID, ts.UTC()); err != nil {
		return fmt.Errorf("failed to record encounter for %s: %w", tagID, err)
	}

	if _, err := conn.ExecContext(ctx,
		`DELETE FROM encounters WHERE tag_id = ? AND seen_at < ?`,
		tagID, ts.UTC().Add(-l.retention)); err != nil {
		return fmt.Errorf("failed to purge old encounters for %s: %w", tagID, err)
	}

	return nil
}

// Stats returns the counts for tagID: encounters within
// [now-recentWindow, now] and the total retained history size.
func (l *Ledger) Stats(ctx context.Context, tagID string, now time.Time, recentWindow time.Duration) (model.EncounterStats, error) {
	conn := l.db.Conn()
	var stats model.EncounterStats

	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM encounters WHERE tag_id = ?`,
		tagID).Scan(&stats.TotalCount); err != nil {
		return stats, fmt.Errorf("failed to count encounters for %s: %w", tagID, err)
	}

	if err := conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM encounters WHERE tag_id = ? AND seen_at >= ? AND seen_at <= ?`,
		tagID, now.UTC().Add(-recentWindow), now.UTC()).Scan(&stats.RecentCount); err != nil {
		return stats, fmt.Errorf("failed to count recent encounters for %s: %w", tagID, err)
	}

	return stats, nil
}
