package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dccollins/pet-chip-reader/internal/model"
)

// RecordDeliveryOutcome stores the terminal state of a delivery item so
// operators can audit what was (or wasn't) delivered after the fact.
func (d *DB) RecordDeliveryOutcome(ctx context.Context, item *model.DeliveryItem, completedAt time.Time) error {
	if !item.Terminal() {
		return fmt.Errorf("delivery item %s is not in a terminal state: %s", item.ID, item.Status)
	}

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO delivery_outcomes (item_id, kind, tag_id, destination, status, attempts, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			completed_at = excluded.completed_at`,
		item.ID, string(item.Kind), item.TagID, item.Destination,
		string(item.Status), item.Attempts, completedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record delivery outcome: %w", err)
	}
	return nil
}

// DeliveryOutcomeCounts summarizes terminal delivery outcomes, optionally
// scoped to one tag.
func (d *DB) DeliveryOutcomeCounts(ctx context.Context, tagID string) (delivered, failed int, err error) {
	query := `SELECT status, COUNT(*) FROM delivery_outcomes`
	args := []any{}
	if tagID != "" {
		query += ` WHERE tag_id = ?`
		args = append(args, tagID)
	}
	query += ` GROUP BY status`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to query delivery outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return 0, 0, fmt.Errorf("failed to scan delivery outcome: %w", err)
		}
		switch model.DeliveryStatus(status) {
		case model.DeliveryDelivered:
			delivered = count
		case model.DeliveryFailed:
			failed = count
		}
	}
	return delivered, failed, rows.Err()
}
