package model

import "time"

// DeliveryStatus tracks a delivery item through the pipeline.
// Transitions are monotonic: pending -> in_flight -> delivered or
// failed_permanently.
type DeliveryStatus string

// Delivery status constants.
const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryInFlight  DeliveryStatus = "IN_FLIGHT"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED_PERMANENTLY"
)

// DeliveryKind selects the transport used for an item.
type DeliveryKind string

// Delivery kind constants.
const (
	KindUpload       DeliveryKind = "upload"
	KindNotification DeliveryKind = "notification"
)

// DeliveryItem is one unit of outbound work: an artifact upload or a
// notification send. Failed items are persisted to the local backup
// manifest and retried by the background worker.
type DeliveryItem struct {
	CreatedAt   time.Time      `json:"created_at"`
	LastAttempt time.Time      `json:"last_attempt,omitempty"`
	ID          string         `json:"id"`
	Kind        DeliveryKind   `json:"kind"`
	Status      DeliveryStatus `json:"status"`
	TagID       string         `json:"tag_id,omitempty"`
	Payload     string         `json:"payload"`
	Destination string         `json:"destination"`
	Link        string         `json:"link,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	Attempts    int            `json:"attempts"`
}

// Terminal reports whether the item has reached a final status.
func (d *DeliveryItem) Terminal() bool {
	return d.Status == DeliveryDelivered || d.Status == DeliveryFailed
}
