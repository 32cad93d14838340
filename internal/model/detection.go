// Package model defines the core domain models used throughout the application.
package model

import "time"

// TagEvent is a single valid decoded read from the chip reader.
// Events are immutable once created.
type TagEvent struct {
	DetectedAt time.Time
	TagID      string
	RawFrame   []byte
}

// Detection represents one encounter of a tag together with any artifacts
// captured for it. ArtifactLinks and Description are filled in later by the
// delivery and selection stages.
type Detection struct {
	Timestamp     time.Time
	TagID         string
	Description   string
	ArtifactPaths []string
	ArtifactLinks []string
}

// EncounterStats summarizes a tag's recorded history.
type EncounterStats struct {
	// RecentCount is the number of encounters within the recent window,
	// including the one just recorded.
	RecentCount int
	// TotalCount is the number of encounters retained within the
	// retention period.
	TotalCount int
}
