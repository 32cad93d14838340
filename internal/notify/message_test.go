package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dccollins/pet-chip-reader/internal/model"
)

func TestCompose(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 31, 0, 0, time.UTC)

	det := model.Detection{
		TagID:         "987654321098765",
		Timestamp:     now,
		Description:   "tabby cat (95% confident)",
		ArtifactLinks: []string{"https://drive.google.com/file/d/1abc/view"},
	}
	stats := model.EncounterStats{RecentCount: 3, TotalCount: 15}

	got := Compose(det, stats, ComposeOptions{Now: now, RecentWindow: 30 * time.Minute})

	want := "🐾 Pet detected\n" +
		"Animal: tabby cat (95% confident)\n" +
		"Chip: 987654321098765\n" +
		"Date: Monday, June 2, 2025\n" +
		"Time: 14:31\n" +
		"Recent visits: 3 in 30 min\n" +
		"Total visits: 15\n" +
		"Photo: https://drive.google.com/file/d/1abc/view"
	assert.Equal(t, want, got)
}

func TestCompose_LostTagAlert(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 31, 0, 0, time.UTC)
	det := model.Detection{TagID: "900263003496836", Timestamp: now}

	got := Compose(det, model.EncounterStats{RecentCount: 1, TotalCount: 1}, ComposeOptions{
		Now:          now,
		LostTag:      "900263003496836",
		RecentWindow: 30 * time.Minute,
	})
	assert.Contains(t, got, "🚨 LOST PET FOUND!")

	// Other tags get no alert prefix.
	other := Compose(model.Detection{TagID: "111111111111111"}, model.EncounterStats{}, ComposeOptions{
		Now:          now,
		LostTag:      "900263003496836",
		RecentWindow: 30 * time.Minute,
	})
	assert.NotContains(t, other, "LOST PET")
}

func TestCompose_NoDescriptionNoLink(t *testing.T) {
	now := time.Date(2025, 6, 2, 14, 31, 0, 0, time.UTC)
	det := model.Detection{TagID: "123456789012345", Timestamp: now}

	got := Compose(det, model.EncounterStats{RecentCount: 1, TotalCount: 4}, ComposeOptions{
		Now:          now,
		RecentWindow: time.Hour,
	})

	assert.NotContains(t, got, "Animal:")
	assert.NotContains(t, got, "Photo:")
	assert.Contains(t, got, "Recent visits: 1 in 1 hr")
	assert.Contains(t, got, "Total visits: 4")
}

func TestFormatWindow(t *testing.T) {
	tests := []struct {
		want string
		d    time.Duration
	}{
		{d: 30 * time.Minute, want: "30 min"},
		{d: time.Hour, want: "1 hr"},
		{d: 90 * time.Minute, want: "90 min"},
		{d: 0, want: "0 min"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatWindow(tt.d))
	}
}

func TestBuildMessage(t *testing.T) {
	msg := string(BuildMessage("from@example.com", "5551234567@msg.fi.google.com", "body text"))

	assert.Contains(t, msg, "From: from@example.com\r\n")
	assert.Contains(t, msg, "To: 5551234567@msg.fi.google.com\r\n")
	assert.Contains(t, msg, "Subject: \r\n", "empty subject keeps SMS gateways happy")
	assert.Contains(t, msg, "\r\n\r\nbody text\r\n")
}
