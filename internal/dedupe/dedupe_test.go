package dedupe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicator_Window(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		window time.Duration
		gap    time.Duration
		want   bool
	}{
		{name: "inside window is duplicate", window: 2 * time.Second, gap: time.Second, want: true},
		{name: "just inside window", window: 2 * time.Second, gap: 2*time.Second - time.Millisecond, want: true},
		{name: "exactly at window passes", window: 2 * time.Second, gap: 2 * time.Second, want: false},
		{name: "beyond window passes", window: 2 * time.Second, gap: 5 * time.Second, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.window)
			assert.False(t, d.IsDuplicate("900263003496836", base), "first sighting must pass")
			assert.Equal(t, tt.want, d.IsDuplicate("900263003496836", base.Add(tt.gap)))
		})
	}
}

func TestDeduplicator_AlwaysRecordsLatest(t *testing.T) {
	d := New(2 * time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// A continuous burst spaced under the window never passes after the
	// first read, because every suppressed read still refreshes last-seen.
	assert.False(t, d.IsDuplicate("123456789012345", base))
	for i := 1; i <= 10; i++ {
		assert.True(t, d.IsDuplicate("123456789012345", base.Add(time.Duration(i)*time.Second)))
	}

	// Once the burst stops, the next read beyond the window passes again.
	assert.False(t, d.IsDuplicate("123456789012345", base.Add(13*time.Second)))
}

func TestDeduplicator_TagsIndependent(t *testing.T) {
	d := New(2 * time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, d.IsDuplicate("123456789012345", base))
	assert.False(t, d.IsDuplicate("987654321098765", base), "different tag is not a duplicate")
	assert.True(t, d.IsDuplicate("123456789012345", base.Add(time.Second)))
}

func TestNew_RejectsNonPositiveWindow(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-time.Second) })
}
