// Package notify composes detection notifications and sends them through
// an SMTP gateway (email, or SMS via a carrier email gateway).
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dccollins/pet-chip-reader/internal/model"
)

// ComposeOptions carries the context a notification message needs.
type ComposeOptions struct {
	Now          time.Time
	LostTag      string
	RecentWindow time.Duration
}

// Compose renders the notification text for the best detection of a
// batch. A configured lost tag gets an alert prefix.
func Compose(det model.Detection, stats model.EncounterStats, opts ComposeOptions) string {
	var b strings.Builder

	if opts.LostTag != "" && det.TagID == opts.LostTag {
		b.WriteString("🚨 LOST PET FOUND!\n")
	}

	b.WriteString("🐾 Pet detected\n")
	if det.Description != "" {
		fmt.Fprintf(&b, "Animal: %s\n", det.Description)
	}
	fmt.Fprintf(&b, "Chip: %s\n", det.TagID)
	fmt.Fprintf(&b, "Date: %s\n", opts.Now.Format("Monday, January 2, 2006"))
	fmt.Fprintf(&b, "Time: %s\n", opts.Now.Format("15:04"))
	fmt.Fprintf(&b, "Recent visits: %d in %s\n", stats.RecentCount, formatWindow(opts.RecentWindow))
	fmt.Fprintf(&b, "Total visits: %d", stats.TotalCount)

	if len(det.ArtifactLinks) > 0 {
		fmt.Fprintf(&b, "\nPhoto: %s", det.ArtifactLinks[0])
	}

	return b.String()
}

// formatWindow renders a duration the way a human would say it.
func formatWindow(d time.Duration) string {
	switch {
	case d <= 0:
		return "0 min"
	case d < time.Hour:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	case d%time.Hour == 0:
		return fmt.Sprintf("%d hr", int(d.Hours()))
	default:
		return fmt.Sprintf("%d min", int(d.Minutes()))
	}
}
