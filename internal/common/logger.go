package common

import (
	"log/slog"
	"os"
)

// SetupLogger installs the process-wide slog handler. Format "json" is
// for journald/aggregation; anything else gets the text handler.
func SetupLogger(level slog.Level, format string) error {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
