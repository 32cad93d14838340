// Package capture produces photo artifacts for detected tags by invoking
// an external still-capture command.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// CommandCapture shells out to a camera capture tool (rpicam-still or
// compatible) once per detection. Hardware failures degrade to an empty
// artifact list; the pipeline carries on without photos.
type CommandCapture struct {
	logger   *slog.Logger
	command  string
	photoDir string
	args     []string
	timeout  time.Duration
}

// NewCommandCapture creates a capture backed by the given command. Extra
// args are passed before the output flag.
func NewCommandCapture(command, photoDir string, args []string, timeout time.Duration, logger *slog.Logger) (*CommandCapture, error) {
	if command == "" {
		return nil, fmt.Errorf("capture command is required")
	}
	if err := os.MkdirAll(photoDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create photo directory: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandCapture{
		logger:   logger,
		command:  command,
		photoDir: photoDir,
		args:     args,
		timeout:  timeout,
	}, nil
}

// Capture takes one photo for tagID and returns its path, or an empty
// slice when the camera is unavailable.
func (c *CommandCapture) Capture(ctx context.Context, tagID string) []string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	filename := fmt.Sprintf("%s_%s_cam0.jpg", time.Now().Format("20060102_150405"), tagID)
	path := filepath.Join(c.photoDir, filename)

	args := append(append([]string{}, c.args...), "-o", path)
	cmd := exec.CommandContext(ctx, c.command, args...)

	if out, err := cmd.CombinedOutput(); err != nil {
		c.logger.Error("photo capture failed",
			"tag_id", tagID, "command", c.command, "error", err, "output", string(out))
		return nil
	}

	c.logger.Info("photo saved", "tag_id", tagID, "path", path)
	return []string{path}
}

// Mock is a scripted capture for tests.
type Mock struct {
	// Paths returned on each call, in order; the last entry repeats.
	Paths [][]string
	calls int
}

// Capture returns the next scripted artifact list.
func (m *Mock) Capture(_ context.Context, _ string) []string {
	if len(m.Paths) == 0 {
		return nil
	}
	i := m.calls
	if i >= len(m.Paths) {
		i = len(m.Paths) - 1
	}
	m.calls++
	return m.Paths[i]
}
