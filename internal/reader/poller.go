package reader

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// Poller issues one poll command per cycle and accumulates the reader's
// response until the frame terminator or the response deadline.
type Poller struct {
	port        Port
	command     []byte
	respTimeout time.Duration
}

// DefaultResponseTimeout bounds how long a single poll cycle waits for
// a complete frame before concluding no tag is present.
const DefaultResponseTimeout = 200 * time.Millisecond

// NewPoller wraps a port with the poll command it should repeat.
func NewPoller(port Port, command []byte, respTimeout time.Duration) *Poller {
	if respTimeout <= 0 {
		respTimeout = DefaultResponseTimeout
	}
	return &Poller{
		port:        port,
		command:     command,
		respTimeout: respTimeout,
	}
}

// Poll writes the poll command and reads the response. It returns the
// raw frame bytes, or (nil, nil) when the reader stayed silent for the
// whole response window, which is the normal idle case. I/O failures
// are returned to the caller so it can back off.
func (p *Poller) Poll(ctx context.Context) ([]byte, error) {
	if _, err := p.port.Write(p.command); err != nil {
		return nil, fmt.Errorf("failed to write poll command: %w", err)
	}

	deadline := time.Now().Add(p.respTimeout)
	var frame bytes.Buffer
	chunk := make([]byte, 64)

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := p.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to read from serial port: %w", err)
		}
		if n == 0 {
			continue
		}

		frame.Write(chunk[:n])
		if bytes.IndexByte(chunk[:n], '#') >= 0 {
			return frame.Bytes(), nil
		}
	}

	if frame.Len() == 0 {
		return nil, nil
	}
	// Partial frame with no terminator; hand it up and let the codec
	// reject it.
	return frame.Bytes(), nil
}

// Close releases the underlying port.
func (p *Poller) Close() error {
	return p.port.Close()
}
