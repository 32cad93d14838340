// Package reader drives the half-duplex request/response exchange with
// the chip reader over its serial link.
package reader

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the serial handle the poller owns. Read should return (0, nil)
// on a read timeout rather than blocking forever, so the poll loop stays
// responsive to shutdown.
type Port interface {
	io.ReadWriteCloser
}

// chunkTimeout is the per-Read timeout on the real port. The poller's
// own deadline bounds the whole response.
const chunkTimeout = 50 * time.Millisecond

// OpenPort opens the serial device at the given baud rate, 8N1.
func OpenPort(device string, baud int) (Port, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", device, err)
	}

	if err := port.SetReadTimeout(chunkTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set serial read timeout: %w", err)
	}

	return port, nil
}
