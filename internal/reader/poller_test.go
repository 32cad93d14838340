package reader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort scripts the chunks successive Reads return. An empty chunk
// models a read timeout (0, nil).
type fakePort struct {
	chunks  [][]byte
	reads   int
	written [][]byte
	readErr error
	closed  bool
}

func (f *fakePort) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	f.written = append(f.written, buf)
	return len(p), nil
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	if f.reads >= len(f.chunks) {
		return 0, nil
	}
	chunk := f.chunks[f.reads]
	f.reads++
	return copy(p, chunk), nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func TestPollerWritesCommandAndReturnsFrame(t *testing.T) {
	port := &fakePort{
		chunks: [][]byte{[]byte("$A0101D123456789012345"), []byte("35#")},
	}
	poller := NewPoller(port, []byte("$A0101D05#"), 100*time.Millisecond)

	frame, err := poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("$A0101D12345678901234535#"), frame)

	require.Len(t, port.written, 1)
	assert.Equal(t, []byte("$A0101D05#"), port.written[0])
}

func TestPollerSilentReaderReturnsNilFrame(t *testing.T) {
	port := &fakePort{}
	poller := NewPoller(port, []byte("$A0101D05#"), 30*time.Millisecond)

	frame, err := poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, frame)
}

func TestPollerPartialFrameReturnedAtDeadline(t *testing.T) {
	port := &fakePort{
		chunks: [][]byte{[]byte("$A0101D123")},
	}
	poller := NewPoller(port, []byte("$A0101D05#"), 30*time.Millisecond)

	frame, err := poller.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("$A0101D123"), frame)
}

func TestPollerReadErrorSurfaces(t *testing.T) {
	port := &fakePort{readErr: errors.New("device unplugged")}
	poller := NewPoller(port, []byte("$A0101D05#"), 100*time.Millisecond)

	_, err := poller.Poll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
}

func TestPollerHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	port := &fakePort{}
	poller := NewPoller(port, []byte("$A0101D05#"), time.Second)

	start := time.Now()
	_, err := poller.Poll(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestPollerCloseClosesPort(t *testing.T) {
	port := &fakePort{}
	poller := NewPoller(port, []byte("$A0101D05#"), 0)
	require.NoError(t, poller.Close())
	assert.True(t, port.closed)
}
