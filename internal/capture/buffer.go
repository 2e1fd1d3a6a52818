// Package capture stages raw audio bytes during push-to-talk recording,
// before the recording is handed to a speech-to-text provider.
//
// The buffer enforces a hard capacity ceiling: an append that would push the
// accumulated size past the ceiling is rejected outright, with no partial
// write. Recording state (whether chunks are currently accepted at all) is
// owned by the session, not by the buffer.
package capture

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the recording ceiling used when none is configured.
// Matches roughly 30 seconds of 16 kHz mono PCM16.
const DefaultCapacity = 1 << 20 // 1 MiB

// ErrCapacityExceeded is returned by [Buffer.Append] when the append would
// exceed the buffer's capacity. The buffer contents are unchanged.
var ErrCapacityExceeded = errors.New("capture: buffer capacity exceeded")

// Buffer is an append-only byte accumulator with a fixed capacity ceiling.
// One buffer belongs to exactly one recording session at a time.
//
// All methods are safe for concurrent use; chunk appends and size queries may
// interleave from different goroutines.
type Buffer struct {
	mu       sync.Mutex
	data     []byte
	capacity int
}

// NewBuffer creates a buffer with the given capacity ceiling in bytes.
// Non-positive capacities fall back to [DefaultCapacity].
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity}
}

// Append adds p to the buffer. If the accumulated size would exceed the
// capacity ceiling the append is rejected whole: no bytes of p are written
// and [ErrCapacityExceeded] is returned.
func (b *Buffer) Append(p []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data)+len(p) > b.capacity {
		return fmt.Errorf("capture: appending %d bytes to %d would pass the %d byte ceiling: %w",
			len(p), len(b.data), b.capacity, ErrCapacityExceeded)
	}
	b.data = append(b.data, p...)
	return nil
}

// Len returns the number of accumulated bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Cap returns the capacity ceiling.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Bytes returns a copy of the accumulated bytes without clearing them.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Drain returns the accumulated bytes and empties the buffer. The returned
// slice is owned by the caller.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.data
	b.data = nil
	return out
}

// Reset discards all accumulated bytes. Called at start-of-recording so a
// stale partial capture never leaks into a new recording.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = nil
}
