package types

import (
	"errors"

	"github.com/drgolem/ringbuffer"
)

// ByteSource is the common interface for everything the recorder can read
// the device stream from (serial ports, capture files, in-memory buffers).
type ByteSource interface {
	// ReadByte returns the next byte of the stream.
	// Returns ErrNoData when nothing arrived within the read timeout and
	// io.EOF once the stream has ended for good.
	ReadByte() (byte, error)

	// Close releases the underlying resource
	Close() error
}

// SessionStats holds counters describing what the demultiplexer has seen so far.
// This struct is a snapshot; it is safe to pass around and compare.
type SessionStats struct {
	BytesRead      uint64 // Bytes consumed from the source
	Sessions       uint64 // START markers recognized
	Samples        uint64 // Sample frames decoded
	Desyncs        uint64 // Times the streaming buffer was discarded
	DiscardedBytes uint64 // Bytes dropped by desync recovery
	DiscardedLines uint64 // Control lines that were not a command
}

// StatsProvider is implemented by components that can report SessionStats.
type StatsProvider interface {
	Stats() SessionStats
}

// ErrNoData indicates an empty read: the source is alive but had no byte ready
var ErrNoData = errors.New("no data available")

// Re-export common ringbuffer errors from github.com/drgolem/ringbuffer
// so the in-tree byte ring buffer reports the same sentinels.
var (
	// ErrInsufficientSpace indicates the ringbuffer doesn't have enough space for the write operation
	ErrInsufficientSpace = ringbuffer.ErrInsufficientSpace

	// ErrInsufficientData indicates the ringbuffer doesn't have enough data for the read operation
	ErrInsufficientData = ringbuffer.ErrInsufficientData
)
