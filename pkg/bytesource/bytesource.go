package bytesource

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/drgolem/serialmic/pkg/types"

	"github.com/drgolem/ringbuffer"
	"go.bug.st/serial"
)

const (
	// DefaultBaudRate is the UART speed of the microphone firmware
	DefaultBaudRate = 460800

	// DefaultReadTimeout bounds how long a single read blocks
	DefaultReadTimeout = time.Second

	// DefaultBufferSize is the staging buffer size in bytes
	DefaultBufferSize = 4096
)

// Source hands out the bytes of an io.Reader one at a time.
// Reads are done in chunks into a ring buffer; a reader that returns (0, nil),
// which is what a serial port does when its read timeout elapses, is reported
// as types.ErrNoData.
// Implements types.ByteSource interface.
type Source struct {
	r      io.Reader
	closer io.Closer
	ring   *ringbuffer.RingBuffer
	chunk  []byte // one read's worth of staging space
	eof    bool
	closed bool
}

// New wraps r. If r implements io.Closer it is closed by Close.
func New(r io.Reader, bufferSize int) *Source {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	ring := ringbuffer.New(uint64(bufferSize))
	s := &Source{
		r:     r,
		ring:  ring,
		chunk: make([]byte, ring.Size()),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// ReadByte returns the next byte.
//
// Returns:
//   - types.ErrNoData if the underlying reader produced nothing on this poll
//   - io.EOF once the reader is exhausted and all buffered bytes were handed out
func (s *Source) ReadByte() (byte, error) {
	if s.closed {
		return 0, os.ErrClosed
	}

	if s.ring.AvailableRead() == 0 {
		if s.eof {
			return 0, io.EOF
		}
		if err := s.fill(); err != nil {
			return 0, err
		}
		if s.ring.AvailableRead() == 0 {
			if s.eof {
				return 0, io.EOF
			}
			return 0, types.ErrNoData
		}
	}

	b := s.ring.PeekContiguous()[0]
	if err := s.ring.Consume(1); err != nil {
		return 0, err
	}
	return b, nil
}

// fill performs one read and stages it in the ring buffer.
// It is only called once the ring is drained, so a full chunk always fits.
func (s *Source) fill() error {
	n, err := s.r.Read(s.chunk)
	if n > 0 {
		if _, werr := s.ring.Write(s.chunk[:n]); werr != nil {
			return fmt.Errorf("failed to stage read: %w", werr)
		}
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		s.eof = true
		return nil
	}
	return fmt.Errorf("failed to read from source: %w", err)
}

// Close closes the underlying reader. It is safe to call more than once.
func (s *Source) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.ring.Reset()

	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// SerialConfig describes how to open a serial port
type SerialConfig struct {
	Port        string        // Port name, e.g. /dev/ttyACM0 or COM12
	BaudRate    int           // Bits per second
	ReadTimeout time.Duration // Upper bound for a single blocking read
	BufferSize  int           // Staging buffer size in bytes
}

// DefaultSerialConfig returns the settings the microphone firmware uses
func DefaultSerialConfig(port string) SerialConfig {
	return SerialConfig{
		Port:        port,
		BaudRate:    DefaultBaudRate,
		ReadTimeout: DefaultReadTimeout,
		BufferSize:  DefaultBufferSize,
	}
}

// OpenSerial opens and configures a serial port as a byte source (8N1).
// Any failure here is fatal for a recording run.
func OpenSerial(cfg SerialConfig) (*Source, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("serial port name is empty")
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Port, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Port, err)
	}

	return New(port, cfg.BufferSize), nil
}

// OpenFile opens a raw capture of the serial stream as a byte source.
// The end of the file is the end of the stream.
func OpenFile(fileName string) (*Source, error) {
	file, err := os.Open(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	return New(file, DefaultBufferSize), nil
}

// PortInfo describes a serial port found on the system
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}
