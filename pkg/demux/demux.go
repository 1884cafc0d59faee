package demux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/drgolem/serialmic/pkg/audioframe"
	"github.com/drgolem/serialmic/pkg/types"
)

// Wire protocol constants
const (
	// StartCommand is the control line that opens a session
	StartCommand = "Mic acquisition: START"

	// StartErrorCommand is sent by the firmware when acquisition failed to start
	StartErrorCommand = "Mic acquisition: START ERROR"

	// StopMarker is sent in place of a sample frame to close a session
	StopMarker = "Mic acquisition: STOP\r\n"

	// FrameSize is 3 big-endian data bytes plus the terminator
	FrameSize = audioframe.SampleSize + 1

	// Terminator ends control lines and sample frames
	Terminator = '\n'

	// MaxLineLength bounds a control line while scanning for a command
	MaxLineLength = 256
)

var stopMarker = []byte(StopMarker)

// State of the demultiplexer
type State int

const (
	StateAwaitingCommand State = iota
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handler receives the session events the demultiplexer emits, in stream order.
// An error returned by a handler aborts the run and is returned to the caller.
type Handler interface {
	OnStart() error
	OnSample(sample audioframe.Sample) error
	OnStop() error
}

// Demuxer separates control lines from binary sample frames in a single
// byte stream and drives a Handler with START, sample and STOP events.
//
// A Demuxer is driven by one goroutine. Only Stats may be called concurrently.
type Demuxer struct {
	handler Handler
	logger  *slog.Logger
	state   State
	pending []byte

	// skipLine is set after an oversized control line was dropped,
	// so its tail is ignored up to the next terminator.
	skipLine bool

	bytesRead      atomic.Uint64
	sessions       atomic.Uint64
	samples        atomic.Uint64
	desyncs        atomic.Uint64
	discardedBytes atomic.Uint64
	discardedLines atomic.Uint64
}

// New creates a Demuxer in the AwaitingCommand state.
// A nil logger falls back to slog.Default().
func New(handler Handler, logger *slog.Logger) *Demuxer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Demuxer{
		handler: handler,
		logger:  logger,
		state:   StateAwaitingCommand,
		pending: make([]byte, 0, MaxLineLength),
	}
}

// State returns the current state
func (d *Demuxer) State() State {
	return d.state
}

// Pending returns the number of bytes accumulated but not yet classified
func (d *Demuxer) Pending() int {
	return len(d.pending)
}

// Reset returns a closed Demuxer to AwaitingCommand so it can scan for the
// next session. Counters are kept.
func (d *Demuxer) Reset() {
	d.state = StateAwaitingCommand
	d.pending = d.pending[:0]
	d.skipLine = false
}

// Push feeds one byte into the state machine
func (d *Demuxer) Push(b byte) error {
	if d.state == StateClosed {
		return nil
	}

	d.bytesRead.Add(1)

	if d.state == StateAwaitingCommand {
		return d.pushCommand(b)
	}
	return d.pushStreaming(b)
}

// Write feeds every byte of p, implementing io.Writer.
// Bytes after the session closed are accepted and ignored.
func (d *Demuxer) Write(p []byte) (int, error) {
	for i, b := range p {
		if err := d.Push(b); err != nil {
			return i, err
		}
	}
	return len(p), nil
}

// Finish signals the end of the stream. A session still streaming is closed
// with a STOP event so collected samples are not lost; a partial frame is dropped.
func (d *Demuxer) Finish() error {
	switch d.state {
	case StateStreaming:
		if len(d.pending) > 0 {
			d.discard(len(d.pending))
		}
		d.state = StateClosed
		d.logger.Warn("Stream ended without stop marker, closing session")
		return d.handler.OnStop()
	case StateAwaitingCommand:
		d.pending = d.pending[:0]
		d.state = StateClosed
	}
	return nil
}

// Run reads src until the session closes, the source ends or ctx is done.
//
// Empty reads (types.ErrNoData) are retried. On io.EOF or context
// cancellation the demultiplexer is finished, so an open session still gets
// its STOP event. Run returns ctx.Err() when it was cancelled.
// Run does not close src.
func (d *Demuxer) Run(ctx context.Context, src types.ByteSource) error {
	for d.state != StateClosed {
		if err := ctx.Err(); err != nil {
			if ferr := d.Finish(); ferr != nil {
				return ferr
			}
			return err
		}

		b, err := src.ReadByte()
		if err != nil {
			if errors.Is(err, types.ErrNoData) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return d.Finish()
			}
			return fmt.Errorf("failed to read byte: %w", err)
		}

		if err := d.Push(b); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of the counters. Safe for concurrent use.
func (d *Demuxer) Stats() types.SessionStats {
	return types.SessionStats{
		BytesRead:      d.bytesRead.Load(),
		Sessions:       d.sessions.Load(),
		Samples:        d.samples.Load(),
		Desyncs:        d.desyncs.Load(),
		DiscardedBytes: d.discardedBytes.Load(),
		DiscardedLines: d.discardedLines.Load(),
	}
}

func (d *Demuxer) pushCommand(b byte) error {
	if b != Terminator {
		if d.skipLine {
			return nil
		}
		d.pending = append(d.pending, b)
		if len(d.pending) > MaxLineLength {
			d.logger.Debug("Control line too long, dropping", "length", len(d.pending))
			d.pending = d.pending[:0]
			d.skipLine = true
			d.discardedLines.Add(1)
		}
		return nil
	}

	if d.skipLine {
		d.skipLine = false
		return nil
	}

	line := decodeLine(d.pending)
	d.pending = d.pending[:0]

	switch line {
	case StartCommand:
		d.state = StateStreaming
		d.sessions.Add(1)
		d.logger.Info("Mic acquisition: START")
		return d.handler.OnStart()
	case StartErrorCommand:
		d.logger.Warn("Device reported acquisition start error")
	case "":
	default:
		d.logger.Debug("Ignoring line", "line", line)
	}

	d.discardedLines.Add(1)
	return nil
}

func (d *Demuxer) pushStreaming(b byte) error {
	d.pending = append(d.pending, b)

	for {
		// The stop marker is checked before the frame recognizer
		if bytes.Equal(d.pending, stopMarker) {
			d.pending = d.pending[:0]
			d.state = StateClosed
			d.logger.Info("Mic acquisition: STOP")
			return d.handler.OnStop()
		}

		if len(d.pending) == FrameSize && d.pending[FrameSize-1] == Terminator {
			sample := audioframe.FromWire(d.pending[:audioframe.SampleSize])
			d.pending = d.pending[:0]
			d.samples.Add(1)
			return d.handler.OnSample(sample)
		}

		if len(d.pending) < FrameSize || bytes.HasPrefix(stopMarker, d.pending) {
			return nil
		}

		d.resync()
	}
}

// resync drops the shortest leading run of bytes that can no longer become
// a frame or the stop marker. The cut is made after the first terminator,
// since the terminator is the last byte of a frame, or earlier where a stop
// marker prefix begins. Without either the whole buffer goes.
func (d *Demuxer) resync() {
	n := bytes.IndexByte(d.pending, Terminator) + 1
	if n == 0 {
		n = len(d.pending)
	}
	for i := 1; i < n; i++ {
		if bytes.HasPrefix(stopMarker, d.pending[i:]) {
			n = i
			break
		}
	}
	d.discard(n)
}

func (d *Demuxer) discard(n int) {
	d.desyncs.Add(1)
	d.discardedBytes.Add(uint64(n))
	d.logger.Debug("Discarding unrecognized bytes", "bytes", n, "pending", len(d.pending))

	d.pending = append(d.pending[:0], d.pending[n:]...)
}

// decodeLine decodes a control line best-effort: invalid UTF-8 is dropped
// and surrounding whitespace (including \r) trimmed.
func decodeLine(b []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
}
