package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/drgolem/serialmic/pkg/demux"
	"github.com/drgolem/serialmic/pkg/types"
	"github.com/drgolem/serialmic/pkg/wavsink"
)

// Config holds recorder configuration
type Config struct {
	Output     string // Output WAV file path
	SampleRate int    // Sample rate in Hz

	// Continuous keeps scanning for a new START after each STOP and writes
	// every session to its own numbered file, until the source ends or the
	// context is cancelled.
	Continuous bool
}

// Summary describes a finished run
type Summary struct {
	Sessions    []wavsink.Result
	Stats       types.SessionStats
	Elapsed     time.Duration
	Interrupted bool
}

// Recorder drives one recording run: a byte source feeds the demultiplexer,
// which feeds the WAV sink.
//
// Everything happens on the goroutine calling Run; Stats may be read from
// other goroutines (metrics).
type Recorder struct {
	cfg    Config
	logger *slog.Logger
	sink   *wavsink.Sink
	demux  *demux.Demuxer
}

// New creates a Recorder. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sink, err := wavsink.New(wavsink.Config{
		Path:       cfg.Output,
		SampleRate: cfg.SampleRate,
		Numbered:   cfg.Continuous,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sink: %w", err)
	}

	return &Recorder{
		cfg:    cfg,
		logger: logger,
		sink:   sink,
		demux:  demux.New(sink, logger),
	}, nil
}

// Stats implements types.StatsProvider
func (r *Recorder) Stats() types.SessionStats {
	return r.demux.Stats()
}

// Run records from src until the session ends (or, in continuous mode, until
// the source ends or ctx is cancelled). src is closed before Run returns,
// whatever the outcome.
//
// Cancellation is not an error: the open session is finalized and the
// summary is marked Interrupted.
func (r *Recorder) Run(ctx context.Context, src types.ByteSource) (summary Summary, err error) {
	start := time.Now()
	defer func() {
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close byte source: %w", cerr)
		}
		summary.Sessions = r.sink.Results()
		summary.Stats = r.demux.Stats()
		summary.Elapsed = time.Since(start)
	}()

	watched := &eofWatcher{ByteSource: src}

	r.logger.Info("Waiting for acquisition start",
		"sample_rate", r.cfg.SampleRate,
		"output", r.cfg.Output,
		"continuous", r.cfg.Continuous)

	for {
		err = r.demux.Run(ctx, watched)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			r.logger.Info("Recording interrupted")
			summary.Interrupted = true
			return summary, nil
		case err != nil:
			return summary, err
		}

		if !r.cfg.Continuous || watched.eof {
			return summary, nil
		}

		r.demux.Reset()
		r.logger.Info("Waiting for next session", "sessions", len(r.sink.Results()))
	}
}

// eofWatcher remembers whether the wrapped source has reported io.EOF
type eofWatcher struct {
	types.ByteSource
	eof bool
}

func (w *eofWatcher) ReadByte() (byte, error) {
	b, err := w.ByteSource.ReadByte()
	if errors.Is(err, io.EOF) {
		w.eof = true
	}
	return b, err
}
