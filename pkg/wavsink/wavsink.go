package wavsink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/drgolem/serialmic/pkg/audioframe"

	wav "github.com/youpy/go-wav"
)

// Config holds sink configuration
type Config struct {
	Path       string // Output WAV file path
	SampleRate int    // Sample rate written to the WAV header, in Hz

	// Numbered appends the session number to Path (output_001.wav, ...)
	// so one run can record several sessions.
	Numbered bool
}

// Result describes how a session was finalized
type Result struct {
	Session int    // 1-based session number
	Path    string // Written file, empty if nothing was written
	Samples int    // Samples written
}

// Sink accumulates the samples of the active session and writes them as a
// mono 24-bit PCM WAV file when the session stops.
// Implements demux.Handler interface.
type Sink struct {
	cfg      Config
	logger   *slog.Logger
	samples  *audioframe.Sequence
	sessions int
	results  []Result
}

// New creates a sink. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("output path cannot be empty")
	}
	if cfg.SampleRate <= 0 || cfg.SampleRate > 384000 {
		return nil, fmt.Errorf("invalid sample rate: %d (valid range 1-384000)", cfg.SampleRate)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Sink{
		cfg:     cfg,
		logger:  logger,
		samples: audioframe.NewSequence(audioframe.MonoFormat(cfg.SampleRate)),
	}, nil
}

// OnStart begins a new session with an empty accumulator
func (s *Sink) OnStart() error {
	s.sessions++
	s.samples.Reset()
	s.logger.Debug("Session started", "session", s.sessions, "path", s.path())
	return nil
}

// OnSample appends a sample to the current session
func (s *Sink) OnSample(sample audioframe.Sample) error {
	s.samples.Append(sample)

	if n := s.samples.Len(); n%s.cfg.SampleRate == 0 {
		s.logger.Debug("Recording progress",
			"samples", n,
			"duration", s.samples.Duration(),
			"peak", peakLevel(s.samples, n-s.cfg.SampleRate, n))
	}
	return nil
}

// peakLevel returns the largest absolute sample value in seq[from:to]
func peakLevel(seq *audioframe.Sequence, from, to int) int32 {
	var peak int32
	for i := max(from, 0); i < to; i++ {
		v := seq.At(i).Int32()
		if v < 0 {
			v = -v
		}
		peak = max(peak, v)
	}
	return peak
}

// OnStop finalizes the session. An empty session is reported and no file is
// written; otherwise all samples are written in a single WAV file.
func (s *Sink) OnStop() error {
	result := Result{Session: s.sessions}

	n := s.samples.Len()
	if n == 0 {
		s.logger.Info("No samples received", "session", s.sessions)
		s.results = append(s.results, result)
		return nil
	}

	path := s.path()
	s.logger.Info("Saving samples", "samples", n, "path", path)

	if err := writeWAVFile(path, s.samples); err != nil {
		return err
	}

	s.logger.Info("WAV file saved",
		"path", path,
		"samples", n,
		"duration", s.samples.Duration(),
		"format", s.samples.Format.String())

	result.Path = path
	result.Samples = n
	s.results = append(s.results, result)
	s.samples.Reset()

	return nil
}

// Results returns one entry per finalized session, in order
func (s *Sink) Results() []Result {
	return s.results
}

// Pending returns the number of samples accumulated for the active session
func (s *Sink) Pending() int {
	return s.samples.Len()
}

func (s *Sink) path() string {
	if !s.cfg.Numbered {
		return s.cfg.Path
	}
	return SessionPath(s.cfg.Path, max(s.sessions, 1))
}

// SessionPath inserts a zero-padded session number before the extension
//
// Example:
//
//	SessionPath("rec/output.wav", 2) // "rec/output_002.wav"
func SessionPath(path string, session int) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".wav"
	}
	return fmt.Sprintf("%s_%03d%s", base, session, ext)
}

// writeWAVFile writes the sequence as a WAV file. The file is created (or
// truncated) and always closed before returning.
func writeWAVFile(fileName string, seq *audioframe.Sequence) (err error) {
	fOut, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := fOut.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	format := seq.Format
	wavWriter := wav.NewWriter(fOut,
		uint32(seq.Len()),
		uint16(format.Channels),
		format.SampleRate,
		uint16(format.BitsPerSample))

	if _, err := wavWriter.Write(seq.Bytes()); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}

	return nil
}
