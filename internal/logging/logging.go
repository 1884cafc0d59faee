package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/drgolem/serialmic/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// New creates the structured logger described by cfg.
// verbose forces debug level, like the --verbose flag of every command.
// The returned closer releases a log file, if one was opened.
func New(cfg config.LoggingConfig, verbose bool) (*slog.Logger, io.Closer) {
	level := ParseLevel(cfg.Level)
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug && cfg.Format == "json",
	}

	var (
		output io.Writer
		closer io.Closer = nopCloser{}
	)
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		rotating := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		output = rotating
		closer = rotating
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler), closer
}

// ParseLevel maps a config level name to a slog.Level, defaulting to info
func ParseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
