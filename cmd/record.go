package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drgolem/serialmic/internal/config"
	"github.com/drgolem/serialmic/internal/logging"
	"github.com/drgolem/serialmic/internal/metrics"
	"github.com/drgolem/serialmic/internal/recorder"
	"github.com/drgolem/serialmic/pkg/bytesource"
	"github.com/drgolem/serialmic/pkg/types"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record microphone sessions from a serial port",
	Long: `Listen on a serial port for "Mic acquisition: START", collect the 24-bit
samples that follow and write them to a mono WAV file when the device sends
"Mic acquisition: STOP". Pressing Ctrl+C while recording saves what was
received so far.

Examples:
  # Record one session at 8 kHz to output.wav
  serialmic record --port /dev/ttyACM0

  # Windows port, 16 kHz firmware, custom output
  serialmic record --port COM12 --rate 16000 --output take.wav

  # Keep recording sessions into take_001.wav, take_002.wav, ...
  serialmic record --port /dev/ttyUSB0 --output take.wav --continuous

  # Load settings from a file and expose Prometheus metrics
  serialmic record --config recorder.yaml --metrics-addr :9464

Serial Settings:
  Baud rate 460800 (8N1) unless --baud is given. Reads block for at most
  --timeout; an empty read is not an error.`,
	Args: cobra.NoArgs,
	Run:  runRecord,
}

func init() {
	rootCmd.AddCommand(recordCmd)

	defaults := config.Default()
	recordCmd.Flags().StringP("port", "p", defaults.Serial.Port, "Serial port (e.g. /dev/ttyACM0, COM12)")
	recordCmd.Flags().Int("baud", defaults.Serial.BaudRate, "Serial baud rate")
	recordCmd.Flags().Duration("timeout", defaults.Serial.GetReadTimeoutDuration(), "Serial read timeout")
	recordCmd.Flags().IntP("rate", "r", defaults.Audio.SampleRate, "Sample rate in Hz written to the WAV header")
	recordCmd.Flags().StringP("output", "o", defaults.Audio.Output, "Output WAV file path")
	recordCmd.Flags().Bool("continuous", false, "Record every session into numbered files until interrupted")
	recordCmd.Flags().String("config", "", "YAML configuration file")
	recordCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	recordCmd.Flags().BoolP("verbose", "v", false, "Verbose output (debug logging)")
}

func runRecord(cmd *cobra.Command, args []string) {
	cfg := resolveConfig(cmd)

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, logCloser := logging.New(cfg.Logging, verbose)
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("Opening serial port",
		"port", cfg.Serial.Port,
		"baud_rate", cfg.Serial.BaudRate,
		"read_timeout", cfg.Serial.GetReadTimeoutDuration())

	src, err := bytesource.OpenSerial(bytesource.SerialConfig{
		Port:        cfg.Serial.Port,
		BaudRate:    cfg.Serial.BaudRate,
		ReadTimeout: cfg.Serial.GetReadTimeoutDuration(),
		BufferSize:  cfg.Serial.BufferSize,
	})
	if err != nil {
		slog.Error("Failed to open byte source", "error", err)
		slog.Error("Hint: run 'serialmic ports' to list available ports")
		logCloser.Close()
		os.Exit(1)
	}

	slog.Info("Listening", "port", cfg.Serial.Port)

	if !runRecording(cfg, src, logger) {
		logCloser.Close()
		os.Exit(1)
	}
}

// resolveConfig loads --config if given and applies explicitly set flags on top
func resolveConfig(cmd *cobra.Command) *config.Config {
	cfg := config.Default()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port, _ = flags.GetString("port")
	}
	if flags.Changed("baud") {
		cfg.Serial.BaudRate, _ = flags.GetInt("baud")
	}
	if flags.Changed("timeout") {
		timeout, _ := flags.GetDuration("timeout")
		cfg.Serial.ReadTimeout = int(timeout / time.Millisecond)
	}
	if flags.Changed("rate") {
		cfg.Audio.SampleRate, _ = flags.GetInt("rate")
	}
	if flags.Changed("output") {
		cfg.Audio.Output, _ = flags.GetString("output")
	}
	if flags.Changed("continuous") {
		cfg.Audio.Continuous, _ = flags.GetBool("continuous")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Address, _ = flags.GetString("metrics-addr")
		cfg.Metrics.Enabled = cfg.Metrics.Address != ""
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	return cfg
}

// runRecording runs the recorder over src until it finishes or a signal
// arrives, then logs the summary. Returns false if the run failed.
func runRecording(cfg *config.Config, src types.ByteSource, logger *slog.Logger) bool {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := recorder.New(recorder.Config{
		Output:     cfg.Audio.Output,
		SampleRate: cfg.Audio.SampleRate,
		Continuous: cfg.Audio.Continuous,
	}, logger)
	if err != nil {
		src.Close()
		slog.Error("Failed to create recorder", "error", err)
		return false
	}

	if cfg.Metrics.Enabled {
		if err := metrics.New(rec).Serve(ctx, cfg.Metrics.Address, logger); err != nil {
			src.Close()
			slog.Error("Failed to start metrics endpoint", "address", cfg.Metrics.Address, "error", err)
			return false
		}
	}

	summary, err := rec.Run(ctx, src)

	written := 0
	for _, s := range summary.Sessions {
		if s.Path != "" {
			written++
		}
	}
	slog.Info("Recording finished",
		"sessions", len(summary.Sessions),
		"files_written", written,
		"samples", summary.Stats.Samples,
		"bytes_read", summary.Stats.BytesRead,
		"desyncs", summary.Stats.Desyncs,
		"discarded_bytes", summary.Stats.DiscardedBytes,
		"interrupted", summary.Interrupted,
		"elapsed", summary.Elapsed.Round(time.Millisecond))

	if err != nil {
		slog.Error("Recording failed", "error", err)
		return false
	}
	if len(summary.Sessions) == 0 {
		slog.Info("No session was started")
	}
	return true
}
