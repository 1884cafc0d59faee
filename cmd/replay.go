package cmd

import (
	"log/slog"
	"os"

	"github.com/drgolem/serialmic/internal/logging"
	"github.com/drgolem/serialmic/pkg/bytesource"

	"github.com/spf13/cobra"
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture_file>",
	Short: "Decode a raw capture of the serial stream",
	Long: `Feed a raw byte dump of the serial link (for example one taken with
'cat /dev/ttyACM0 > capture.bin') through the same decoder the record
command uses. The end of the file ends the stream: an open session is
saved with the samples received so far.

Examples:
  # Decode the first session of a capture
  serialmic replay capture.bin --output take.wav

  # Decode every session of a capture recorded at 16 kHz
  serialmic replay capture.bin --rate 16000 --output take.wav --continuous`,
	Args: cobra.ExactArgs(1),
	Run:  runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().IntP("rate", "r", 8000, "Sample rate in Hz written to the WAV header")
	replayCmd.Flags().StringP("output", "o", "output.wav", "Output WAV file path")
	replayCmd.Flags().Bool("continuous", false, "Write every session in the capture to numbered files")
	replayCmd.Flags().String("config", "", "YAML configuration file")
	replayCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	replayCmd.Flags().BoolP("verbose", "v", false, "Verbose output (debug logging)")
}

func runReplay(cmd *cobra.Command, args []string) {
	inFileName := args[0]

	cfg := resolveConfig(cmd)

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, logCloser := logging.New(cfg.Logging, verbose)
	defer logCloser.Close()
	slog.SetDefault(logger)

	src, err := bytesource.OpenFile(inFileName)
	if err != nil {
		slog.Error("Failed to open byte source", "error", err)
		logCloser.Close()
		os.Exit(1)
	}

	slog.Info("Replaying capture", "path", inFileName)

	if !runRecording(cfg, src, logger) {
		logCloser.Close()
		os.Exit(1)
	}
}
