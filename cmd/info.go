package cmd

import (
	"fmt"
	"log/slog"
	"os"

	wavdecoder "github.com/drgolem/serialmic/pkg/decoders/wav"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info <wav_file>",
	Short: "Show the format and length of a recording",
	Long: `Print the sample rate, channel count, bit depth, sample count and
duration of a WAV file.

Examples:
  serialmic info output.wav
  serialmic info take_001.wav take_002.wav`,
	Args: cobra.MinimumNArgs(1),
	Run:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) {
	failed := false
	for _, fileName := range args {
		if err := printInfo(fileName); err != nil {
			slog.Error("Failed to read recording", "path", fileName, "error", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func printInfo(fileName string) error {
	decoder := wavdecoder.NewDecoder()
	if err := decoder.Open(fileName); err != nil {
		return err
	}
	defer decoder.Close()

	_, info, err := decoder.ReadAll()
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", fileName)
	fmt.Printf("  Sample rate:     %d Hz\n", info.SampleRate)
	fmt.Printf("  Channels:        %d\n", info.Channels)
	fmt.Printf("  Bits per sample: %d\n", info.BitsPerSample)
	fmt.Printf("  Samples:         %d\n", info.Samples)
	fmt.Printf("  Duration:        %v\n", info.Duration())
	return nil
}
