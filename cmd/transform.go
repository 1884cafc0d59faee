package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"

	"github.com/drgolem/serialmic/pkg/audioframe"
	wavdecoder "github.com/drgolem/serialmic/pkg/decoders/wav"

	"github.com/spf13/cobra"
	wav "github.com/youpy/go-wav"
	soxr "github.com/zaf/resample"
)

var transformCmd = &cobra.Command{
	Use:   "transform <input_file>",
	Short: "Resample a WAV recording",
	Long: `Resample a recorded WAV file to a different sample rate. The bit depth
and channel count are kept.

Examples:
  # Resample an 8 kHz recording to 48 kHz
  serialmic transform output.wav --new-samplerate 48000 --out output_48k.wav

  # Downsample to 16 kHz with default output name
  serialmic transform take_002.wav --new-samplerate 16000

Supported Input:
  - WAV PCM, 16, 24 or 32 bits per sample

Sample Rate Options:
  Common rates: 8000, 16000, 22050, 44100, 48000, 96000, 192000 Hz`,
	Args: cobra.ExactArgs(1),
	Run:  runTransform,
}

func init() {
	rootCmd.AddCommand(transformCmd)

	transformCmd.Flags().Int("new-samplerate", 48000, "Target sample rate in Hz")
	transformCmd.Flags().String("out", "out_transformed.wav", "Output WAV file path")
}

func runTransform(cmd *cobra.Command, args []string) {
	inFileName := args[0]

	if _, err := os.Stat(inFileName); os.IsNotExist(err) {
		slog.Error("Input file not found", "path", inFileName)
		os.Exit(1)
	}

	newSampleRate, err := cmd.Flags().GetInt("new-samplerate")
	if err != nil {
		slog.Error("Failed to get new-samplerate flag", "error", err)
		os.Exit(1)
	}

	outFileName, err := cmd.Flags().GetString("out")
	if err != nil {
		slog.Error("Failed to get out flag", "error", err)
		os.Exit(1)
	}

	if newSampleRate <= 0 || newSampleRate > 384000 {
		slog.Error("Invalid sample rate", "rate", newSampleRate, "valid_range", "1-384000")
		os.Exit(1)
	}

	decoder := wavdecoder.NewDecoder()
	if err := decoder.Open(inFileName); err != nil {
		slog.Error("Failed to open recording", "error", err)
		os.Exit(1)
	}
	defer decoder.Close()

	if _, _, bitsPerSample := decoder.GetFormat(); !canResample(bitsPerSample) {
		slog.Error("Unsupported bit depth for resampling", "bits_per_sample", bitsPerSample, "supported", "16, 24, 32")
		os.Exit(1)
	}

	audioData, info, err := decoder.ReadAll()
	if err != nil {
		slog.Error("Failed to decode audio", "error", err)
		os.Exit(1)
	}

	slog.Info("Audio transformation starting",
		"input_file", inFileName,
		"input_sample_rate", info.SampleRate,
		"input_channels", info.Channels,
		"input_bits_per_sample", info.BitsPerSample,
		"input_samples", info.Samples,
		"output_sample_rate", newSampleRate,
		"output_file", outFileName)

	resampledData, err := resampleAudio(audioData, info.SampleRate, newSampleRate, info.Channels, info.BitsPerSample)
	if err != nil {
		slog.Error("Failed to resample audio", "error", err)
		os.Exit(1)
	}

	bytesPerSample := info.BitsPerSample / 8
	outSamples := len(resampledData) / (info.Channels * bytesPerSample)

	slog.Info("Resampling complete",
		"output_samples", outSamples,
		"output_bytes", len(resampledData))

	if err := writePCMFile(outFileName, resampledData, uint32(outSamples), uint16(info.Channels), uint32(newSampleRate), uint16(info.BitsPerSample)); err != nil {
		slog.Error("Failed to write WAV file", "error", err)
		os.Exit(1)
	}

	slog.Info("Transformation complete",
		"input_samples", info.Samples,
		"output_samples", outSamples,
		"sample_rate_ratio", fmt.Sprintf("%.3f", float64(newSampleRate)/float64(info.SampleRate)))
}

// canResample reports whether soxr can take PCM of this bit depth
func canResample(bitsPerSample int) bool {
	switch bitsPerSample {
	case 16, 24, 32:
		return true
	}
	return false
}

// resampleAudio resamples little-endian PCM using SoXR (high-quality resampler).
// 24-bit audio goes through the 32-bit integer path.
func resampleAudio(audioData []byte, fromRate, toRate, channels, bitsPerSample int) ([]byte, error) {
	if fromRate == toRate {
		return audioData, nil
	}

	var format int
	input := audioData
	switch bitsPerSample {
	case 16:
		format = soxr.I16
	case 24:
		format = soxr.I32
		input = audioframe.Widen24To32(audioData)
	case 32:
		format = soxr.I32
	default:
		return nil, fmt.Errorf("unsupported bits per sample for resampling: %d", bitsPerSample)
	}

	var bufResampled bytes.Buffer
	bufWriter := bufio.NewWriter(&bufResampled)

	resampler, err := soxr.New(
		bufWriter,
		float64(fromRate),
		float64(toRate),
		channels,
		format,
		soxr.HighQ,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}

	if _, err := resampler.Write(input); err != nil {
		resampler.Close()
		return nil, fmt.Errorf("failed to resample: %w", err)
	}

	if err := resampler.Close(); err != nil {
		return nil, fmt.Errorf("failed to close resampler: %w", err)
	}

	if err := bufWriter.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush buffer: %w", err)
	}

	if bitsPerSample == 24 {
		return audioframe.Narrow32To24(bufResampled.Bytes()), nil
	}
	return bufResampled.Bytes(), nil
}

// writePCMFile writes audio data to a WAV file
func writePCMFile(fileName string, audioData []byte, numSamples uint32, numChannels uint16, sampleRate uint32, bitsPerSample uint16) (err error) {
	fOut, err := os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := fOut.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	wavWriter := wav.NewWriter(fOut, numSamples, numChannels, sampleRate, bitsPerSample)

	if _, err := wavWriter.Write(audioData); err != nil {
		return fmt.Errorf("failed to write WAV data: %w", err)
	}

	return nil
}
