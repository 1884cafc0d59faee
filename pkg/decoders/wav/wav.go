package wav

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/youpy/go-wav"
)

// Info summarizes a WAV recording
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       int // Sample frames (one value per channel)
}

// Duration returns the playback time of the recording
func (i Info) Duration() time.Duration {
	if i.SampleRate == 0 {
		return 0
	}
	return time.Duration(i.Samples) * time.Second / time.Duration(i.SampleRate)
}

// Decoder wraps go-wav for reading recorded PCM files back.
type Decoder struct {
	file     *os.File
	reader   *wav.Reader
	rate     int
	channels int
	bps      int
}

// NewDecoder creates a new WAV decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Open opens a WAV file for decoding. Only integer PCM is accepted.
func (d *Decoder) Open(fileName string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := wav.NewReader(file)
	format, err := reader.Format()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to read WAV format: %w", err)
	}

	if format.AudioFormat != wav.AudioFormatPCM {
		file.Close()
		return fmt.Errorf("unsupported WAV format: %d (only PCM supported)", format.AudioFormat)
	}

	switch format.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		file.Close()
		return fmt.Errorf("unsupported bits per sample: %d", format.BitsPerSample)
	}

	d.file = file
	d.reader = reader
	d.rate = int(format.SampleRate)
	d.channels = int(format.NumChannels)
	d.bps = int(format.BitsPerSample)

	return nil
}

// Close closes the WAV file. Safe to call on an unopened decoder.
func (d *Decoder) Close() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	return err
}

// GetFormat returns the audio format (sample rate, channels, bits per sample)
func (d *Decoder) GetFormat() (rate, channels, bitsPerSample int) {
	return d.rate, d.channels, d.bps
}

// DecodeSamples decodes up to 'samples' sample frames into audio as
// little-endian PCM of the file's bit depth.
//
// Returns the number of sample frames decoded; io.EOF once the data chunk is
// exhausted. audio must hold samples * channels * (bitsPerSample/8) bytes.
func (d *Decoder) DecodeSamples(samples int, audio []byte) (int, error) {
	if d.reader == nil {
		return 0, fmt.Errorf("decoder not initialized")
	}

	bytesPerSample := d.bps / 8
	frameBytes := d.channels * bytesPerSample
	if want := samples * frameBytes; len(audio) < want {
		samples = len(audio) / frameBytes
	}
	if samples == 0 {
		return 0, nil
	}

	decoded, err := d.reader.ReadSamples(uint32(samples))
	for i, s := range decoded {
		for ch := 0; ch < d.channels && ch < len(s.Values); ch++ {
			offset := (i*d.channels + ch) * bytesPerSample
			putSample(audio[offset:offset+bytesPerSample], s.Values[ch])
		}
	}

	return len(decoded), err
}

// ReadAll decodes the remaining data chunk into one PCM buffer and returns it
// together with the file summary.
func (d *Decoder) ReadAll() ([]byte, Info, error) {
	info := Info{SampleRate: d.rate, Channels: d.channels, BitsPerSample: d.bps}
	if d.reader == nil {
		return nil, info, fmt.Errorf("decoder not initialized")
	}

	const chunkSamples = 4096
	frameBytes := d.channels * d.bps / 8
	buffer := make([]byte, chunkSamples*frameBytes)
	var audio []byte

	for {
		n, err := d.DecodeSamples(chunkSamples, buffer)
		if n > 0 {
			audio = append(audio, buffer[:n*frameBytes]...)
			info.Samples += n
		}
		if errors.Is(err, io.EOF) || (err == nil && n == 0) {
			return audio, info, nil
		}
		if err != nil {
			return nil, info, fmt.Errorf("decode error: %w", err)
		}
	}
}

// putSample stores value little-endian in len(dst) bytes
func putSample(dst []byte, value int) {
	for i := range dst {
		dst[i] = byte(value >> (8 * i))
	}
}
