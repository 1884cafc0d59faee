package audioframe

import (
	"fmt"
	"time"
)

// SampleSize is the width of one PCM sample in bytes (24-bit mono)
const SampleSize = 3

type FrameFormat struct {
	SampleRate    uint32 // Sample rate in Hz
	Channels      uint8  // Number of channels (always 1 for the microphone)
	BitsPerSample uint8  // Bits per sample (always 24 for the microphone)
}

// MonoFormat returns the format the microphone records in
func MonoFormat(sampleRate int) FrameFormat {
	return FrameFormat{
		SampleRate:    uint32(sampleRate),
		Channels:      1,
		BitsPerSample: SampleSize * 8,
	}
}

// Sample is one signed 24-bit PCM sample stored little-endian,
// the byte order WAV containers expect.
type Sample [SampleSize]byte

// FromWire builds a Sample from the 3 data bytes of a wire frame.
// The device sends the most significant byte first, so the order is reversed.
//
// Example:
//
//	FromWire([]byte{0x01, 0x02, 0x03}) // Sample{0x03, 0x02, 0x01}
func FromWire(b []byte) Sample {
	return Sample{b[2], b[1], b[0]}
}

// Int32 returns the sign-extended sample value
func (s Sample) Int32() int32 {
	v := int32(s[0]) | int32(s[1])<<8 | int32(s[2])<<16
	return v << 8 >> 8
}

// Sequence is the append-only list of samples recorded in one session.
// Samples are kept packed as raw little-endian PCM so finalizing a session
// is a single write.
type Sequence struct {
	Format FrameFormat
	audio  []byte
}

// NewSequence creates an empty sequence for the given format
func NewSequence(format FrameFormat) *Sequence {
	return &Sequence{Format: format}
}

// Append adds a sample at the end of the sequence
func (s *Sequence) Append(sample Sample) {
	s.audio = append(s.audio, sample[:]...)
}

// Len returns the number of samples in the sequence
func (s *Sequence) Len() int {
	return len(s.audio) / SampleSize
}

// At returns the i-th sample
func (s *Sequence) At(i int) Sample {
	var sample Sample
	copy(sample[:], s.audio[i*SampleSize:])
	return sample
}

// Bytes returns the packed PCM data. The slice aliases the sequence storage
// and is only valid until the next Append or Reset.
func (s *Sequence) Bytes() []byte {
	return s.audio
}

// Duration returns the audio time covered by the sequence
func (s *Sequence) Duration() time.Duration {
	if s.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(s.Len()) * time.Second / time.Duration(s.Format.SampleRate)
}

// Reset empties the sequence, keeping the allocated storage
func (s *Sequence) Reset() {
	s.audio = s.audio[:0]
}

// String implements fmt.Stringer
func (f FrameFormat) String() string {
	return fmt.Sprintf("%dHz:%dbit:%dch", f.SampleRate, f.BitsPerSample, f.Channels)
}

// Widen24To32 converts packed little-endian 24-bit PCM to 32-bit PCM by
// placing each sample in the upper 3 bytes. Trailing partial samples are dropped.
func Widen24To32(pcm []byte) []byte {
	n := len(pcm) / SampleSize
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		copy(out[i*4+1:i*4+4], pcm[i*SampleSize:i*SampleSize+SampleSize])
	}
	return out
}

// Narrow32To24 keeps the upper 3 bytes of each little-endian 32-bit sample.
func Narrow32To24(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, n*SampleSize)
	for i := 0; i < n; i++ {
		copy(out[i*SampleSize:i*SampleSize+SampleSize], pcm[i*4+1:i*4+4])
	}
	return out
}
