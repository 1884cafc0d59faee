package recorder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/drgolem/serialmic/pkg/bytesource"
	"github.com/drgolem/serialmic/pkg/demux"
	"github.com/drgolem/serialmic/pkg/types"
)

const wavHeaderSize = 44

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRecorder(t *testing.T, cfg Config) *Recorder {
	t.Helper()
	r, err := New(cfg, quietLogger())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return r
}

func session(frames ...[]byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(demux.StartCommand + "\n")
	for _, f := range frames {
		buf.Write(f)
		buf.WriteByte('\n')
	}
	buf.WriteString(demux.StopMarker)
	return buf.Bytes()
}

func TestEndToEndScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.wav")
	r := newRecorder(t, Config{Output: path, SampleRate: 8000})

	one := []byte{0x00, 0x00, 0x01}
	input := session(one, one, one)
	src := bytesource.New(bytes.NewReader(input), 16)

	summary, err := r.Run(context.Background(), src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	want := bytes.Repeat([]byte{0x01, 0x00, 0x00}, 3)
	if !bytes.Equal(data[wavHeaderSize:], want) {
		t.Errorf("samples: got % X, want % X", data[wavHeaderSize:], want)
	}

	if len(summary.Sessions) != 1 || summary.Sessions[0].Samples != 3 {
		t.Errorf("Sessions: got %+v", summary.Sessions)
	}
	if summary.Stats.BytesRead != uint64(len(input)) {
		t.Errorf("BytesRead: got %d, want %d", summary.Stats.BytesRead, len(input))
	}
	if summary.Interrupted {
		t.Error("run should not be marked interrupted")
	}
}

func TestStopWithoutFramesWritesNoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.wav")
	r := newRecorder(t, Config{Output: path, SampleRate: 8000})

	summary, err := r.Run(context.Background(), bytesource.New(bytes.NewReader(session()), 0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected no output file, stat returned %v", err)
	}
	if len(summary.Sessions) != 1 || summary.Sessions[0].Path != "" {
		t.Errorf("Sessions: got %+v", summary.Sessions)
	}
}

func TestEndOfStreamSavesCollectedSamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.wav")
	r := newRecorder(t, Config{Output: path, SampleRate: 8000})

	input := []byte(demux.StartCommand + "\n\x00\x00\x01\n\x00\x00\x02\n\x00\x00")
	summary, err := r.Run(context.Background(), bytesource.New(bytes.NewReader(input), 0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(summary.Sessions) != 1 || summary.Sessions[0].Samples != 2 {
		t.Fatalf("Sessions: got %+v", summary.Sessions)
	}
	data, _ := os.ReadFile(path)
	if !bytes.Equal(data[wavHeaderSize:], []byte{0x01, 0x00, 0x00, 0x02, 0x00, 0x00}) {
		t.Errorf("samples: got % X", data[wavHeaderSize:])
	}
}

func TestNoiseAndDesyncDoNotCorruptOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.wav")
	r := newRecorder(t, Config{Output: path, SampleRate: 8000})

	var input bytes.Buffer
	input.WriteString("garbage\n\xff\xfe\n")
	input.WriteString(demux.StartCommand + "\r\n")
	input.Write([]byte{0x10, 0x20, 0x30, '\n'})
	input.Write([]byte{0xAA, 0xBB, 0xCC, 0xDD})
	input.Write([]byte{0x01, 0x02, 0x03, '\n'})
	input.WriteString(demux.StopMarker)

	summary, err := r.Run(context.Background(), bytesource.New(&input, 0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, _ := os.ReadFile(path)
	want := []byte{0x30, 0x20, 0x10, 0x03, 0x02, 0x01}
	if !bytes.Equal(data[wavHeaderSize:], want) {
		t.Errorf("samples: got % X, want % X", data[wavHeaderSize:], want)
	}
	if summary.Stats.Desyncs != 1 || summary.Stats.DiscardedLines != 2 {
		t.Errorf("Stats: got %+v", summary.Stats)
	}
}

func TestContinuousRecordsEverySession(t *testing.T) {
	dir := t.TempDir()
	r := newRecorder(t, Config{Output: filepath.Join(dir, "take.wav"), SampleRate: 8000, Continuous: true})

	var input bytes.Buffer
	input.Write(session([]byte{0, 0, 1}))
	input.WriteString("Mic acquisition: START ERROR\r\n")
	input.Write(session())
	input.Write(session([]byte{0, 0, 2}, []byte{0, 0, 3}))

	summary, err := r.Run(context.Background(), bytesource.New(&input, 0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(summary.Sessions) != 3 {
		t.Fatalf("Sessions: got %d, want 3", len(summary.Sessions))
	}
	wantSamples := []int{1, 0, 2}
	for i, res := range summary.Sessions {
		if res.Samples != wantSamples[i] {
			t.Errorf("session %d: got %d samples, want %d", i+1, res.Samples, wantSamples[i])
		}
	}
	for _, name := range []string{"take_001.wav", "take_003.wav"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestSingleSessionStopsAtMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.wav")
	r := newRecorder(t, Config{Output: path, SampleRate: 8000})

	var input bytes.Buffer
	input.Write(session([]byte{0, 0, 1}))
	input.Write(session([]byte{0, 0, 2}))

	summary, err := r.Run(context.Background(), bytesource.New(&input, 0))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Sessions) != 1 {
		t.Errorf("Sessions: got %d, want 1", len(summary.Sessions))
	}
}

// closeTracker counts Close calls on a byte source
type closeTracker struct {
	types.ByteSource
	closes int
}

func (c *closeTracker) Close() error {
	c.closes++
	return c.ByteSource.Close()
}

type idleSource struct{}

func (idleSource) ReadByte() (byte, error) { return 0, types.ErrNoData }
func (idleSource) Close() error            { return nil }

func TestInterruptFinalizesAndClosesSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.wav")
	r := newRecorder(t, Config{Output: path, SampleRate: 8000})

	// Start a session, then let the context expire while the source is idle
	started := bytesource.New(bytes.NewReader([]byte(demux.StartCommand+"\n\x00\x00\x05\n")), 0)
	if _, err := r.demux.Write(mustReadAll(t, started)); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &closeTracker{ByteSource: idleSource{}}
	summary, err := r.Run(ctx, src)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !summary.Interrupted {
		t.Error("summary should be marked interrupted")
	}
	if src.closes != 1 {
		t.Errorf("Close calls: got %d, want 1", src.closes)
	}
	if len(summary.Sessions) != 1 || summary.Sessions[0].Samples != 1 {
		t.Errorf("Sessions: got %+v", summary.Sessions)
	}
}

type brokenSource struct{ closed bool }

func (b *brokenSource) ReadByte() (byte, error) { return 0, errors.New("port vanished") }
func (b *brokenSource) Close() error            { b.closed = true; return nil }

func TestSourceErrorIsReturnedAndSourceClosed(t *testing.T) {
	r := newRecorder(t, Config{Output: filepath.Join(t.TempDir(), "o.wav"), SampleRate: 8000})
	src := &brokenSource{}

	if _, err := r.Run(context.Background(), src); err == nil {
		t.Error("expected error from broken source")
	}
	if !src.closed {
		t.Error("source was not closed")
	}
}

func TestNewValidatesSink(t *testing.T) {
	if _, err := New(Config{SampleRate: 8000}, nil); err == nil {
		t.Error("expected error for empty output path")
	}
}

func mustReadAll(t *testing.T, src types.ByteSource) []byte {
	t.Helper()
	var out []byte
	for {
		b, err := src.ReadByte()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, b)
	}
}
