package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/drgolem/serialmic/pkg/types"
)

type fixedStats types.SessionStats

func (f fixedStats) Stats() types.SessionStats { return types.SessionStats(f) }

func TestHandlerExportsCounters(t *testing.T) {
	m := New(fixedStats{
		BytesRead:      120,
		Sessions:       1,
		Samples:        24,
		Desyncs:        2,
		DiscardedBytes: 7,
		DiscardedLines: 3,
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)

	for _, want := range []string{
		"serialmic_bytes_read_total 120",
		"serialmic_sessions_started_total 1",
		"serialmic_samples_decoded_total 24",
		"serialmic_desyncs_total 2",
		"serialmic_discarded_bytes_total 7",
		"serialmic_discarded_lines_total 3",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestRegistryIsPrivate(t *testing.T) {
	a := New(fixedStats{})
	b := New(fixedStats{})

	if a.registry == b.registry {
		t.Error("each Metrics should own its registry")
	}
}

func TestServeInvalidAddress(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := New(fixedStats{}).Serve(context.Background(), "127.0.0.1:-1", logger); err == nil {
		t.Error("expected error for invalid address")
	}
}

func TestServeReleasesListenerOnCancel(t *testing.T) {
	reserve, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := reserve.Addr().String()
	reserve.Close()

	var logs strings.Builder
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := context.WithCancel(context.Background())
	if err := New(fixedStats{}).Serve(ctx, addr, logger); err != nil {
		cancel()
		t.Fatalf("Serve failed: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("listener still bound after cancel: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
