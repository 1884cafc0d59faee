package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/drgolem/serialmic/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exports demultiplexer counters for Prometheus.
// Counters are read from the StatsProvider at scrape time, so the recording
// loop never touches Prometheus types.
type Metrics struct {
	registry *prometheus.Registry
}

// New registers all recorder metrics on a private registry
func New(stats types.StatsProvider) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	counter := func(name, help string, value func(types.SessionStats) uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "serialmic",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(value(stats.Stats()))
		})
	}

	reg.MustRegister(
		counter("bytes_read_total", "Total number of bytes consumed from the byte source",
			func(s types.SessionStats) uint64 { return s.BytesRead }),
		counter("sessions_started_total", "Total number of START commands recognized",
			func(s types.SessionStats) uint64 { return s.Sessions }),
		counter("samples_decoded_total", "Total number of sample frames decoded",
			func(s types.SessionStats) uint64 { return s.Samples }),
		counter("desyncs_total", "Total number of protocol desynchronizations",
			func(s types.SessionStats) uint64 { return s.Desyncs }),
		counter("discarded_bytes_total", "Total number of bytes dropped while resynchronizing",
			func(s types.SessionStats) uint64 { return s.DiscardedBytes }),
		counter("discarded_lines_total", "Total number of control lines that were not a command",
			func(s types.SessionStats) uint64 { return s.DiscardedLines }),
	)

	return &Metrics{registry: reg}
}

// Handler returns the HTTP handler serving the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
// The listener is bound before Serve returns so address errors surface
// immediately; the HTTP server then runs in its own goroutine.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Debug("Metrics server shutdown failed", "error", err)
		}
	}()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	logger.Info("Metrics endpoint listening", "address", ln.Addr().String())
	return nil
}
