// Package metrics exposes Prometheus counters for recurring runs.
// One-shot invocations do not start the exporter; the process exits
// before a scraper could see anything useful.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the instrument set for the delivery loop
type Metrics struct {
	registry *prometheus.Registry

	runsTotal   prometheus.Counter
	outcomes    *prometheus.CounterVec
	runDuration prometheus.Histogram
}

// New creates a Metrics with its own registry so tests stay isolated
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailfold_runs_total",
			Help: "Completed delivery runs",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailfold_recipients_total",
			Help: "Recipient outcomes across all runs",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailfold_run_duration_seconds",
			Help:    "Wall-clock duration of delivery runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
	m.registry.MustRegister(m.runsTotal, m.outcomes, m.runDuration)
	return m
}

// RunOutcomes is the per-state tally of one finished run
type RunOutcomes struct {
	Sent               int
	SendFailed         int
	RenderFailed       int
	SkippedAlreadySent int
	SkippedLimit       int
	Previewed          int
}

// ObserveRun records one finished run
func (m *Metrics) ObserveRun(out RunOutcomes, dur time.Duration) {
	m.runsTotal.Inc()
	m.runDuration.Observe(dur.Seconds())
	m.outcomes.WithLabelValues("sent").Add(float64(out.Sent))
	m.outcomes.WithLabelValues("send_failed").Add(float64(out.SendFailed))
	m.outcomes.WithLabelValues("render_failed").Add(float64(out.RenderFailed))
	m.outcomes.WithLabelValues("skipped_already_sent").Add(float64(out.SkippedAlreadySent))
	m.outcomes.WithLabelValues("skipped_limit_reached").Add(float64(out.SkippedLimit))
	m.outcomes.WithLabelValues("previewed").Add(float64(out.Previewed))
}

// Handler returns the scrape endpoint handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Server wraps the exporter HTTP listener
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the exporter for addr, mounting the handler at path
func NewServer(addr, path string, m *Metrics, logger *slog.Logger) *Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	return &Server{
		srv: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// ListenAndServe blocks until the exporter stops
func (s *Server) ListenAndServe() error {
	s.logger.Info("metrics exporter listening", "addr", s.srv.Addr)
	return s.srv.ListenAndServe()
}

// Shutdown drains the exporter
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
