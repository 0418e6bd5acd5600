// Package metrics exposes the tail engine's Prometheus metrics: attach/
// detach counters, active-stream and active-session gauges, lines
// delivered, read errors by kind, and read latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attachesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loglens_attaches_total",
			Help: "Total number of successful attach operations.",
		},
	)

	attachErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loglens_attach_errors_total",
			Help: "Total number of attach failures, by error kind.",
		},
		[]string{"kind"},
	)

	detachesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loglens_detaches_total",
			Help: "Total number of detach operations.",
		},
	)

	activeStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loglens_active_streams",
			Help: "Number of Per-File Streams currently live.",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "loglens_active_sessions",
			Help: "Number of client sessions currently watching at least one path.",
		},
	)

	linesDeliveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loglens_lines_delivered_total",
			Help: "Total number of line events delivered across all sessions.",
		},
	)

	readErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loglens_read_errors_total",
			Help: "Total number of tail-read failures, by error kind.",
		},
		[]string{"kind"},
	)

	readLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "loglens_read_latency_seconds",
			Help:    "Latency of a single lastLines/linesSince call.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// RecordAttach records a successful attach.
func RecordAttach() { attachesTotal.Inc() }

// RecordAttachError records an attach failure of the given kind
// ("not_found", "watch_unavailable", "io").
func RecordAttachError(kind string) { attachErrorsTotal.WithLabelValues(kind).Inc() }

// RecordDetach records a detach operation.
func RecordDetach() { detachesTotal.Inc() }

// SetActiveStreams sets the active-stream gauge to n.
func SetActiveStreams(n int) { activeStreams.Set(float64(n)) }

// SetActiveSessions sets the active-session gauge to n.
func SetActiveSessions(n int) { activeSessions.Set(float64(n)) }

// RecordLinesDelivered adds n to the lines-delivered counter.
func RecordLinesDelivered(n int) {
	if n > 0 {
		linesDeliveredTotal.Add(float64(n))
	}
}

// RecordReadError records a tail-read failure of the given kind.
func RecordReadError(kind string) { readErrorsTotal.WithLabelValues(kind).Inc() }

// ObserveReadLatency records the duration of one read call.
func ObserveReadLatency(d time.Duration) { readLatency.Observe(d.Seconds()) }

// Collector is a thin handle over the package-level recorders that also
// tracks its own creation time for Uptime. The ops HTTP endpoints do not
// use it; they report uptime from their own server start time.
type Collector struct {
	startTime time.Time
}

// NewCollector creates a metrics collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordAttach records a successful attach.
func (c *Collector) RecordAttach() { RecordAttach() }

// RecordAttachError records an attach failure of the given kind.
func (c *Collector) RecordAttachError(kind string) { RecordAttachError(kind) }

// RecordDetach records a detach operation.
func (c *Collector) RecordDetach() { RecordDetach() }

// SetActiveStreams sets the active-stream gauge to n.
func (c *Collector) SetActiveStreams(n int) { SetActiveStreams(n) }

// SetActiveSessions sets the active-session gauge to n.
func (c *Collector) SetActiveSessions(n int) { SetActiveSessions(n) }

// RecordLinesDelivered adds n to the lines-delivered counter.
func (c *Collector) RecordLinesDelivered(n int) { RecordLinesDelivered(n) }

// RecordReadError records a tail-read failure of the given kind.
func (c *Collector) RecordReadError(kind string) { RecordReadError(kind) }

// ObserveReadLatency records the duration of one read call.
func (c *Collector) ObserveReadLatency(d time.Duration) { ObserveReadLatency(d) }

// Uptime returns the collector's age.
func (c *Collector) Uptime() time.Duration { return time.Since(c.startTime) }
