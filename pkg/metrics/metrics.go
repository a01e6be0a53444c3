package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Follower metrics
	EventsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "follower_events_applied_total",
			Help: "Total number of events applied by a follower activation",
		},
		[]string{"key"},
	)

	SnapshotsSavedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "follower_snapshots_saved_total",
			Help: "Total number of snapshots persisted by a follower activation",
		},
		[]string{"key"},
	)

	GapFillReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "follower_gap_fill_reads_total",
			Help: "Total number of event log reads performed to fill a version gap",
		},
		[]string{"key"},
	)

	TellDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "follower_tell_duration_seconds",
			Help:    "Time taken to apply a single delivered event, including any gap fill",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Append coalescer metrics
	AppendBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appendlog_batch_size",
			Help:    "Number of items drained per coalescer batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	AppendBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "appendlog_batch_duration_seconds",
			Help:    "Time taken to resolve one coalescer batch, bulk insert or per-row fallback included",
			Buckets: prometheus.DefBuckets,
		},
	)

	AppendBulkFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appendlog_bulk_fallback_total",
			Help: "Total number of batches that fell back to per-row insert after a bulk transaction aborted",
		},
	)

	AppendDuplicateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "appendlog_duplicate_total",
			Help: "Total number of appends resolved as duplicate (unit_name, transaction_id)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EventsAppliedTotal,
		SnapshotsSavedTotal,
		GapFillReadsTotal,
		TellDuration,
		AppendBatchSize,
		AppendBatchDuration,
		AppendBulkFallbackTotal,
		AppendDuplicateTotal,
	)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
