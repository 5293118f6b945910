package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

// WorkerMetrics describes queued batches: how long they waited, how they
// ended and how well their pages were classified.
type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	batches         *prometheus.CounterVec
	batchDuration   prometheus.Histogram
	batchesInFlight prometheus.Gauge
	queueLag        prometheus.Histogram
	batchPages      *prometheus.HistogramVec
	unmatchedRatio  prometheus.Histogram
	detectedBuckets prometheus.Counter
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	m := &WorkerMetrics{
		service:  service,
		registry: registry,
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "batches_total",
			Help:        "Batches handled, by final state (completed, cancelled, export_failed, rejected).",
			ConstLabels: labels,
		}, []string{"state"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "batch_duration_seconds",
			Help:        "Wall time from picking a batch up to finishing its export.",
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			ConstLabels: labels,
		}),
		batchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "batches_in_flight",
			Help:        "Batches currently being classified.",
			ConstLabels: labels,
		}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "queue_lag_seconds",
			Help:        "Delay between batch submission and processing start.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: labels,
		}),
		batchPages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "batch_pages",
			Help:        "Pages per batch by outcome.",
			Buckets:     []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			ConstLabels: labels,
		}, []string{"outcome"}),
		unmatchedRatio: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "batch_unmatched_ratio",
			Help:        "Share of a batch's pages that ended unmatched or in error.",
			Buckets:     []float64{0, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1},
			ConstLabels: labels,
		}),
		detectedBuckets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "worker",
			Name:        "detected_buckets_total",
			Help:        "Buckets created from subject codes found in page text.",
			ConstLabels: labels,
		}),
	}

	registry.MustRegister(
		m.batches,
		m.batchDuration,
		m.batchesInFlight,
		m.queueLag,
		m.batchPages,
		m.unmatchedRatio,
		m.detectedBuckets,
	)
	return m
}

func (m *WorkerMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartBatch records the queue lag of batch and marks it in flight.
func (m *WorkerMetrics) StartBatch(batch domain.Batch, now time.Time) {
	m.batchesInFlight.Inc()
	if batch.SubmittedAt.IsZero() {
		return
	}
	if lag := now.Sub(batch.SubmittedAt); lag >= 0 {
		m.queueLag.Observe(lag.Seconds())
	}
}

// FinishBatch records how a batch ended. report is nil when the batch was
// rejected before classification started.
func (m *WorkerMetrics) FinishBatch(duration time.Duration, report *domain.RunReport, err error) {
	m.batchesInFlight.Dec()
	m.batchDuration.Observe(duration.Seconds())
	m.batches.WithLabelValues(batchState(report, err)).Inc()
	if report == nil {
		return
	}

	classified := report.Count(domain.OutcomeClassified)
	unmatched := report.Count(domain.OutcomeUnmatched)
	failed := report.Count(domain.OutcomeError)
	m.batchPages.WithLabelValues(string(domain.OutcomeClassified)).Observe(float64(classified))
	m.batchPages.WithLabelValues(string(domain.OutcomeUnmatched)).Observe(float64(unmatched))
	m.batchPages.WithLabelValues(string(domain.OutcomeError)).Observe(float64(failed))

	if processed := len(report.Outcomes); processed > 0 {
		m.unmatchedRatio.Observe(float64(unmatched+failed) / float64(processed))
	}
	for _, o := range report.Outcomes {
		if o.Match == domain.MatchNew {
			m.detectedBuckets.Inc()
		}
	}
}

func batchState(report *domain.RunReport, err error) string {
	switch {
	case report == nil:
		return "rejected"
	case report.State == domain.RunCancelled:
		return "cancelled"
	case err != nil:
		return "export_failed"
	default:
		return "completed"
	}
}
