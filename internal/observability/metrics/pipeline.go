package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

// PipelineMetrics observes classification progress and breaker transitions.
type PipelineMetrics struct {
	service string

	documentsTotal   *prometheus.CounterVec
	documentDuration *prometheus.HistogramVec
	breakerState     *prometheus.GaugeVec
}

func NewPipelineMetrics(service string, registerer prometheus.Registerer) *PipelineMetrics {
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Processed documents by outcome and matching rule.",
		},
		[]string{"service", "status", "match"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Time spent on one document including OCR.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service", "status"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)

	registerer.MustRegister(documentsTotal, documentDuration, breakerState)

	return &PipelineMetrics{
		service:          service,
		documentsTotal:   documentsTotal,
		documentDuration: documentDuration,
		breakerState:     breakerState,
	}
}

func (m *PipelineMetrics) ObserveProgress(_ context.Context, event domain.ProgressEvent) error {
	outcome := event.Outcome
	match := string(outcome.Match)
	if match == "" {
		match = "none"
	}
	m.documentsTotal.WithLabelValues(m.service, string(outcome.Status), match).Inc()
	elapsed := time.Duration(outcome.ElapsedMS * float64(time.Millisecond))
	m.documentDuration.WithLabelValues(m.service, string(outcome.Status)).Observe(elapsed.Seconds())
	return nil
}

// ObserveBreaker matches resilience.StateObserver.
func (m *PipelineMetrics) ObserveBreaker(operation string, _, to gobreaker.State) {
	m.breakerState.WithLabelValues(m.service, operation).Set(float64(to))
}
