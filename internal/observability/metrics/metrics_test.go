package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/buckets":                   "/v1/buckets",
		"/v1/buckets/":                  "/v1/buckets/",
		"/v1/buckets/12":                "/v1/buckets/{id}",
		"/v1/buckets/12/documents/move": "/v1/buckets/{id}/documents/move",
		"/v1/runs/current":              "/v1/runs/current",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMiddlewareCountsRequests(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/buckets/7", nil))

	got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/buckets/{id}", "404"))
	if got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "ocr_sorter_http_requests_total") {
		t.Fatalf("expected exported request counter")
	}
}

func TestPipelineMetricsObserveProgress(t *testing.T) {
	server := NewHTTPServerMetrics("api")
	m := NewPipelineMetrics("api", server.Registry())

	event := domain.ProgressEvent{Outcome: domain.DocumentOutcome{Status: domain.OutcomeClassified, Match: domain.MatchSticky, ElapsedMS: 250}}
	if err := m.ObserveProgress(context.Background(), event); err != nil {
		t.Fatalf("ObserveProgress() error = %v", err)
	}
	unmatched := domain.ProgressEvent{Outcome: domain.DocumentOutcome{Status: domain.OutcomeUnmatched}}
	if err := m.ObserveProgress(context.Background(), unmatched); err != nil {
		t.Fatalf("ObserveProgress() error = %v", err)
	}

	if got := testutil.ToFloat64(m.documentsTotal.WithLabelValues("api", "classified", "sticky")); got != 1 {
		t.Fatalf("expected 1 sticky document, got %v", got)
	}
	if got := testutil.ToFloat64(m.documentsTotal.WithLabelValues("api", "unmatched", "none")); got != 1 {
		t.Fatalf("expected 1 unmatched document, got %v", got)
	}

	m.ObserveBreaker("ocr.tesseract", gobreaker.StateClosed, gobreaker.StateOpen)
	if got := testutil.ToFloat64(m.breakerState.WithLabelValues("api", "ocr.tesseract")); got != 2 {
		t.Fatalf("expected open breaker gauge 2, got %v", got)
	}
}

func TestWorkerMetricsRecordsBatchOutcomes(t *testing.T) {
	m := NewWorkerMetrics("worker")
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	m.StartBatch(domain.Batch{RunID: "r1", SubmittedAt: now.Add(-3 * time.Second)}, now)
	m.FinishBatch(2*time.Second, &domain.RunReport{
		State: domain.RunCompleted,
		Outcomes: []domain.DocumentOutcome{
			{Status: domain.OutcomeClassified, Match: domain.MatchNew},
			{Status: domain.OutcomeClassified, Match: domain.MatchSticky},
			{Status: domain.OutcomeUnmatched, Match: domain.MatchUnmatched},
			{Status: domain.OutcomeError},
		},
	}, nil)

	if got := testutil.ToFloat64(m.batches.WithLabelValues("completed")); got != 1 {
		t.Fatalf("expected 1 completed batch, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchesInFlight); got != 0 {
		t.Fatalf("expected no in-flight batches, got %v", got)
	}
	if got := testutil.ToFloat64(m.detectedBuckets); got != 1 {
		t.Fatalf("expected 1 detected bucket, got %v", got)
	}

	expected := `
# HELP ocr_sorter_worker_batch_unmatched_ratio Share of a batch's pages that ended unmatched or in error.
# TYPE ocr_sorter_worker_batch_unmatched_ratio histogram
ocr_sorter_worker_batch_unmatched_ratio_bucket{service="worker",le="0"} 0
ocr_sorter_worker_batch_unmatched_ratio_bucket{service="worker",le="0.05"} 0
ocr_sorter_worker_batch_unmatched_ratio_bucket{service="worker",le="0.1"} 0
ocr_sorter_worker_batch_unmatched_ratio_bucket{service="worker",le="0.2"} 0
ocr_sorter_worker_batch_unmatched_ratio_bucket{service="worker",le="0.3"} 0
ocr_sorter_worker_batch_unmatched_ratio_bucket{service="worker",le="0.5"} 1
ocr_sorter_worker_batch_unmatched_ratio_bucket{service="worker",le="0.75"} 1
ocr_sorter_worker_batch_unmatched_ratio_bucket{service="worker",le="1"} 1
ocr_sorter_worker_batch_unmatched_ratio_bucket{service="worker",le="+Inf"} 1
ocr_sorter_worker_batch_unmatched_ratio_sum{service="worker"} 0.5
ocr_sorter_worker_batch_unmatched_ratio_count{service="worker"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "ocr_sorter_worker_batch_unmatched_ratio"); err != nil {
		t.Fatalf("unexpected unmatched ratio: %v", err)
	}
	n, err := testutil.GatherAndCount(m.Registry(), "ocr_sorter_worker_queue_lag_seconds")
	if err != nil || n != 1 {
		t.Fatalf("expected queue lag to be observed, got n=%d err=%v", n, err)
	}
}

func TestWorkerMetricsBatchStates(t *testing.T) {
	tests := []struct {
		name   string
		report *domain.RunReport
		err    error
		want   string
	}{
		{name: "rejected", err: errors.New("no images"), want: "rejected"},
		{name: "cancelled", report: &domain.RunReport{State: domain.RunCancelled}, err: context.Canceled, want: "cancelled"},
		{name: "export failed", report: &domain.RunReport{State: domain.RunCompleted}, err: errors.New("db down"), want: "export_failed"},
		{name: "completed", report: &domain.RunReport{State: domain.RunCompleted}, want: "completed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := batchState(tt.report, tt.err); got != tt.want {
				t.Fatalf("batchState() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWorkerMetricsIgnoresClockSkew(t *testing.T) {
	m := NewWorkerMetrics("worker")
	now := time.Now()
	m.StartBatch(domain.Batch{SubmittedAt: now.Add(time.Minute)}, now)
	m.FinishBatch(time.Second, nil, errors.New("rejected"))

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, family := range families {
		if family.GetName() != "ocr_sorter_worker_queue_lag_seconds" {
			continue
		}
		if got := family.GetMetric()[0].GetHistogram().GetSampleCount(); got != 0 {
			t.Fatalf("expected negative lag to be dropped, got %d samples", got)
		}
	}
	if got := testutil.ToFloat64(m.batches.WithLabelValues("rejected")); got != 1 {
		t.Fatalf("expected 1 rejected batch, got %v", got)
	}
	if got := testutil.ToFloat64(m.batchesInFlight); got != 0 {
		t.Fatalf("expected no in-flight batches, got %v", got)
	}
}
