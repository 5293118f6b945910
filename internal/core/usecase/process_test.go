package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/matching"
)

type exporterFake struct {
	report   domain.RunReport
	snapshot domain.Snapshot
	calls    int
	err      error
}

func (f *exporterFake) ExportRun(_ context.Context, report domain.RunReport, snapshot domain.Snapshot) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.report = report
	f.snapshot = snapshot
	return nil
}

func newProcessForTest(rec *recognizerFake, exp *exporterFake) *ProcessBatchUseCase {
	return NewProcessBatchUseCase(rec, matching.NewEngine(matching.StickyAfterFirst), exp, ClassifyOptions{
		Seeds:      []domain.Subject{{Code: "CIT 417", Name: "CIT 417: Data Driven Websites"}},
		CohortYear: 2024,
	})
}

func TestProcessBatchExportsIsolatedSession(t *testing.T) {
	rec := &recognizerFake{texts: map[string]string{
		"k1": "CIT 417 exam 2023",
		"k2": "CIR 405 Distributed Systems 2022",
	}}
	exp := &exporterFake{}
	uc := newProcessForTest(rec, exp)

	batch := domain.Batch{RunID: "run-a", Images: scans("k1", "k2")}
	report, err := uc.ProcessBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if report.RunID != "run-a" || report.Count(domain.OutcomeClassified) != 2 {
		t.Fatalf("unexpected returned report %+v", report)
	}
	if exp.report.RunID != "run-a" || exp.report.State != domain.RunCompleted {
		t.Fatalf("unexpected exported report %+v", exp.report)
	}
	if len(exp.snapshot.Buckets) != 2 || exp.snapshot.TotalDocuments() != 2 {
		t.Fatalf("unexpected exported snapshot %+v", exp.snapshot)
	}

	// a second batch starts from the seeds again
	if _, err := uc.ProcessBatch(context.Background(), domain.Batch{RunID: "run-b", Images: scans("k1")}); err != nil {
		t.Fatalf("ProcessBatch() second error = %v", err)
	}
	if len(exp.snapshot.Buckets) != 1 || exp.snapshot.TotalDocuments() != 1 {
		t.Fatalf("expected fresh session, got %+v", exp.snapshot)
	}
}

func TestProcessBatchRejectsEmptyBatch(t *testing.T) {
	exp := &exporterFake{}
	uc := newProcessForTest(&recognizerFake{}, exp)

	if _, err := uc.ProcessBatch(context.Background(), domain.Batch{RunID: "r"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if exp.calls != 0 {
		t.Fatalf("exporter must not be called")
	}
}

func TestProcessBatchExportError(t *testing.T) {
	exp := &exporterFake{err: errors.New("db down")}
	uc := newProcessForTest(&recognizerFake{texts: map[string]string{"k1": "CIT 417"}}, exp)

	report, err := uc.ProcessBatch(context.Background(), domain.Batch{Images: scans("k1")})
	if err == nil || !strings.Contains(err.Error(), "export run") {
		t.Fatalf("expected export error, got %v", err)
	}
	if report == nil || report.State != domain.RunCompleted {
		t.Fatalf("expected the classified report alongside the export error, got %+v", report)
	}
}

func TestProcessBatchCancelledContextSkipsExport(t *testing.T) {
	exp := &exporterFake{}
	uc := newProcessForTest(&recognizerFake{}, exp)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := uc.ProcessBatch(ctx, domain.Batch{Images: scans("k1")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if exp.calls != 0 {
		t.Fatalf("exporter must not be called for a cancelled run")
	}
	if report == nil || report.State != domain.RunCancelled {
		t.Fatalf("expected cancelled report, got %+v", report)
	}
}

func TestProcessBatchWithoutExporter(t *testing.T) {
	uc := NewProcessBatchUseCase(&recognizerFake{}, matching.NewEngine(matching.StickyAfterFirst), nil, ClassifyOptions{})

	if _, err := uc.ProcessBatch(context.Background(), domain.Batch{Images: scans("k1")}); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
}
