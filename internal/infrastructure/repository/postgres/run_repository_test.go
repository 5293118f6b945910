package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*RunRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewRunRepository(db), mock, func() { _ = db.Close() }
}

func sampleRun() (domain.RunReport, domain.Snapshot) {
	started := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	report := domain.RunReport{
		RunID:      "run-1",
		State:      domain.RunCompleted,
		Total:      3,
		Processed:  3,
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
		Outcomes: []domain.DocumentOutcome{
			{Index: 0, Status: domain.OutcomeClassified},
			{Index: 1, Status: domain.OutcomeClassified},
			{Index: 2, Status: domain.OutcomeUnmatched},
		},
	}
	snapshot := domain.Snapshot{Buckets: []domain.Bucket{
		{ID: 1, Code: "CIT 417", DisplayName: "CIT 417: Data Driven Websites", Documents: []domain.Document{
			{ID: "d1", ImageRef: "k1", DisplayName: "p1.jpg", Year: 2023},
			{ID: "d2", ImageRef: "k2", DisplayName: "p2.jpg", Year: 2024, YearAssumed: true},
		}},
		{ID: 4, Code: "CIR 405", DisplayName: "CIR 405: Distributed Systems", Documents: []domain.Document{}},
	}}
	return report, snapshot
}

func TestExportRunWritesRunBucketsAndDocuments(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()
	report, snapshot := sampleRun()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO classification_runs").
		WithArgs("run-1", "completed", 3, 3, 2, 1, 0, report.StartedAt, report.FinishedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM run_documents").WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM run_buckets").WithArgs("run-1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO run_buckets").
		WithArgs("run-1", int64(1), 0, "CIT 417", "CIT 417: Data Driven Websites").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO run_documents").
		WithArgs("run-1", "d1", int64(1), 0, "k1", "p1.jpg", 2023, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO run_documents").
		WithArgs("run-1", "d2", int64(1), 1, "k2", "p2.jpg", 2024, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO run_buckets").
		WithArgs("run-1", int64(4), 1, "CIR 405", "CIR 405: Distributed Systems").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.ExportRun(context.Background(), report, snapshot); err != nil {
		t.Fatalf("ExportRun() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestExportRunRollsBackOnFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()
	report, snapshot := sampleRun()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO classification_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM run_documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM run_buckets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO run_buckets").WillReturnError(errors.New("constraint violated"))
	mock.ExpectRollback()

	err := repo.ExportRun(context.Background(), report, snapshot)
	if err == nil || !strings.Contains(err.Error(), "insert bucket CIT 417") {
		t.Fatalf("expected insert bucket error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(2026101901)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS classification_runs").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
