package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

// RunRepository stores finished classification runs for downstream tooling.
// A re-exported run replaces its previous buckets and documents.
type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker replicas.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS classification_runs (
	run_id TEXT PRIMARY KEY,
	state TEXT NOT NULL,
	total INTEGER NOT NULL,
	processed INTEGER NOT NULL,
	classified INTEGER NOT NULL,
	unmatched INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	exported_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS run_buckets (
	run_id TEXT NOT NULL REFERENCES classification_runs(run_id) ON DELETE CASCADE,
	bucket_id BIGINT NOT NULL,
	position INTEGER NOT NULL,
	code TEXT NOT NULL,
	display_name TEXT NOT NULL,
	PRIMARY KEY (run_id, bucket_id)
);

CREATE TABLE IF NOT EXISTS run_documents (
	run_id TEXT NOT NULL REFERENCES classification_runs(run_id) ON DELETE CASCADE,
	document_id TEXT NOT NULL,
	bucket_id BIGINT NOT NULL,
	position INTEGER NOT NULL,
	image_ref TEXT NOT NULL,
	display_name TEXT NOT NULL,
	year INTEGER NOT NULL,
	year_assumed BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (run_id, document_id)
);

CREATE INDEX IF NOT EXISTS idx_run_buckets_code ON run_buckets(code);
CREATE INDEX IF NOT EXISTS idx_run_documents_bucket ON run_documents(run_id, bucket_id, position);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RunRepository) ExportRun(ctx context.Context, report domain.RunReport, snapshot domain.Snapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin export tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var finishedAt any
	if !report.FinishedAt.IsZero() {
		finishedAt = report.FinishedAt
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO classification_runs (
	run_id, state, total, processed, classified, unmatched, failed, started_at, finished_at, exported_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (run_id) DO UPDATE SET
	state = EXCLUDED.state,
	total = EXCLUDED.total,
	processed = EXCLUDED.processed,
	classified = EXCLUDED.classified,
	unmatched = EXCLUDED.unmatched,
	failed = EXCLUDED.failed,
	finished_at = EXCLUDED.finished_at,
	exported_at = EXCLUDED.exported_at
`,
		report.RunID, string(report.State), report.Total, report.Processed,
		report.Count(domain.OutcomeClassified), report.Count(domain.OutcomeUnmatched), report.Count(domain.OutcomeError),
		report.StartedAt, finishedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_documents WHERE run_id = $1`, report.RunID); err != nil {
		return fmt.Errorf("clear run documents: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_buckets WHERE run_id = $1`, report.RunID); err != nil {
		return fmt.Errorf("clear run buckets: %w", err)
	}

	for pos, b := range snapshot.Buckets {
		if err := insertBucket(ctx, tx, report.RunID, pos, b); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit export tx: %w", err)
	}
	return nil
}

func insertBucket(ctx context.Context, tx *sql.Tx, runID string, position int, b domain.Bucket) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO run_buckets (run_id, bucket_id, position, code, display_name)
VALUES ($1,$2,$3,$4,$5)
`, runID, int64(b.ID), position, b.Code, b.DisplayName)
	if err != nil {
		return fmt.Errorf("insert bucket %s: %w", b.Code, err)
	}

	for pos, doc := range b.Documents {
		_, err := tx.ExecContext(ctx, `
INSERT INTO run_documents (run_id, document_id, bucket_id, position, image_ref, display_name, year, year_assumed)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`, runID, doc.ID, int64(b.ID), pos, doc.ImageRef, doc.DisplayName, doc.Year, doc.YearAssumed)
		if err != nil {
			return fmt.Errorf("insert document %s: %w", doc.ID, err)
		}
	}
	return nil
}
