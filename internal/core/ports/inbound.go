package ports

import (
	"context"
	"io"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

// ClassificationRunner is the inbound contract for one classification session.
type ClassificationRunner interface {
	Run(ctx context.Context, inputs []domain.ScanInput) (*domain.RunReport, error)
	Start(ctx context.Context, inputs []domain.ScanInput) (string, error)
	Cancel()
	Reset() error
	Report() domain.RunReport
}

// BucketOrganizer is the inbound contract for user-directed corrections.
type BucketOrganizer interface {
	SnapshotReader
	CreateBucket(code, displayName string) (domain.Bucket, error)
	CreateManualBucket() (domain.Bucket, error)
	RenameBucket(id domain.BucketID, displayName string) error
	DeleteBucket(id domain.BucketID) error
	ViewBucket(id domain.BucketID) error
	SelectDocuments(id domain.BucketID, indices []int) error
	ToggleDocument(id domain.BucketID, index int) error
	DeselectAll()
	Selection() (domain.BucketID, []int)
	DeleteSelected(id domain.BucketID, indices ...int) ([]domain.Document, error)
	MoveSelected(id, target domain.BucketID, indices ...int) ([]domain.Document, error)
}

// SnapshotReader is the read model for the registry.
type SnapshotReader interface {
	Snapshot() domain.Snapshot
}

// ScanIngestor accepts uploaded scans and submits them for classification.
type ScanIngestor interface {
	Store(ctx context.Context, filename string, body io.Reader) (domain.ScanInput, error)
	Submit(ctx context.Context, inputs []domain.ScanInput) (string, error)
	Enqueue(ctx context.Context, inputs []domain.ScanInput) (string, error)
	Discard(ctx context.Context, inputs []domain.ScanInput) error
}

// BatchProcessor handles one queued batch end to end.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, batch domain.Batch) (*domain.RunReport, error)
}
