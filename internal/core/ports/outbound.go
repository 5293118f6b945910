package ports

import (
	"context"
	"io"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
)

// TextRecognizer turns an image reference into raw recognized text.
type TextRecognizer interface {
	Recognize(ctx context.Context, imageRef string) (string, error)
}

// ImageStorage stores scanned images under opaque keys.
type ImageStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// ProgressObserver receives one event per processed document.
type ProgressObserver interface {
	ObserveProgress(ctx context.Context, event domain.ProgressEvent) error
}

// RunExporter hands a finished run to downstream tooling.
type RunExporter interface {
	ExportRun(ctx context.Context, report domain.RunReport, snapshot domain.Snapshot) error
}

// BatchQueue publishes/consumes classification batches.
type BatchQueue interface {
	PublishBatch(ctx context.Context, batch domain.Batch) error
	SubscribeBatches(ctx context.Context, handler func(context.Context, domain.Batch) error) error
}
