package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/ports"
)

// IngestScansUseCase stores uploaded scans and hands them to the in-process
// runner or, when a queue is configured, to the batch worker.
type IngestScansUseCase struct {
	storage ports.ImageStorage
	runner  ports.ClassificationRunner
	queue   ports.BatchQueue
}

func NewIngestScansUseCase(
	storage ports.ImageStorage,
	runner ports.ClassificationRunner,
	queue ports.BatchQueue,
) *IngestScansUseCase {
	return &IngestScansUseCase{
		storage: storage,
		runner:  runner,
		queue:   queue,
	}
}

// Store saves one uploaded image and returns the scan input that refers to it.
func (uc *IngestScansUseCase) Store(ctx context.Context, filename string, body io.Reader) (domain.ScanInput, error) {
	if strings.TrimSpace(filename) == "" {
		return domain.ScanInput{}, domain.WrapError(domain.ErrInvalidInput, "store scan", errors.New("filename is required"))
	}
	key := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, key, body); err != nil {
		return domain.ScanInput{}, fmt.Errorf("save scan: %w", err)
	}
	return domain.ScanInput{ImageRef: key, DisplayName: filepath.Base(filename)}, nil
}

// Submit starts an in-process classification run over inputs.
func (uc *IngestScansUseCase) Submit(ctx context.Context, inputs []domain.ScanInput) (string, error) {
	if err := validateInputs("submit scans", inputs); err != nil {
		return "", err
	}
	return uc.runner.Start(ctx, inputs)
}

// Enqueue publishes inputs as a batch for the headless worker.
func (uc *IngestScansUseCase) Enqueue(ctx context.Context, inputs []domain.ScanInput) (string, error) {
	if uc.queue == nil {
		return "", domain.WrapError(domain.ErrTemporary, "enqueue scans", errors.New("batch queue is not configured"))
	}
	if err := validateInputs("enqueue scans", inputs); err != nil {
		return "", err
	}
	batch := domain.Batch{RunID: uuid.NewString(), Images: inputs, SubmittedAt: time.Now().UTC()}
	if err := uc.queue.PublishBatch(ctx, batch); err != nil {
		return "", fmt.Errorf("publish batch: %w", err)
	}
	return batch.RunID, nil
}

// Discard deletes stored scans that will never be classified, e.g. uploads of
// a request whose run could not be started.
func (uc *IngestScansUseCase) Discard(ctx context.Context, inputs []domain.ScanInput) error {
	var errs []error
	for _, in := range inputs {
		if err := uc.storage.Delete(ctx, in.ImageRef); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", in.ImageRef, err))
		}
	}
	return errors.Join(errs...)
}

func validateInputs(operation string, inputs []domain.ScanInput) error {
	if len(inputs) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, operation, errors.New("no images"))
	}
	for i, in := range inputs {
		if strings.TrimSpace(in.ImageRef) == "" {
			return domain.WrapError(domain.ErrInvalidInput, operation, fmt.Errorf("image %d has no reference", i))
		}
	}
	return nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "scan.bin"
	}
	return base
}
