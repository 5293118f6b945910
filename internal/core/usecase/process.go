package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/matching"
	"github.com/Floyce/OCR-Sorter/internal/core/ports"
	"github.com/Floyce/OCR-Sorter/internal/core/registry"
)

// ProcessBatchUseCase runs one queued batch in an isolated session seeded from
// the subject catalog, then exports the result.
type ProcessBatchUseCase struct {
	recognizer ports.TextRecognizer
	engine     *matching.Engine
	exporter   ports.RunExporter
	observers  []ports.ProgressObserver
	opts       ClassifyOptions
}

func NewProcessBatchUseCase(
	recognizer ports.TextRecognizer,
	engine *matching.Engine,
	exporter ports.RunExporter,
	opts ClassifyOptions,
	observers ...ports.ProgressObserver,
) *ProcessBatchUseCase {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ProcessBatchUseCase{
		recognizer: recognizer,
		engine:     engine,
		exporter:   exporter,
		observers:  observers,
		opts:       opts,
	}
}

// ProcessBatch returns the run report whenever the batch was classified,
// including when it was cancelled or its export failed.
func (uc *ProcessBatchUseCase) ProcessBatch(ctx context.Context, batch domain.Batch) (*domain.RunReport, error) {
	if len(batch.Images) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "process batch", errors.New("batch has no images"))
	}

	session, reg, err := uc.newSession()
	if err != nil {
		return nil, err
	}

	report, err := session.RunBatch(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("run batch: %w", err)
	}
	if report.State == domain.RunCancelled {
		return report, fmt.Errorf("run batch: %w", ctx.Err())
	}

	return report, uc.export(ctx, *report, reg.Snapshot())
}

func (uc *ProcessBatchUseCase) newSession() (*ClassifyUseCase, *registry.Registry, error) {
	reg, err := registry.NewSeeded(uc.opts.Seeds)
	if err != nil {
		return nil, nil, fmt.Errorf("seed registry: %w", err)
	}
	return NewClassifyUseCase(reg, uc.recognizer, uc.engine, uc.opts, uc.observers...), reg, nil
}

func (uc *ProcessBatchUseCase) export(ctx context.Context, report domain.RunReport, snapshot domain.Snapshot) error {
	if uc.exporter == nil {
		return nil
	}
	if err := uc.exporter.ExportRun(ctx, report, snapshot); err != nil {
		return fmt.Errorf("export run: %w", err)
	}
	uc.opts.Logger.Info("run_exported", "run_id", report.RunID, "documents", snapshot.TotalDocuments())
	return nil
}
