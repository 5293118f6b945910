package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/matching"
	"github.com/Floyce/OCR-Sorter/internal/core/ports"
	"github.com/Floyce/OCR-Sorter/internal/core/registry"
)

const (
	labelUnclassified = "Unclassified"
	labelOCRError     = "Error processing file"
	labelCancelled    = "Cancelled"

	defaultOCRTimeout = 2 * time.Minute
)

type ClassifyOptions struct {
	Seeds      []domain.Subject
	CohortYear int
	OCRTimeout time.Duration
	Logger     *slog.Logger
}

// ClassifyUseCase drives one classification session: documents are processed
// strictly in input order, one OCR call at a time.
type ClassifyUseCase struct {
	registry   *registry.Registry
	recognizer ports.TextRecognizer
	engine     *matching.Engine
	observers  []ports.ProgressObserver

	seeds      []domain.Subject
	cohortYear int
	ocrTimeout time.Duration
	logger     *slog.Logger
	tracer     trace.Tracer

	cancelled atomic.Bool

	mu     sync.Mutex
	report domain.RunReport
}

func NewClassifyUseCase(
	reg *registry.Registry,
	recognizer ports.TextRecognizer,
	engine *matching.Engine,
	opts ClassifyOptions,
	observers ...ports.ProgressObserver,
) *ClassifyUseCase {
	if opts.OCRTimeout <= 0 {
		opts.OCRTimeout = defaultOCRTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &ClassifyUseCase{
		registry:   reg,
		recognizer: recognizer,
		engine:     engine,
		observers:  observers,
		seeds:      slices.Clone(opts.Seeds),
		cohortYear: opts.CohortYear,
		ocrTimeout: opts.OCRTimeout,
		logger:     opts.Logger,
		tracer:     otel.Tracer("github.com/Floyce/OCR-Sorter/internal/core/usecase"),
		report:     domain.RunReport{State: domain.RunIdle},
	}
}

// Run classifies inputs synchronously and returns the final report.
func (uc *ClassifyUseCase) Run(ctx context.Context, inputs []domain.ScanInput) (*domain.RunReport, error) {
	return uc.RunBatch(ctx, domain.Batch{Images: inputs})
}

func (uc *ClassifyUseCase) RunBatch(ctx context.Context, batch domain.Batch) (*domain.RunReport, error) {
	runID, err := uc.begin(batch.RunID, len(batch.Images))
	if err != nil {
		return nil, err
	}
	report := uc.execute(ctx, runID, batch.Images)
	return &report, nil
}

// Start begins a run in the background and returns its id. The run is not
// tied to ctx's cancellation; use Cancel to stop it.
func (uc *ClassifyUseCase) Start(ctx context.Context, inputs []domain.ScanInput) (string, error) {
	runID, err := uc.begin("", len(inputs))
	if err != nil {
		return "", err
	}
	go uc.execute(context.WithoutCancel(ctx), runID, slices.Clone(inputs))
	return runID, nil
}

// Cancel asks a running session to stop before its next document.
func (uc *ClassifyUseCase) Cancel() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.report.State == domain.RunRunning {
		uc.cancelled.Store(true)
	}
}

// Reset returns the session to idle with the registry rebuilt from the seeds.
func (uc *ClassifyUseCase) Reset() error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.report.State == domain.RunRunning {
		return domain.WrapError(domain.ErrRunInProgress, "reset session", fmt.Errorf("run_id=%s", uc.report.RunID))
	}
	if err := uc.registry.Reset(uc.seeds); err != nil {
		return fmt.Errorf("reset registry: %w", err)
	}
	uc.cancelled.Store(false)
	uc.report = domain.RunReport{State: domain.RunIdle}
	return nil
}

func (uc *ClassifyUseCase) Report() domain.RunReport {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	out := uc.report
	out.Outcomes = slices.Clone(uc.report.Outcomes)
	if uc.report.LastEvent != nil {
		ev := *uc.report.LastEvent
		out.LastEvent = &ev
	}
	return out
}

func (uc *ClassifyUseCase) begin(runID string, total int) (string, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if uc.report.State == domain.RunRunning {
		return "", domain.WrapError(domain.ErrRunInProgress, "start run", fmt.Errorf("run_id=%s", uc.report.RunID))
	}
	if uc.report.State != domain.RunIdle {
		return "", domain.WrapError(domain.ErrRunNotIdle, "start run", fmt.Errorf("state=%s", uc.report.State))
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	uc.cancelled.Store(false)
	uc.report = domain.RunReport{
		RunID:     runID,
		State:     domain.RunRunning,
		Total:     total,
		Outcomes:  make([]domain.DocumentOutcome, 0, total),
		StartedAt: time.Now().UTC(),
	}
	return runID, nil
}

func (uc *ClassifyUseCase) execute(ctx context.Context, runID string, inputs []domain.ScanInput) domain.RunReport {
	ctx, span := uc.tracer.Start(ctx, "classification.run", trace.WithAttributes(
		attribute.String("run.id", runID),
		attribute.Int("run.documents", len(inputs)),
	))
	defer span.End()

	logger := uc.logger.With("run_id", runID)
	logger.Info("classification_started", "documents", len(inputs))

	final := domain.RunCompleted
	var sticky domain.BucketID
	for i, in := range inputs {
		if uc.stopRequested(ctx) {
			final = domain.RunCancelled
			break
		}
		outcome, label := uc.processDocument(ctx, logger, i, in, sticky)
		sticky = outcome.BucketID
		uc.record(ctx, logger, runID, len(inputs), outcome, label)
	}

	report := uc.finish(final)
	logger.Info("classification_finished",
		"state", report.State,
		"processed", report.Processed,
		"classified", report.Count(domain.OutcomeClassified),
		"unmatched", report.Count(domain.OutcomeUnmatched),
		"errors", report.Count(domain.OutcomeError),
	)
	return report
}

func (uc *ClassifyUseCase) stopRequested(ctx context.Context) bool {
	return uc.cancelled.Load() || ctx.Err() != nil
}

// processDocument classifies one page and commits it. The returned outcome's
// BucketID is the sticky context for the next page (zero resets it).
func (uc *ClassifyUseCase) processDocument(
	ctx context.Context,
	logger *slog.Logger,
	index int,
	in domain.ScanInput,
	sticky domain.BucketID,
) (domain.DocumentOutcome, string) {
	ctx, span := uc.tracer.Start(ctx, "classification.document", trace.WithAttributes(
		attribute.Int("document.index", index),
		attribute.String("document.image_ref", in.ImageRef),
	))
	defer span.End()

	start := time.Now()
	outcome := domain.DocumentOutcome{
		Index:       index,
		ImageRef:    in.ImageRef,
		DisplayName: in.DisplayName,
	}

	text, err := uc.recognize(ctx, in.ImageRef)
	if err != nil {
		span.RecordError(err)
		logger.Warn("ocr_failed", "index", index, "image_ref", in.ImageRef, "error", err)
		outcome.Status = domain.OutcomeError
		outcome.Error = err.Error()
		return finishOutcome(&outcome, start), labelOCRError
	}

	if sticky != 0 && !uc.registry.Contains(sticky) {
		sticky = 0
	}
	snapshot := uc.registry.Snapshot()
	result := uc.engine.Classify(text, matching.Context{
		Buckets:  snapshot.Buckets,
		Sticky:   sticky,
		Position: index,
	})
	span.SetAttributes(attribute.String("document.match", string(result.Kind)))
	outcome.Match = result.Kind

	if result.Kind == domain.MatchUnmatched {
		outcome.Status = domain.OutcomeUnmatched
		logger.Info("document_unmatched", "index", index, "image_ref", in.ImageRef)
		return finishOutcome(&outcome, start), labelUnclassified
	}

	year, assumed := matching.ResolveYear(matching.ExtractYear(text), uc.cohortYear)
	doc := domain.Document{
		ID:          uuid.NewString(),
		ImageRef:    in.ImageRef,
		DisplayName: in.DisplayName,
		Year:        year,
		YearAssumed: assumed,
	}
	bucket, err := uc.apply(result, doc)
	if err != nil {
		span.RecordError(err)
		logger.Error("document_commit_failed", "index", index, "image_ref", in.ImageRef, "error", err)
		outcome.Status = domain.OutcomeError
		outcome.Error = err.Error()
		return finishOutcome(&outcome, start), labelOCRError
	}

	outcome.Status = domain.OutcomeClassified
	outcome.BucketID = bucket.ID
	outcome.BucketCode = bucket.Code
	outcome.Year = year
	logger.Info("document_classified",
		"index", index,
		"image_ref", in.ImageRef,
		"match", result.Kind,
		"bucket", bucket.Code,
		"year", year,
		"year_assumed", assumed,
	)
	return finishOutcome(&outcome, start), statusLabel(result.Kind, bucket.Code)
}

func finishOutcome(outcome *domain.DocumentOutcome, start time.Time) domain.DocumentOutcome {
	outcome.ElapsedMS = float64(time.Since(start).Microseconds()) / 1000.0
	return *outcome
}

// recognize runs the OCR call detached from cancellation so a run is never
// stopped in the middle of a document; only the OCR timeout bounds it.
func (uc *ClassifyUseCase) recognize(ctx context.Context, imageRef string) (string, error) {
	ocrCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.ocrTimeout)
	defer cancel()

	text, err := uc.recognizer.Recognize(ocrCtx, imageRef)
	if err != nil {
		if domain.IsKind(err, domain.ErrOCRFailure) {
			return "", err
		}
		return "", domain.WrapError(domain.ErrOCRFailure, "recognize text", err)
	}
	return text, nil
}

func (uc *ClassifyUseCase) apply(result domain.MatchResult, doc domain.Document) (domain.Bucket, error) {
	id := result.Bucket
	if result.Kind == domain.MatchNew {
		var err error
		id, err = uc.createDetected(*result.NewBucket)
		if err != nil {
			return domain.Bucket{}, err
		}
	}
	if err := uc.registry.AddDocument(id, doc); err != nil {
		return domain.Bucket{}, fmt.Errorf("add document: %w", err)
	}
	bucket, err := uc.registry.Bucket(id)
	if err != nil {
		return domain.Bucket{}, fmt.Errorf("load bucket: %w", err)
	}
	return bucket, nil
}

// createDetected creates the detected bucket, reusing one with the same code
// if a user created it after the snapshot was taken.
func (uc *ClassifyUseCase) createDetected(subject domain.Subject) (domain.BucketID, error) {
	id, err := uc.registry.CreateBucket(subject.Code, subject.Name)
	if err == nil {
		return id, nil
	}
	if domain.IsKind(err, domain.ErrDuplicateCode) {
		if existing, ok := uc.registry.FindBucketByCode(subject.Code); ok {
			return existing, nil
		}
	}
	return 0, fmt.Errorf("create detected bucket: %w", err)
}

func (uc *ClassifyUseCase) record(
	ctx context.Context,
	logger *slog.Logger,
	runID string,
	total int,
	outcome domain.DocumentOutcome,
	label string,
) {
	event := domain.ProgressEvent{
		RunID:       runID,
		Index:       outcome.Index,
		TotalCount:  total,
		StatusLabel: label,
		Outcome:     outcome,
		EmittedAt:   time.Now().UTC(),
	}
	if outcome.BucketCode != "" {
		code := outcome.BucketCode
		event.BucketCode = &code
	}

	uc.mu.Lock()
	uc.report.Processed++
	uc.report.Outcomes = append(uc.report.Outcomes, outcome)
	uc.report.LastEvent = &event
	uc.mu.Unlock()

	for _, obs := range uc.observers {
		if err := obs.ObserveProgress(ctx, event); err != nil {
			logger.Warn("progress_observer_failed", "index", outcome.Index, "error", err)
		}
	}
}

func (uc *ClassifyUseCase) finish(state domain.RunState) domain.RunReport {
	uc.mu.Lock()
	uc.report.State = state
	uc.report.FinishedAt = time.Now().UTC()
	if state == domain.RunCancelled {
		uc.report.LastEvent = &domain.ProgressEvent{
			RunID:       uc.report.RunID,
			Index:       uc.report.Processed,
			TotalCount:  uc.report.Total,
			StatusLabel: labelCancelled,
			EmittedAt:   uc.report.FinishedAt,
		}
	}
	uc.mu.Unlock()
	return uc.Report()
}

func statusLabel(kind domain.MatchKind, code string) string {
	switch kind {
	case domain.MatchNew:
		return "New Subject Detected: " + code
	case domain.MatchSticky:
		return "Matching context to: " + code + "..."
	default:
		return "Filed under " + code
	}
}
