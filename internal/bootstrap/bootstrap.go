package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Floyce/OCR-Sorter/internal/config"
	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/matching"
	"github.com/Floyce/OCR-Sorter/internal/core/ports"
	"github.com/Floyce/OCR-Sorter/internal/core/registry"
	"github.com/Floyce/OCR-Sorter/internal/core/usecase"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/imaging"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/ocr"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/ocr/sidecar"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/ocr/tesseract"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/queue/nats"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/repository/postgres"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/resilience"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/storage/localfs"
	"github.com/Floyce/OCR-Sorter/internal/observability/metrics"
)

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Subjects []domain.Subject

	Registry  *registry.Registry
	Queue     ports.BatchQueue
	Runner    ports.ClassificationRunner
	Organizer ports.BucketOrganizer
	Ingestor  ports.ScanIngestor
	Processor ports.BatchProcessor

	closeFn func()
}

type Options struct {
	Service string
	Logger  *slog.Logger
	// Registerer receives pipeline and breaker metrics. Nil disables them.
	Registerer prometheus.Registerer
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	subjects, err := config.LoadSubjects(cfg.SubjectsFile)
	if err != nil {
		return nil, fmt.Errorf("load subjects: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init scan storage: %w", err)
	}

	var (
		observers       []ports.ProgressObserver
		pipelineMetrics *metrics.PipelineMetrics
	)
	execOpts := []resilience.Option{resilience.WithLogger(logger)}
	if opts.Registerer != nil {
		pipelineMetrics = metrics.NewPipelineMetrics(opts.Service, opts.Registerer)
		observers = append(observers, pipelineMetrics)
		execOpts = append(execOpts, resilience.WithStateObserver(pipelineMetrics.ObserveBreaker))
	}
	executor := resilience.NewExecutor(resilienceConfig(cfg), execOpts...)

	engine, err := newOCREngine(cfg)
	if err != nil {
		return nil, err
	}
	recognizer := ocr.NewRouter(storage, ocr.RouterOptions{
		Engine:      engine,
		Transcripts: sidecar.NewTranscripts(storage),
		Normalizer:  imaging.NewNormalizer(cfg.OCRMaxDimension),
		Executor:    executor,
		Logger:      logger,
	})

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var queue ports.BatchQueue
	if strings.TrimSpace(cfg.NATSURL) != "" {
		q, err := nats.New(cfg.NATSURL, nats.Options{
			BatchSubject:       cfg.NATSBatchSubject,
			ProgressSubject:    cfg.NATSProgressSubject,
			ResilienceExecutor: executor,
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init batch queue: %w", err)
		}
		closers = append(closers, q.Close)
		queue = q
		observers = append(observers, q)
	}

	var exporter ports.RunExporter
	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = db.Close() })
		repo, err := ensureRunRepository(ctx, db)
		if err != nil {
			closeAll()
			return nil, err
		}
		exporter = repo
	}

	reg, err := registry.NewSeeded(subjects)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("seed registry: %w", err)
	}

	classifyOpts := usecase.ClassifyOptions{
		Seeds:      subjects,
		CohortYear: cfg.DefaultCohortYear,
		OCRTimeout: cfg.OCRTimeout,
		Logger:     logger,
	}
	matcher := matching.NewEngine(matching.StickyPolicy(cfg.StickyPolicy))
	classifyUC := usecase.NewClassifyUseCase(reg, recognizer, matcher, classifyOpts, observers...)
	organizeUC := usecase.NewReorganizeUseCase(reg, logger)
	ingestUC := usecase.NewIngestScansUseCase(storage, classifyUC, queue)
	processUC := usecase.NewProcessBatchUseCase(recognizer, matcher, exporter, classifyOpts, observers...)

	logger.Info("bootstrap_ready",
		"subjects", len(subjects),
		"ocr_engine", engineName(engine),
		"sticky_policy", string(matcher.Policy()),
		"queue", queue != nil,
		"exporter", exporter != nil,
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Subjects: subjects,

		Registry:  reg,
		Queue:     queue,
		Runner:    classifyUC,
		Organizer: organizeUC,
		Ingestor:  ingestUC,
		Processor: processUC,

		closeFn: closeAll,
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func ensureRunRepository(ctx context.Context, db *sql.DB) (*postgres.RunRepository, error) {
	repo := postgres.NewRunRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

// newOCREngine returns nil for the sidecar mode, where only transcripts and
// PDF text layers are read.
func newOCREngine(cfg config.Config) (ocr.Engine, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.OCREngine)) {
	case "", "tesseract":
		return tesseract.NewEngine(cfg.OCRLanguages), nil
	case "sidecar":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported OCR_ENGINE %q", cfg.OCREngine)
	}
}

func engineName(engine ocr.Engine) string {
	if engine == nil {
		return "sidecar"
	}
	return engine.Name()
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:    cfg.ResilienceRetryMaxAttempts,
		RetryInitialBackoff: cfg.ResilienceRetryInitialBackoff,
		RetryMaxBackoff:     cfg.ResilienceRetryMaxBackoff,
		RetryMultiplier:     2,
		BreakerEnabled:      cfg.ResilienceBreakerEnabled,
		BreakerMinRequests:  uint32(max(cfg.ResilienceBreakerMinRequests, 0)),
		BreakerFailureRatio: cfg.ResilienceBreakerFailureRatio,
		BreakerOpenTimeout:  cfg.ResilienceBreakerOpenTimeout,
	}
}
