// Package ocr turns stored scans into text. The Router picks the cheapest
// source that can answer: a sidecar transcript, a PDF text layer, then the
// OCR engine on a normalized image.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/core/ports"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/imaging"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/ocr/pdftext"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/ocr/sidecar"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/resilience"
)

const maxScanBytes = 32 << 20

// Engine recognizes text in one normalized PNG page.
type Engine interface {
	Name() string
	RecognizeImage(ctx context.Context, png []byte) (string, error)
}

type Router struct {
	storage     ports.ImageStorage
	transcripts *sidecar.Transcripts
	engine      Engine
	normalizer  *imaging.Normalizer
	executor    *resilience.Executor
	logger      *slog.Logger
}

type RouterOptions struct {
	// Engine may be nil, in which case only transcripts and PDFs are readable.
	Engine      Engine
	Transcripts *sidecar.Transcripts
	Normalizer  *imaging.Normalizer
	Executor    *resilience.Executor
	Logger      *slog.Logger
}

func NewRouter(storage ports.ImageStorage, opts RouterOptions) *Router {
	if opts.Normalizer == nil {
		opts.Normalizer = imaging.NewNormalizer(0)
	}
	if opts.Executor == nil {
		opts.Executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		storage:     storage,
		transcripts: opts.Transcripts,
		engine:      opts.Engine,
		normalizer:  opts.Normalizer,
		executor:    opts.Executor,
		logger:      opts.Logger,
	}
}

func (r *Router) Recognize(ctx context.Context, imageRef string) (string, error) {
	if r.transcripts != nil {
		text, ok, err := r.transcripts.Lookup(ctx, imageRef)
		if err != nil {
			return "", domain.WrapError(domain.ErrOCRFailure, "read transcript", err)
		}
		if ok {
			r.logger.Debug("ocr_source", "image_ref", imageRef, "source", "transcript")
			return text, nil
		}
	}

	data, err := r.load(ctx, imageRef)
	if err != nil {
		return "", domain.WrapError(domain.ErrOCRFailure, "load scan", err)
	}

	if pdftext.IsPDF(data) {
		r.logger.Debug("ocr_source", "image_ref", imageRef, "source", "pdf")
		text, err := pdftext.Extract(data)
		if err != nil {
			return "", domain.WrapError(domain.ErrOCRFailure, "extract pdf text", err)
		}
		return text, nil
	}

	if r.engine == nil {
		return "", domain.WrapError(domain.ErrOCRFailure, "recognize image", errors.New("no OCR engine configured"))
	}
	png, info, err := r.normalizer.Normalize(data)
	if err != nil {
		return "", domain.WrapError(domain.ErrOCRFailure, "normalize image", err)
	}
	r.logger.Debug("ocr_source", "image_ref", imageRef, "source", r.engine.Name(),
		"format", info.Format, "width", info.Width, "height", info.Height, "scaled", info.Scaled)

	text, err := resilience.Do(ctx, r.executor, "ocr."+r.engine.Name(), func(ctx context.Context) (string, error) {
		return r.engine.RecognizeImage(ctx, png)
	}, nil)
	if err != nil {
		return "", domain.WrapError(domain.ErrOCRFailure, "recognize image", err)
	}
	return text, nil
}

func (r *Router) load(ctx context.Context, imageRef string) ([]byte, error) {
	reader, err := r.storage.Open(ctx, imageRef)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxScanBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read scan: %w", err)
	}
	if len(data) > maxScanBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read scan", fmt.Errorf("%s exceeds %d bytes", imageRef, maxScanBytes))
	}
	return data, nil
}
