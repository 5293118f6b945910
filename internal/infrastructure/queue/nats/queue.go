package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/Floyce/OCR-Sorter/internal/core/domain"
	"github.com/Floyce/OCR-Sorter/internal/infrastructure/resilience"
)

const workerQueueGroup = "classifiers"

// Queue carries classification batches to workers and fans progress events
// out on "<progress subject>.<run id>".
type Queue struct {
	conn            *nats.Conn
	batchSubject    string
	progressSubject string
	executor        *resilience.Executor
	logger          *slog.Logger
}

type Options struct {
	BatchSubject         string
	ProgressSubject      string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if options.BatchSubject == "" {
		options.BatchSubject = "ocr.batches"
	}
	if options.ProgressSubject == "" {
		options.ProgressSubject = "ocr.progress"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("ocr-sorter"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:            conn,
		batchSubject:    options.BatchSubject,
		progressSubject: options.ProgressSubject,
		executor:        options.ResilienceExecutor,
		logger:          logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishBatch(ctx context.Context, batch domain.Batch) error {
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	return q.publish(ctx, "nats.publish_batch", q.batchSubject, payload)
}

// ObserveProgress makes the queue a pipeline progress observer.
func (q *Queue) ObserveProgress(ctx context.Context, event domain.ProgressEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode progress event: %w", err)
	}
	return q.publish(ctx, "nats.publish_progress", progressSubjectFor(q.progressSubject, event.RunID), payload)
}

func (q *Queue) publish(ctx context.Context, operation, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeBatches delivers each batch to exactly one worker in the queue
// group and blocks until ctx is done, then drains in-flight messages.
func (q *Queue) SubscribeBatches(ctx context.Context, handler func(context.Context, domain.Batch) error) error {
	sub, err := q.conn.QueueSubscribe(q.batchSubject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		batch, err := decodeBatch(msg.Data)
		if err != nil {
			q.logger.Error("batch_rejected", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, batch); err != nil {
			q.logger.Error("batch_failed", "run_id", batch.RunID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func decodeBatch(data []byte) (domain.Batch, error) {
	var batch domain.Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return domain.Batch{}, domain.WrapError(domain.ErrInvalidInput, "decode batch", err)
	}
	if strings.TrimSpace(batch.RunID) == "" {
		return domain.Batch{}, domain.WrapError(domain.ErrInvalidInput, "decode batch", errors.New("run_id is required"))
	}
	if len(batch.Images) == 0 {
		return domain.Batch{}, domain.WrapError(domain.ErrInvalidInput, "decode batch", errors.New("images are required"))
	}
	return batch, nil
}

func progressSubjectFor(prefix, runID string) string {
	runID = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(runID)
	if runID == "" {
		return prefix
	}
	return prefix + "." + runID
}
