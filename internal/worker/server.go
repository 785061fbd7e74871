package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/staffcut/internal/config"
	"github.com/dunamismax/staffcut/internal/domain"
	"github.com/dunamismax/staffcut/internal/pipeline"
	"github.com/dunamismax/staffcut/internal/queue"
	"github.com/dunamismax/staffcut/internal/storage"
	"github.com/dunamismax/staffcut/internal/store"
	"github.com/dunamismax/staffcut/internal/webhook"
)

var errObjectStoreUnavailable = errors.New("object storage is not configured on this worker")

type Server struct {
	logger          *zap.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  batchProcessor
	objectProcessor batchProcessor
	webhookClient   webhookSender
	batchStore      store.BatchStore
	metrics         *metrics
	tracer          trace.Tracer
}

type batchProcessor interface {
	Process(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// NewServer wires the asynq consumer. storageClient may be nil, in which case
// object-store batches fail instead of running.
func NewServer(
	logger *zap.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	pipelineCfg config.PipelineConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	batchStore store.BatchStore,
) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	strategy, err := pipeline.ParseStrategy(pipelineCfg.Strategy)
	if err != nil {
		return nil, err
	}

	m := newMetrics()
	procCfg := pipeline.Config{
		Strategy:    strategy,
		Concurrency: pipelineCfg.Concurrency,
		Metrics:     m.pipeline,
	}

	localProcessor, err := pipeline.NewLocalProcessor(logger.Named("pipeline"), procCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize pipeline processor: %w", err)
	}

	var objectProcessor batchProcessor
	if storageClient != nil {
		p, err := pipeline.NewObjectStoreProcessor(storageClient, logger.Named("pipeline"), procCfg)
		if err != nil {
			return nil, fmt.Errorf("initialize object-store processor: %w", err)
		}
		objectProcessor = p
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				Logger:   logger.Named("asynq").Sugar(),
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					logger.Error("task failed", zap.String("type", task.Type()), zap.Error(err))
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveBatches)),
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		batchStore:      batchStore,
		metrics:         m,
		tracer:          otel.Tracer("staffcut/worker"),
	}
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	return s, nil
}

func (s *Server) Run() error {
	return s.server.Run(s.mux())
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeNormalizeBatch, s.handleNormalizeBatch)
	return mux
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleNormalizeBatch(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.BatchStatusFailed

	payload, err := queue.ParseNormalizeBatchPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	logger := s.logger.With(zap.String("batch_id", payload.BatchID))

	ctx, span := s.tracer.Start(ctx, "worker.normalize_batch", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("batch.id", payload.BatchID),
		attribute.String("batch.source_type", payload.SourceType),
		attribute.String("batch.input", payload.Input),
	)
	defer span.End()
	defer func() {
		s.metrics.batchDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.batchesTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeBatches.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeBatches.Dec()
	}()

	logger.Info("Working...",
		zap.String("source_type", payload.SourceType),
		zap.String("input", payload.Input),
		zap.String("output", payload.Output),
	)
	s.updateStatus(ctx, logger, payload.BatchID, domain.BatchStatusProcessing)

	result, err := s.process(ctx, payload)
	if err != nil {
		logger.Error("batch failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline failed")
		s.finish(ctx, logger, payload.BatchID, domain.Outcome{Status: domain.BatchStatusFailed, Error: err.Error()})
		_ = s.dispatchWebhook(ctx, logger, payload, webhook.EventBatchFailed, webhook.Event{
			BatchID:     payload.BatchID,
			Status:      domain.BatchStatusFailed,
			SourceType:  payload.SourceType,
			Input:       payload.Input,
			Output:      payload.Output,
			Error:       err.Error(),
			RequestedAt: payload.RequestedAt,
			FinishedAt:  time.Now().UTC(),
		})
		return fmt.Errorf("run pipeline: %w: %w", err, asynq.SkipRetry)
	}

	names := make([]string, 0, len(result.Outputs)+1)
	names = append(names, result.Background.Path)
	for _, output := range result.Outputs {
		names = append(names, output.Path)
	}

	logger.Info("Processed batch", zap.Stringer("extent", result.Extent), zap.Int("outputs", len(result.Outputs)))
	s.finish(ctx, logger, payload.BatchID, domain.Outcome{
		Status:  domain.BatchStatusSucceeded,
		Extent:  result.Extent,
		Outputs: len(result.Outputs),
	})
	outcome = domain.BatchStatusSucceeded

	// The batch is already recorded as done; a lost notification only shows
	// up in the webhook failure counter.
	if err := s.dispatchWebhook(ctx, logger, payload, webhook.EventBatchCompleted, webhook.Event{
		BatchID:     payload.BatchID,
		Status:      domain.BatchStatusSucceeded,
		SourceType:  payload.SourceType,
		Input:       payload.Input,
		Output:      payload.Output,
		Extent:      result.Extent,
		Outputs:     names,
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
	}); err != nil {
		span.RecordError(err)
	}

	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) process(ctx context.Context, payload queue.NormalizeBatchPayload) (pipeline.Result, error) {
	req := pipeline.Request{
		BatchID: payload.BatchID,
		Input:   payload.Input,
		Output:  payload.Output,
		Options: payload.Options,
	}

	switch payload.SourceType {
	case domain.SourceTypeLocalDir:
		return s.localProcessor.Process(ctx, req)
	case domain.SourceTypeObjectStore:
		if s.objectProcessor == nil {
			return pipeline.Result{}, errObjectStoreUnavailable
		}
		return s.objectProcessor.Process(ctx, req)
	default:
		return pipeline.Result{}, fmt.Errorf("unsupported source_type: %s", payload.SourceType)
	}
}

func (s *Server) updateStatus(ctx context.Context, logger *zap.Logger, batchID, status string) {
	if s.batchStore == nil {
		return
	}
	if _, err := s.batchStore.UpdateStatus(ctx, batchID, status); err != nil {
		logger.Warn("batch status update failed", zap.String("status", status), zap.Error(err))
	}
}

func (s *Server) finish(ctx context.Context, logger *zap.Logger, batchID string, outcome domain.Outcome) {
	if s.batchStore == nil {
		return
	}
	if _, err := s.batchStore.Finish(ctx, batchID, outcome); err != nil {
		logger.Warn("batch finish failed", zap.String("status", outcome.Status), zap.Error(err))
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, logger *zap.Logger, payload queue.NormalizeBatchPayload, event string, body webhook.Event) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		logger.Warn("webhook delivery failed", zap.String("event", event), zap.Error(err))
		s.metrics.webhookErrors.WithLabelValues(event).Inc()
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}
