package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/staffcut/internal/domain"
	"github.com/dunamismax/staffcut/internal/id"
	"github.com/dunamismax/staffcut/internal/queue"
	"github.com/dunamismax/staffcut/internal/store"
)

const defaultUserIDHeader = "X-User-ID"

type Server struct {
	logger                *zap.Logger
	queueClient           queueEnqueuer
	batchStore            store.BatchStore
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
	handler               http.Handler
}

type queueEnqueuer interface {
	EnqueueNormalizeBatch(ctx context.Context, payload queue.NormalizeBatchPayload) (*asynq.TaskInfo, error)
}

type Options struct {
	RateLimiter  RateLimiter
	UserIDHeader string
}

func NewServer(logger *zap.Logger, queueClient queueEnqueuer, batchStore store.BatchStore, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	header := strings.TrimSpace(opts.UserIDHeader)
	if header == "" {
		header = defaultUserIDHeader
	}

	s := &Server{
		logger:                logger,
		queueClient:           queueClient,
		batchStore:            batchStore,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: header,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("staffcut/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	s.handler = s.instrument(s.mux)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/batches", s.handleCreateBatch)
	s.mux.HandleFunc("GET /v1/batches/{id}", s.handleGetBatch)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	batch := domain.Batch{
		ID:         id.New(),
		Status:     domain.BatchStatusCreated,
		SourceType: strings.ToLower(strings.TrimSpace(req.SourceType)),
		Input:      strings.TrimSpace(req.Input),
		Output:     strings.TrimSpace(req.Output),
		Options:    req.Options(),
		WebhookURL: strings.TrimSpace(req.WebhookURL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	annotateBatch(r.Context(), batch.ID, attribute.String("staffcut.source_type", batch.SourceType))

	pages, err := countPages(r.Context(), batch)
	if err != nil {
		status := http.StatusConflict
		if errors.Is(err, errNoLocalPages) {
			status = http.StatusUnprocessableEntity
		}
		s.metrics.observeSubmission(batch.SourceType, submissionRejected)
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	annotateBatch(r.Context(), batch.ID, attribute.Int("staffcut.pages", pages))
	if !s.admit(w, r, batch, pages) {
		return
	}

	if err := s.batchStore.Create(r.Context(), batch); err != nil {
		s.logger.Error("create batch failed", zap.String("batch_id", batch.ID), zap.Error(err))
		s.metrics.observeSubmission(batch.SourceType, submissionFailed)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	taskInfo, err := s.queueClient.EnqueueNormalizeBatch(r.Context(), queue.NormalizeBatchPayload{
		BatchID:     batch.ID,
		SourceType:  batch.SourceType,
		Input:       batch.Input,
		Output:      batch.Output,
		Options:     batch.Options,
		WebhookURL:  batch.WebhookURL,
		RequestedAt: now,
	})
	if err != nil {
		s.logger.Error("enqueue failed", zap.String("batch_id", batch.ID), zap.Error(err))
		if _, ferr := s.batchStore.Finish(r.Context(), batch.ID, domain.Outcome{
			Status: domain.BatchStatusFailed,
			Error:  "enqueue failed",
		}); ferr != nil {
			s.logger.Warn("mark batch failed", zap.String("batch_id", batch.ID), zap.Error(ferr))
		}
		s.metrics.observeSubmission(batch.SourceType, submissionFailed)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue batch"})
		return
	}
	s.metrics.observeSubmission(batch.SourceType, submissionQueued)
	s.metrics.pagesAdmitted.WithLabelValues(batch.SourceType).Add(float64(pages))

	if _, err := s.batchStore.UpdateStatus(r.Context(), batch.ID, domain.BatchStatusQueued); err != nil {
		s.logger.Warn("update status failed", zap.String("batch_id", batch.ID), zap.Error(err))
	}
	s.logger.Info("batch queued",
		zap.String("batch_id", batch.ID),
		zap.String("source_type", batch.SourceType),
		zap.Int("pages", pages),
		zap.String("queue", taskInfo.Queue),
	)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":    batch.ID,
		"status":      domain.BatchStatusQueued,
		"pages":       pages,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := strings.TrimSpace(r.PathValue("id"))
	if batchID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "batch id is required"})
		return
	}
	annotateBatch(r.Context(), batchID)

	batch, ok, err := s.batchStore.Get(r.Context(), batchID)
	if err != nil {
		s.logger.Error("fetch batch failed", zap.String("batch_id", batchID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load batch"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	writeJSON(w, http.StatusOK, batch)
}

// annotateBatch tags the request span with the batch it concerns.
func annotateBatch(ctx context.Context, batchID string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("staffcut.batch_id", batchID))
	span.SetAttributes(attrs...)
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
