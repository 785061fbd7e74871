package worker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap/zaptest"

	"github.com/dunamismax/staffcut/internal/domain"
	"github.com/dunamismax/staffcut/internal/pipeline"
	"github.com/dunamismax/staffcut/internal/queue"
	"github.com/dunamismax/staffcut/internal/store"
	"github.com/dunamismax/staffcut/internal/webhook"
)

func TestHandleNormalizeBatchSucceeds(t *testing.T) {
	inputDir, outputDir := t.TempDir(), t.TempDir()
	writePage(t, filepath.Join(inputDir, "page1.png"), image.Rect(20, 20, 61, 61))
	writePage(t, filepath.Join(inputDir, "page2.png"), image.Rect(10, 10, 91, 51))

	s, batches, hooks := newTestServer(t)
	seedBatch(t, batches, "b_ok")

	err := s.handleNormalizeBatch(context.Background(), normalizeTask(t, queue.NormalizeBatchPayload{
		BatchID:    "b_ok",
		SourceType: domain.SourceTypeLocalDir,
		Input:      inputDir,
		Output:     outputDir,
		WebhookURL: "https://hooks.example/staffcut",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	batch, _, _ := batches.Get(context.Background(), "b_ok")
	if batch.Status != domain.BatchStatusSucceeded || batch.Extent != (domain.Extent{W: 80, H: 40}) || batch.Outputs != 2 {
		t.Fatalf("unexpected batch record %+v", batch)
	}

	for _, name := range []string{pipeline.BackgroundName, "page1.png", "page2.png"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Fatalf("expected %s to be written: %v", name, err)
		}
	}

	if len(hooks.events) != 1 || hooks.events[0] != webhook.EventBatchCompleted {
		t.Fatalf("expected one completed webhook, got %v", hooks.events)
	}
	if got := hooks.bodies[0].Outputs; len(got) != 3 {
		t.Fatalf("expected background plus two outputs in webhook, got %v", got)
	}
}

func TestHandleNormalizeBatchKeepsSuccessWhenWebhookFails(t *testing.T) {
	inputDir, outputDir := t.TempDir(), t.TempDir()
	writePage(t, filepath.Join(inputDir, "page1.png"), image.Rect(20, 20, 61, 61))

	s, batches, hooks := newTestServer(t)
	hooks.err = errors.New("receiver down")
	seedBatch(t, batches, "b_hook")

	err := s.handleNormalizeBatch(context.Background(), normalizeTask(t, queue.NormalizeBatchPayload{
		BatchID:    "b_hook",
		SourceType: domain.SourceTypeLocalDir,
		Input:      inputDir,
		Output:     outputDir,
		WebhookURL: "https://hooks.example/staffcut",
	}))
	if err != nil {
		t.Fatalf("expected the batch to succeed despite the webhook, got %v", err)
	}

	batch, _, _ := batches.Get(context.Background(), "b_hook")
	if batch.Status != domain.BatchStatusSucceeded {
		t.Fatalf("expected succeeded batch, got %s", batch.Status)
	}
	if got := testutil.ToFloat64(s.metrics.batchesTotal.WithLabelValues(domain.SourceTypeLocalDir, domain.BatchStatusSucceeded)); got != 1 {
		t.Fatalf("expected one succeeded batch counted, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.batchesTotal.WithLabelValues(domain.SourceTypeLocalDir, domain.BatchStatusFailed)); got != 0 {
		t.Fatalf("expected no failed batch counted, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.webhookErrors.WithLabelValues(webhook.EventBatchCompleted)); got != 1 {
		t.Fatalf("expected one webhook failure counted, got %v", got)
	}
}

func TestHandleNormalizeBatchFailsWithoutRetry(t *testing.T) {
	s, batches, hooks := newTestServer(t)
	seedBatch(t, batches, "b_empty")

	err := s.handleNormalizeBatch(context.Background(), normalizeTask(t, queue.NormalizeBatchPayload{
		BatchID:    "b_empty",
		SourceType: domain.SourceTypeLocalDir,
		Input:      t.TempDir(),
		Output:     t.TempDir(),
		Options:    domain.Options{Extension: "svg"},
		WebhookURL: "https://hooks.example/staffcut",
	}))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if !errors.Is(err, pipeline.ErrNoImages) {
		t.Fatalf("expected ErrNoImages in chain, got %v", err)
	}

	batch, _, _ := batches.Get(context.Background(), "b_empty")
	if batch.Status != domain.BatchStatusFailed || !strings.Contains(batch.Error, "svg") {
		t.Fatalf("unexpected batch record %+v", batch)
	}
	if len(hooks.events) != 1 || hooks.events[0] != webhook.EventBatchFailed {
		t.Fatalf("expected one failed webhook, got %v", hooks.events)
	}
}

func TestHandleNormalizeBatchWithoutObjectStorage(t *testing.T) {
	s, batches, _ := newTestServer(t)
	seedBatch(t, batches, "b_obj")

	err := s.handleNormalizeBatch(context.Background(), normalizeTask(t, queue.NormalizeBatchPayload{
		BatchID:    "b_obj",
		SourceType: domain.SourceTypeObjectStore,
		Input:      "scores/op1",
		Output:     "cutouts/op1",
	}))
	if !errors.Is(err, errObjectStoreUnavailable) {
		t.Fatalf("expected errObjectStoreUnavailable, got %v", err)
	}
}

func TestHandleNormalizeBatchRejectsBadPayload(t *testing.T) {
	s, _, _ := newTestServer(t)

	err := s.handleNormalizeBatch(context.Background(), asynq.NewTask(queue.TypeNormalizeBatch, []byte("nope")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func newTestServer(t *testing.T) (*Server, *store.MemoryBatchStore, *captureWebhook) {
	t.Helper()

	m := newMetrics()
	processor, err := pipeline.NewLocalProcessor(zaptest.NewLogger(t), pipeline.Config{Metrics: m.pipeline})
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	batches := store.NewMemoryBatchStore()
	hooks := &captureWebhook{}
	return &Server{
		logger:         zaptest.NewLogger(t),
		sem:            make(chan struct{}, 1),
		localProcessor: processor,
		webhookClient:  hooks,
		batchStore:     batches,
		metrics:        m,
		tracer:         otel.Tracer("staffcut/worker-test"),
	}, batches, hooks
}

func seedBatch(t *testing.T, batches *store.MemoryBatchStore, id string) {
	t.Helper()
	now := time.Now().UTC()
	if err := batches.Create(context.Background(), domain.Batch{
		ID:        id,
		Status:    domain.BatchStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed batch: %v", err)
	}
}

func normalizeTask(t *testing.T, payload queue.NormalizeBatchPayload) *asynq.Task {
	t.Helper()
	task, err := queue.NewNormalizeBatchTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func writePage(t *testing.T, path string, ink image.Rectangle) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, ink, image.NewUniform(color.Black), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode page: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write page: %v", err)
	}
}

type captureWebhook struct {
	events []string
	bodies []webhook.Event
	err    error
}

func (c *captureWebhook) Send(_ context.Context, _ string, event string, payload any) error {
	c.events = append(c.events, event)
	if body, ok := payload.(webhook.Event); ok {
		c.bodies = append(c.bodies, body)
	}
	return c.err
}
