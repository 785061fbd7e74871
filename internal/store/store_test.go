package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dunamismax/staffcut/internal/domain"
)

func TestMemoryBatchStoreLifecycle(t *testing.T) {
	exerciseBatchStore(t, NewMemoryBatchStore(), "batch-memory-1")
}

func TestPostgresBatchStoreLifecycle(t *testing.T) {
	dsn := os.Getenv("STAFFCUT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STAFFCUT_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewPostgresBatchStore(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	defer s.Close()

	exerciseBatchStore(t, s, "batch-pg-"+time.Now().UTC().Format("20060102150405.000000000"))
}

func exerciseBatchStore(t *testing.T, s BatchStore, id string) {
	t.Helper()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	batch := domain.Batch{
		ID:         id,
		Status:     domain.BatchStatusQueued,
		SourceType: domain.SourceTypeLocalDir,
		Input:      "/scores/in",
		Output:     "/scores/out",
		Options:    domain.Options{Background: "white", Radius: 80, Extension: "png"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Create(ctx, batch); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := s.Get(ctx, id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Options != batch.Options || got.Input != batch.Input {
		t.Fatalf("unexpected stored batch %+v", got)
	}

	got, err = s.UpdateStatus(ctx, id, domain.BatchStatusProcessing)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if got.Status != domain.BatchStatusProcessing {
		t.Fatalf("expected processing, got %s", got.Status)
	}

	got, err = s.Finish(ctx, id, domain.Outcome{
		Status:  domain.BatchStatusSucceeded,
		Extent:  domain.Extent{W: 80, H: 40},
		Outputs: 2,
	})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if got.Status != domain.BatchStatusSucceeded || got.Extent != (domain.Extent{W: 80, H: 40}) || got.Outputs != 2 {
		t.Fatalf("unexpected finished batch %+v", got)
	}

	if _, ok, err := s.Get(ctx, id+"-missing"); err != nil || ok {
		t.Fatalf("expected missing batch, ok=%v err=%v", ok, err)
	}
	if _, err := s.UpdateStatus(ctx, id+"-missing", domain.BatchStatusFailed); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}
