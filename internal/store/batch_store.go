package store

import (
	"context"
	"errors"

	"github.com/dunamismax/staffcut/internal/domain"
)

var ErrBatchNotFound = errors.New("batch not found")

type BatchStore interface {
	Create(ctx context.Context, batch domain.Batch) error
	Get(ctx context.Context, id string) (domain.Batch, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Batch, error)
	Finish(ctx context.Context, id string, outcome domain.Outcome) (domain.Batch, error)
}
