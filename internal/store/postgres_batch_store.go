package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/dunamismax/staffcut/internal/domain"
)

const batchSchemaSQL = `
CREATE TABLE IF NOT EXISTS batches (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	source_type TEXT NOT NULL,
	input TEXT NOT NULL,
	output TEXT NOT NULL,
	options JSONB NOT NULL,
	webhook_url TEXT NOT NULL DEFAULT '',
	extent_width INTEGER NOT NULL DEFAULT 0,
	extent_height INTEGER NOT NULL DEFAULT 0,
	outputs INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

const selectBatchSQL = `SELECT id, status, source_type, input, output, options, webhook_url,
	extent_width, extent_height, outputs, error, created_at, updated_at
 FROM batches
 WHERE id = $1`

type PostgresBatchStore struct {
	db *sql.DB
}

func NewPostgresBatchStore(ctx context.Context, dsn string) (*PostgresBatchStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresBatchStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresBatchStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, batchSchemaSQL); err != nil {
		return fmt.Errorf("ensure batches schema: %w", err)
	}
	return nil
}

func (s *PostgresBatchStore) Close() error {
	return s.db.Close()
}

func (s *PostgresBatchStore) Create(ctx context.Context, batch domain.Batch) error {
	optionsJSON, err := json.Marshal(batch.Options)
	if err != nil {
		return fmt.Errorf("marshal batch options: %w", err)
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO batches (id, status, source_type, input, output, options, webhook_url,
			extent_width, extent_height, outputs, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		batch.ID,
		batch.Status,
		batch.SourceType,
		batch.Input,
		batch.Output,
		optionsJSON,
		batch.WebhookURL,
		batch.Extent.W,
		batch.Extent.H,
		batch.Outputs,
		batch.Error,
		batch.CreatedAt,
		batch.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

func (s *PostgresBatchStore) Get(ctx context.Context, id string) (domain.Batch, bool, error) {
	var (
		batch       domain.Batch
		optionsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, selectBatchSQL, id).Scan(
		&batch.ID,
		&batch.Status,
		&batch.SourceType,
		&batch.Input,
		&batch.Output,
		&optionsJSON,
		&batch.WebhookURL,
		&batch.Extent.W,
		&batch.Extent.H,
		&batch.Outputs,
		&batch.Error,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Batch{}, false, nil
		}
		return domain.Batch{}, false, fmt.Errorf("query batch: %w", err)
	}

	if err := json.Unmarshal(optionsJSON, &batch.Options); err != nil {
		return domain.Batch{}, false, fmt.Errorf("unmarshal batch options: %w", err)
	}

	return batch, true, nil
}

func (s *PostgresBatchStore) UpdateStatus(ctx context.Context, id, status string) (domain.Batch, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE batches
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("update batch status: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresBatchStore) Finish(ctx context.Context, id string, outcome domain.Outcome) (domain.Batch, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE batches
		 SET status = $1, extent_width = $2, extent_height = $3, outputs = $4, error = $5, updated_at = $6
		 WHERE id = $7`,
		outcome.Status,
		outcome.Extent.W,
		outcome.Extent.H,
		outcome.Outputs,
		outcome.Error,
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return domain.Batch{}, fmt.Errorf("finish batch: %w", err)
	}
	return s.reload(ctx, id, res)
}

func (s *PostgresBatchStore) reload(ctx context.Context, id string, res sql.Result) (domain.Batch, error) {
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Batch{}, ErrBatchNotFound
	}

	batch, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.Batch{}, err
	}
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}
	return batch, nil
}
