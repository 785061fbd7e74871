package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Client enqueues batches. A failed batch is never retried: the same inputs
// would fail the same way.
type Client struct {
	client  *asynq.Client
	queue   string
	timeout time.Duration
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		client:  asynq.NewClient(redisOpt),
		queue:   queueName,
		timeout: timeout,
	}
}

func (c *Client) EnqueueNormalizeBatch(ctx context.Context, payload NormalizeBatchPayload) (*asynq.TaskInfo, error) {
	task, err := NewNormalizeBatchTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.BatchID),
		asynq.MaxRetry(0),
		asynq.Timeout(c.timeout),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
