package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dunamismax/staffcut/internal/domain"
)

const TypeNormalizeBatch = "batch:normalize"

type NormalizeBatchPayload struct {
	BatchID     string         `json:"batch_id"`
	SourceType  string         `json:"source_type"`
	Input       string         `json:"input"`
	Output      string         `json:"output"`
	Options     domain.Options `json:"options"`
	WebhookURL  string         `json:"webhook_url,omitempty"`
	RequestedAt time.Time      `json:"requested_at"`
}

func NewNormalizeBatchTask(payload NormalizeBatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal normalize payload: %w", err)
	}
	return asynq.NewTask(TypeNormalizeBatch, body), nil
}

func ParseNormalizeBatchPayload(task *asynq.Task) (NormalizeBatchPayload, error) {
	var payload NormalizeBatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NormalizeBatchPayload{}, fmt.Errorf("unmarshal normalize payload: %w", err)
	}
	if payload.BatchID == "" {
		return NormalizeBatchPayload{}, fmt.Errorf("normalize payload is missing batch_id")
	}
	return payload, nil
}
