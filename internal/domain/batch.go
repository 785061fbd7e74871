package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	BatchStatusCreated    = "created"
	BatchStatusQueued     = "queued"
	BatchStatusProcessing = "processing"
	BatchStatusSucceeded  = "succeeded"
	BatchStatusFailed     = "failed"

	SourceTypeLocalDir    = "local_dir"
	SourceTypeObjectStore = "object_store"

	DefaultBackground = "white"
	DefaultRadius     = 80
	DefaultExtension  = "png"
)

// Options are the per-batch rendering settings shared by every entry point.
type Options struct {
	Background string  `json:"background"`
	Radius     float64 `json:"radius"`
	Extension  string  `json:"extension"`
}

// WithDefaults fills unset fields with the CLI defaults.
func (o Options) WithDefaults() Options {
	if strings.TrimSpace(o.Background) == "" {
		o.Background = DefaultBackground
	}
	if strings.TrimSpace(o.Extension) == "" {
		o.Extension = DefaultExtension
	}
	return o
}

func (o Options) Validate() error {
	if math.IsNaN(o.Radius) || math.IsInf(o.Radius, 0) {
		return errors.New("radius must be a finite number")
	}
	if o.Radius < 0 {
		return fmt.Errorf("radius must not be negative, got %g", o.Radius)
	}
	if strings.ContainsAny(o.Extension, `/\`) {
		return fmt.Errorf("extension must not contain path separators: %q", o.Extension)
	}
	return nil
}

type CreateBatchRequest struct {
	SourceType string   `json:"source_type"`
	Input      string   `json:"input"`
	Output     string   `json:"output"`
	Background string   `json:"background,omitempty"`
	Radius     *float64 `json:"radius,omitempty"`
	Extension  string   `json:"extension,omitempty"`
	WebhookURL string   `json:"webhook_url,omitempty"`
}

// Options resolves the request's rendering settings, applying defaults.
func (r CreateBatchRequest) Options() Options {
	radius := float64(DefaultRadius)
	if r.Radius != nil {
		radius = *r.Radius
	}
	return Options{
		Background: r.Background,
		Radius:     radius,
		Extension:  r.Extension,
	}.WithDefaults()
}

func (r CreateBatchRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalDir && sourceType != SourceTypeObjectStore {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if strings.TrimSpace(r.Input) == "" {
		return errors.New("input is required")
	}
	if strings.TrimSpace(r.Output) == "" {
		return errors.New("output is required")
	}
	return r.Options().Validate()
}

type Batch struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	SourceType string    `json:"source_type"`
	Input      string    `json:"input"`
	Output     string    `json:"output"`
	Options    Options   `json:"options"`
	WebhookURL string    `json:"webhook_url,omitempty"`
	Extent     Extent    `json:"extent"`
	Outputs    int       `json:"outputs"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Outcome is the final state written back to a batch record.
type Outcome struct {
	Status  string
	Extent  Extent
	Outputs int
	Error   string
}
