package inference

import (
	"context"

	"github.com/nvr-ai/live-detect/models"
)

// Backend loads model artifacts into runnable models.
type Backend interface {
	// Load fetches and prepares the model described by spec, reporting progress as it goes.
	Load(ctx context.Context, spec models.Spec, progress models.ProgressFunc) (Model, error)
}

// Model is a loaded model owned by exactly one Handle.
type Model interface {
	// InputShape is the fixed input shape the model accepts.
	InputShape() Shape
	// Run executes the model. The caller owns the returned tensor and must Release it.
	Run(ctx context.Context, input *Tensor) (*Tensor, error)
	// Close frees the model.
	Close() error
}
