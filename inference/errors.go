// Package inference - Model handles, owned tensors and the model lifecycle.
package inference

import (
	"fmt"

	"github.com/nvr-ai/live-detect/models"
	"github.com/pkg/errors"
)

var (
	// ErrModelLoad reports a model that could not be fetched, parsed or warmed up.
	ErrModelLoad = errors.New("model load failed")
	// ErrNoModelLoaded is returned by Acquire when no handle is active.
	ErrNoModelLoaded = errors.New("no model loaded")
	// ErrManagerDisposed is returned by Load and Swap after Dispose.
	ErrManagerDisposed = errors.New("model manager disposed")
	// ErrPreprocess reports a frame that cannot be turned into an input tensor.
	ErrPreprocess = errors.New("preprocess failed")
	// ErrInferenceShapeMismatch reports an input tensor that does not match the model input.
	ErrInferenceShapeMismatch = errors.New("input shape does not match model")
	// ErrInferenceTimeout reports an inference call that exceeded its deadline.
	ErrInferenceTimeout = errors.New("inference timed out")
	// ErrDecode reports a malformed raw model output.
	ErrDecode = errors.New("decode failed")
)

// LoadError carries the model id and the underlying cause of a failed load.
//
// errors.Is(err, ErrModelLoad) holds for every LoadError.
type LoadError struct {
	ID  models.ID
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrModelLoad, e.ID, e.Err)
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is matches ErrModelLoad.
func (e *LoadError) Is(target error) bool {
	return target == ErrModelLoad
}
