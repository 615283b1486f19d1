package inference

import (
	"context"
	"time"

	"github.com/nvr-ai/live-detect/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Handle is a loaded, warmed-up model published by a Manager.
//
// Handles are reference counted: the manager holds one reference while the handle is active and
// every Acquire adds one. The model is closed when the last reference is released, so a handle
// retired by Swap or Dispose stays usable until in-flight inference on it has finished.
type Handle struct {
	mgr     *Manager
	spec    models.Spec
	model   Model
	shape   Shape
	timeout time.Duration
	gen     uint64

	// guarded by mgr.mu
	refs   int
	closed bool
}

// Spec returns the spec the handle was loaded from.
func (h *Handle) Spec() models.Spec {
	return h.spec
}

// InputShape returns the declared input shape of the model.
func (h *Handle) InputShape() Shape {
	return h.shape.Clone()
}

// Generation is a per-manager sequence number, incremented by every successful load.
func (h *Handle) Generation() uint64 {
	return h.gen
}

// Closed reports whether the underlying model has been closed.
func (h *Handle) Closed() bool {
	h.mgr.mu.Lock()
	defer h.mgr.mu.Unlock()
	return h.closed
}

// Run executes one inference call.
//
// The input must match the declared input shape exactly. When the manager has an inference timeout
// configured, the model runs under that deadline; an output produced after the deadline is released
// and ErrInferenceTimeout is returned. The call itself is never abandoned.
//
// Arguments:
//   - ctx: Context passed to the model.
//   - input: The input tensor. Ownership stays with the caller.
//
// Returns:
//   - *Tensor: The raw output, owned by the caller.
//   - error: ErrInferenceShapeMismatch, ErrInferenceTimeout or a backend error.
func (h *Handle) Run(ctx context.Context, input *Tensor) (*Tensor, error) {
	if input == nil || !input.Shape.Equal(h.shape) {
		var got Shape
		if input != nil {
			got = input.Shape
		}
		return nil, errors.Wrapf(ErrInferenceShapeMismatch, "model %s expects %v, got %v", h.spec.ID, h.shape, got)
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	out, err := h.model.Run(ctx, input)
	if h.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if out != nil {
			_ = out.Release()
		}
		return nil, errors.Wrapf(ErrInferenceTimeout, "model %s exceeded %s", h.spec.ID, h.timeout)
	}
	if err != nil {
		if out != nil {
			_ = out.Release()
		}
		return nil, errors.Wrapf(err, "model %s", h.spec.ID)
	}
	if out == nil {
		return nil, errors.Errorf("model %s returned no output", h.spec.ID)
	}
	return out, nil
}

// Release returns a reference obtained from Manager.Acquire.
func (h *Handle) Release() {
	if err := h.unref(); err != nil {
		h.mgr.log.Warn("closing retired model failed", zap.String("model", string(h.spec.ID)), zap.Error(err))
	}
}

func (h *Handle) unref() error {
	m := h.mgr
	m.mu.Lock()
	if h.closed {
		m.mu.Unlock()
		return nil
	}
	h.refs--
	last := h.refs == 0
	if last {
		h.closed = true
	}
	m.mu.Unlock()

	if !last {
		return nil
	}
	m.log.Info("closing model", zap.String("model", string(h.spec.ID)), zap.Uint64("generation", h.gen))
	return h.model.Close()
}
