package providers

import (
	"context"
	"sync"

	"github.com/nvr-ai/live-detect/inference"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Session is a loaded ONNX model with one float32 input and one float32 output.
//
// Input and output tensors are allocated per call, so concurrent Run calls are safe.
type Session struct {
	session *ort.DynamicAdvancedSession
	input   string
	output  string
	shape   inference.Shape

	mu     sync.RWMutex
	closed bool
}

// InputShape implements inference.Model.
func (s *Session) InputShape() inference.Shape {
	return s.shape.Clone()
}

// Run implements inference.Model.
//
// The call cannot be interrupted once the runtime has started it; ctx is checked before.
//
// Arguments:
//   - ctx: Checked before the call starts.
//   - input: The input tensor. Its buffer is only read.
//
// Returns:
//   - *inference.Tensor: The first model output, backed by runtime memory until released.
//   - error: An error if the session is closed or the runtime fails.
func (s *Session) Run(ctx context.Context, input *inference.Tensor) (*inference.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errors.New("session closed")
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, errors.Wrapf(err, "running %s -> %s", s.input, s.output)
	}

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		if outputs[0] != nil {
			_ = outputs[0].Destroy()
		}
		return nil, errors.Errorf("output %s is %T, expected float32 tensor", s.output, outputs[0])
	}
	return inference.WrapTensor(inference.Shape(out.GetShape()), out.GetData(), out.Destroy), nil
}

// Close releases the native session. Later calls are no-ops.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.session.Destroy(); err != nil {
		return errors.Wrap(err, "destroying ORT session")
	}
	return nil
}
