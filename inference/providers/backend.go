package providers

import (
	"context"

	"github.com/nvr-ai/live-detect/inference"
	"github.com/nvr-ai/live-detect/models"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// Fraction of load progress spent fetching the artifact; session creation takes the rest.
const fetchShare = 0.8

// Backend loads ONNX models into runtime sessions. It implements inference.Backend.
type Backend struct {
	cfg      Config
	provider ProviderOptions
	log      *zap.Logger
}

// NewBackend validates cfg and returns a backend. The runtime is initialized on the first Load.
//
// Arguments:
//   - cfg: Runtime library, execution provider and tuning.
//   - log: Logger; nil discards.
//
// Returns:
//   - *Backend: The backend.
//   - error: An error if cfg is invalid.
func NewBackend(cfg Config, log *zap.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	provider, err := cfg.ProviderOptions()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{cfg: cfg, provider: provider, log: log}, nil
}

// Load fetches the artifact at spec.Location, inspects its input and creates a session.
func (b *Backend) Load(ctx context.Context, spec models.Spec, progress models.ProgressFunc) (inference.Model, error) {
	if progress == nil {
		progress = func(float64) {}
	}
	if err := initEnvironment(b.cfg.LibraryPath); err != nil {
		return nil, err
	}

	data, err := models.Fetch(ctx, spec.Location, func(f float64) { progress(f * fetchShare) })
	if err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return nil, errors.Wrap(err, "reading model inputs and outputs")
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, errors.Errorf("expected one input and at least one output, got %d and %d", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return nil, errors.Errorf("only float32 models are supported, got %v -> %v", in.DataType, out.DataType)
	}
	shape, err := ResolveInputShape(inference.Shape(in.Dimensions), spec.InputSize)
	if err != nil {
		return nil, errors.Wrapf(err, "input %s", in.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	options, err := newSessionOptions(b.cfg.Optimization, b.provider)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(data, []string{in.Name}, []string{out.Name}, options)
	if err != nil {
		return nil, errors.Wrap(err, "creating ORT session")
	}
	progress(1)

	b.log.Info("session created",
		zap.String("model", string(spec.ID)),
		zap.String("provider", string(b.provider.Backend())),
		zap.String("input", in.Name),
		zap.Stringer("shape", shape),
		zap.String("output", out.Name),
		zap.Stringer("output_shape", inference.Shape(out.Dimensions)),
	)
	return &Session{session: session, input: in.Name, output: out.Name, shape: shape}, nil
}

// ResolveInputShape fixes the dynamic dimensions of a 4-D image input.
//
// The batch dimension becomes 1 and dynamic spatial dimensions become size. The channel axis is
// whichever of axis 1 or axis 3 is 3.
//
// Arguments:
//   - dims: The declared input dimensions; values <= 0 are dynamic.
//   - size: The square input side to use for dynamic spatial dimensions.
//
// Returns:
//   - inference.Shape: The concrete input shape.
//   - error: An error if the input is not a 4-D image tensor.
func ResolveInputShape(dims inference.Shape, size int) (inference.Shape, error) {
	if len(dims) != 4 {
		return nil, errors.Errorf("expected a 4-D image input, got %v", dims)
	}
	shape := dims.Clone()
	if shape[0] <= 0 {
		shape[0] = 1
	}
	if shape[0] != 1 {
		return nil, errors.Errorf("batch size must be 1, got %d", shape[0])
	}

	var spatial []int
	switch {
	case shape[1] == 3:
		spatial = []int{2, 3}
	case shape[3] == 3:
		spatial = []int{1, 2}
	default:
		return nil, errors.Errorf("no 3-channel axis in %v", dims)
	}
	for _, axis := range spatial {
		if shape[axis] > 0 {
			continue
		}
		if size <= 0 {
			return nil, errors.Errorf("input %v has dynamic size and no input size is configured", dims)
		}
		shape[axis] = int64(size)
	}
	return shape, nil
}
