package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// CoreML flags understood by the CoreML execution provider.
const (
	CoreMLFlagUseCPUOnly                 uint32 = 0x001
	CoreMLFlagEnableOnSubgraph           uint32 = 0x002
	CoreMLFlagOnlyEnableDeviceWithANE    uint32 = 0x004
	CoreMLFlagOnlyAllowStaticInputShapes uint32 = 0x008
	CoreMLFlagCreateMLProgram            uint32 = 0x010
	CoreMLFlagUseCPUAndGPU               uint32 = 0x020
)

// CoreMLOptions contains arguments for the CoreML provider.
// See: https://onnxruntime.ai/docs/execution-providers/CoreML-ExecutionProvider.html
type CoreMLOptions struct {
	// Create an MLProgram format model. Requires Core ML 5 or later (macOS 12+). The default is a
	// NeuralNetwork format model.
	MLProgram bool `json:"mlProgram" yaml:"mlProgram"`
	// Limit CoreML to running on CPU only.
	CPUOnly bool `json:"cpuOnly" yaml:"cpuOnly"`
	// Only allow the CoreML EP to take nodes with inputs that have static shapes.
	RequireStaticInputShapes bool `json:"requireStaticInputShapes" yaml:"requireStaticInputShapes"`
	// Enable CoreML EP to run on a subgraph in the body of a control flow operator.
	EnableOnSubgraphs bool `json:"enableOnSubgraphs" yaml:"enableOnSubgraphs"`
}

// Backend implements ProviderOptions.
func (CoreMLOptions) Backend() ProviderBackend {
	return CoreMLProviderBackend
}

// Flags returns the provider flag word for the options.
func (o CoreMLOptions) Flags() uint32 {
	var flags uint32
	if o.MLProgram {
		flags |= CoreMLFlagCreateMLProgram
	}
	if o.CPUOnly {
		flags |= CoreMLFlagUseCPUOnly
	}
	if o.RequireStaticInputShapes {
		flags |= CoreMLFlagOnlyAllowStaticInputShapes
	}
	if o.EnableOnSubgraphs {
		flags |= CoreMLFlagEnableOnSubgraph
	}
	return flags
}

func (o CoreMLOptions) apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderCoreML(o.Flags()); err != nil {
		return errors.Wrap(err, "enabling CoreML")
	}
	return nil
}
