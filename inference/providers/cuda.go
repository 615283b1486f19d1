package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// CUDAOptions contains arguments for the CUDA provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/CUDA-ExecutionProvider.html#configuration-options
type CUDAOptions struct {
	// The device ID.
	DeviceID int `json:"deviceID" yaml:"deviceID"`
	// The size limit of the device memory arena in bytes. 0 leaves the provider default.
	GPUMemLimit int64 `json:"gpuMemLimit" yaml:"gpuMemLimit"`
	// The strategy for extending the device memory arena: kNextPowerOfTwo or kSameAsRequested.
	ArenaExtendStrategy string `json:"arenaExtendStrategy" yaml:"arenaExtendStrategy"`
	// The type of search done for cuDNN convolution algorithms: EXHAUSTIVE, HEURISTIC or DEFAULT.
	CudnnConvAlgoSearch string `json:"cudnnConvAlgoSearch" yaml:"cudnnConvAlgoSearch"`
	// Whether to do copies in the default stream or use separate streams.
	DoCopyInDefaultStream bool `json:"doCopyInDefaultStream" yaml:"doCopyInDefaultStream"`
	// Prefer NHWC operators over NCHW.
	PreferNHWC bool `json:"preferNHWC" yaml:"preferNHWC"`
}

// Backend implements ProviderOptions.
func (CUDAOptions) Backend() ProviderBackend {
	return CUDAProviderBackend
}

// Values renders the options as ONNX Runtime provider option keys. Unset fields are omitted.
func (o CUDAOptions) Values() map[string]string {
	values := map[string]string{
		"device_id":                 strconv.Itoa(o.DeviceID),
		"do_copy_in_default_stream": boolFlag(o.DoCopyInDefaultStream),
		"prefer_nhwc":               boolFlag(o.PreferNHWC),
	}
	if o.GPUMemLimit > 0 {
		values["gpu_mem_limit"] = strconv.FormatInt(o.GPUMemLimit, 10)
	}
	if o.ArenaExtendStrategy != "" {
		values["arena_extend_strategy"] = o.ArenaExtendStrategy
	}
	if o.CudnnConvAlgoSearch != "" {
		values["cudnn_conv_algo_search"] = o.CudnnConvAlgoSearch
	}
	return values
}

func (o CUDAOptions) apply(options *ort.SessionOptions) error {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return errors.Wrap(err, "creating CUDA options")
	}
	defer cuda.Destroy()

	if err := cuda.Update(o.Values()); err != nil {
		return errors.Wrap(err, "converting CUDA options")
	}
	if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
		return errors.Wrap(err, "enabling CUDA")
	}
	return nil
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
