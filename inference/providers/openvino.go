package providers

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// OpenVINOOptions contains arguments for the OpenVINO provider.
// See:
// https://onnxruntime.ai/docs/execution-providers/OpenVINO-ExecutionProvider.html#summary-of-options
type OpenVINOOptions struct {
	// Overrides the accelerator hardware type, e.g. CPU, GPU or NPU.
	DeviceType string `json:"deviceType" yaml:"deviceType"`
	// One of FP32, FP16 or ACCURACY. Empty uses the default for the device.
	Precision string `json:"precision" yaml:"precision"`
	// Overrides the accelerator default number of threads. 0 leaves the default.
	NumOfThreads int `json:"numOfThreads" yaml:"numOfThreads"`
	// Overrides the accelerator default streams. 0 leaves the default.
	NumStreams int `json:"numStreams" yaml:"numStreams"`
	// Rewrite dynamically shaped models to static shape at runtime.
	DisableDynamicShapes bool `json:"disableDynamicShapes" yaml:"disableDynamicShapes"`
	// Directory for compiled blobs. Empty disables caching.
	CacheDir string `json:"cacheDir" yaml:"cacheDir"`
}

// Backend implements ProviderOptions.
func (OpenVINOOptions) Backend() ProviderBackend {
	return OpenVINOProviderBackend
}

// Values renders the options as ONNX Runtime provider option keys. Unset fields are omitted.
func (o OpenVINOOptions) Values() map[string]string {
	values := map[string]string{
		"disable_dynamic_shapes": strconv.FormatBool(o.DisableDynamicShapes),
	}
	if o.DeviceType != "" {
		values["device_type"] = o.DeviceType
	}
	if o.Precision != "" {
		values["precision"] = o.Precision
	}
	if o.NumOfThreads > 0 {
		values["num_of_threads"] = strconv.Itoa(o.NumOfThreads)
	}
	if o.NumStreams > 0 {
		values["num_streams"] = strconv.Itoa(o.NumStreams)
	}
	if o.CacheDir != "" {
		values["cache_dir"] = o.CacheDir
	}
	return values
}

func (o OpenVINOOptions) apply(options *ort.SessionOptions) error {
	if err := options.AppendExecutionProviderOpenVINO(o.Values()); err != nil {
		return errors.Wrap(err, "enabling OpenVINO")
	}
	return nil
}
