// Package providers - ONNX Runtime backed inference with selectable execution providers.
package providers

import (
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend names an ONNX Runtime execution provider.
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML for macOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// ErrUnknownProvider is returned for a provider name that is not supported.
var ErrUnknownProvider = errors.New("unknown execution provider")

// ProviderOptions is implemented by the provider-specific option sets.
type ProviderOptions interface {
	// Backend returns the provider the options belong to.
	Backend() ProviderBackend
	// apply appends the provider to the session options.
	apply(options *ort.SessionOptions) error
}

// ParseProviderBackend parses a provider name, case-insensitively. An empty name is the CPU.
func ParseProviderBackend(s string) (ProviderBackend, error) {
	switch b := ProviderBackend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return CPUProviderBackend, nil
	case CPUProviderBackend, CUDAProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend:
		return b, nil
	default:
		return "", errors.Wrapf(ErrUnknownProvider, "%q", s)
	}
}

// cpuOptions selects the default provider; nothing is appended.
type cpuOptions struct{}

func (cpuOptions) Backend() ProviderBackend { return CPUProviderBackend }

func (cpuOptions) apply(*ort.SessionOptions) error { return nil }
