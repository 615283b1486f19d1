package providers

import (
	"github.com/pkg/errors"
)

// Config selects the runtime library, execution provider and session tuning.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty uses SharedLibPath.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// Provider is the execution provider to append to every session.
	Provider ProviderBackend `json:"provider" yaml:"provider"`
	// Optimization tunes the sessions.
	Optimization OptimizationConfig `json:"optimization" yaml:"optimization"`

	// Provider-specific options; only the one matching Provider is used.
	CUDA     CUDAOptions     `json:"cuda" yaml:"cuda"`
	CoreML   CoreMLOptions   `json:"coreml" yaml:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`
}

// DefaultConfig returns the CPU provider with the default optimization settings.
func DefaultConfig() Config {
	return Config{
		Provider:     CPUProviderBackend,
		Optimization: DefaultOptimizationConfig(),
	}
}

// Validate checks the provider and optimization level.
func (c Config) Validate() error {
	if _, err := c.ProviderOptions(); err != nil {
		return err
	}
	if _, err := c.Optimization.Level(); err != nil {
		return err
	}
	if c.Optimization.IntraOpNumThreads < 0 || c.Optimization.InterOpNumThreads < 0 {
		return errors.New("thread counts must not be negative")
	}
	return nil
}

// ProviderOptions returns the option set of the configured provider.
func (c Config) ProviderOptions() (ProviderOptions, error) {
	backend, err := ParseProviderBackend(string(c.Provider))
	if err != nil {
		return nil, err
	}
	switch backend {
	case CUDAProviderBackend:
		return c.CUDA, nil
	case CoreMLProviderBackend:
		return c.CoreML, nil
	case OpenVINOProviderBackend:
		return c.OpenVINO, nil
	default:
		return cpuOptions{}, nil
	}
}
