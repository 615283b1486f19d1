package providers

import (
	"runtime"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Graph optimization levels accepted by OptimizationConfig.GraphOptimization.
const (
	GraphOptimizationDisable  = "disable"
	GraphOptimizationBasic    = "basic"
	GraphOptimizationExtended = "extended"
	GraphOptimizationAll      = "all"
)

// OptimizationConfig contains the ONNX Runtime session tuning settings.
type OptimizationConfig struct {
	// GraphOptimization is one of disable, basic, extended or all.
	GraphOptimization string `json:"graph_optimization" yaml:"graph_optimization"`
	// Parallel selects parallel over sequential execution of independent nodes.
	Parallel bool `json:"parallel" yaml:"parallel"`
	// IntraOpNumThreads sets threads for parallelizing ops. 0 lets the runtime decide.
	IntraOpNumThreads int `json:"intra_op_num_threads" yaml:"intra_op_num_threads"`
	// InterOpNumThreads sets threads for parallelizing independent ops. 0 lets the runtime decide.
	InterOpNumThreads int `json:"inter_op_num_threads" yaml:"inter_op_num_threads"`
	// EnableMemoryPattern enables memory pattern optimization.
	EnableMemoryPattern bool `json:"enable_memory_pattern" yaml:"enable_memory_pattern"`
	// EnableCPUMemArena enables the CPU memory arena.
	EnableCPUMemArena bool `json:"enable_cpu_mem_arena" yaml:"enable_cpu_mem_arena"`
}

// DefaultOptimizationConfig returns extended graph optimization with threads scaled to the host.
func DefaultOptimizationConfig() OptimizationConfig {
	numCPU := runtime.NumCPU()
	return OptimizationConfig{
		GraphOptimization:   GraphOptimizationExtended,
		IntraOpNumThreads:   max(1, numCPU/2),
		InterOpNumThreads:   max(1, numCPU/4),
		EnableMemoryPattern: true,
		EnableCPUMemArena:   true,
	}
}

// Level maps GraphOptimization to the runtime constant.
func (o OptimizationConfig) Level() (ort.GraphOptimizationLevel, error) {
	switch strings.ToLower(o.GraphOptimization) {
	case GraphOptimizationDisable:
		return ort.GraphOptimizationLevelDisableAll, nil
	case GraphOptimizationBasic:
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "", GraphOptimizationExtended:
		return ort.GraphOptimizationLevelEnableExtended, nil
	case GraphOptimizationAll:
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, errors.Errorf("unknown graph optimization level %q", o.GraphOptimization)
	}
}

// newSessionOptions builds session options from the tuning settings and appends the execution
// provider. The caller destroys the returned options.
func newSessionOptions(opt OptimizationConfig, provider ProviderOptions) (*ort.SessionOptions, error) {
	level, err := opt.Level()
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}

	mode := ort.ExecutionMode(ort.ExecutionModeSequential)
	if opt.Parallel {
		mode = ort.ExecutionMode(ort.ExecutionModeParallel)
	}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"graph optimization level", func() error { return options.SetGraphOptimizationLevel(level) }},
		{"execution mode", func() error { return options.SetExecutionMode(mode) }},
		{"intra-op threads", func() error { return options.SetIntraOpNumThreads(opt.IntraOpNumThreads) }},
		{"inter-op threads", func() error { return options.SetInterOpNumThreads(opt.InterOpNumThreads) }},
		{"memory pattern", func() error { return options.SetMemPattern(opt.EnableMemoryPattern) }},
		{"cpu memory arena", func() error { return options.SetCpuMemArena(opt.EnableCPUMemArena) }},
		{"execution provider", func() error { return provider.apply(options) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			options.Destroy()
			return nil, errors.Wrapf(err, "setting %s", step.name)
		}
	}
	return options, nil
}
