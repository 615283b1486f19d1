package inference

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/nvr-ai/live-detect/models"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// State is the lifecycle state of a Manager.
type State int32

const (
	// StateUnloaded means no model has been loaded yet, or the last load failed.
	StateUnloaded State = iota
	// StateLoading means the first model is being loaded.
	StateLoading
	// StateReady means a handle is active.
	StateReady
	// StateSwapping means a replacement is loading while the active handle keeps serving.
	StateSwapping
	// StateDisposed is terminal.
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSwapping:
		return "swapping"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Resolver maps a model id to the spec that should be loaded.
type Resolver func(id models.ID) (models.Spec, error)

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger of the manager.
func WithLogger(log *zap.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithResolver replaces models.Lookup, e.g. to apply configured locations or class counts.
func WithResolver(r Resolver) Option {
	return func(m *Manager) {
		if r != nil {
			m.resolve = r
		}
	}
}

// WithInferenceTimeout bounds every Handle.Run of handles published by the manager.
func WithInferenceTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.timeout = d
	}
}

// Manager owns the active model handle and coordinates load, swap and dispose.
//
// Load and Swap are serialized. Acquire is safe to call concurrently with both and always returns
// either the previous or the new handle, never a closed one.
type Manager struct {
	backend Backend
	resolve Resolver
	timeout time.Duration
	log     *zap.Logger

	// loadMu serializes Load, Swap and Dispose.
	loadMu sync.Mutex

	mu      sync.Mutex
	state   State
	current *Handle
	gen     uint64
}

// NewManager creates a manager in the Unloaded state.
//
// Arguments:
//   - backend: The backend that loads models.
//   - opts: Optional configuration.
//
// Returns:
//   - *Manager: The manager.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend: backend,
		resolve: models.Lookup,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Acquire returns the active handle with an added reference. The caller must call Release.
//
// Returns:
//   - *Handle: The active handle.
//   - error: ErrNoModelLoaded when nothing is loaded or the manager was disposed.
func (m *Manager) Acquire() (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, errors.Wrapf(ErrNoModelLoaded, "manager is %s", m.state)
	}
	m.current.refs++
	return m.current, nil
}

// Load loads a model and makes it the active handle. When a handle is already active, Load
// behaves like Swap.
//
// The model is warmed up with one zero-valued inference before it is published. Progress is
// reported as clamped, non-decreasing fractions ending with 1.0 on success.
//
// Arguments:
//   - ctx: Cancels fetching and loading.
//   - id: The model to load.
//   - onProgress: Optional progress callback.
//
// Returns:
//   - error: A *LoadError (errors.Is ErrModelLoad) on failure, ErrManagerDisposed after Dispose.
func (m *Manager) Load(ctx context.Context, id models.ID, onProgress models.ProgressFunc) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	return m.loadOrSwap(ctx, id, onProgress)
}

// Swap replaces the active handle with a newly loaded model.
//
// The old handle stays active and usable while the new model loads. On success the new handle is
// published and the old one is closed once its last in-flight user releases it. On failure the old
// handle remains active. Without an active handle Swap behaves like Load.
//
// Arguments:
//   - ctx: Cancels fetching and loading.
//   - id: The model to load.
//   - onProgress: Optional progress callback.
//
// Returns:
//   - error: A *LoadError on failure.
func (m *Manager) Swap(ctx context.Context, id models.ID, onProgress models.ProgressFunc) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	return m.loadOrSwap(ctx, id, onProgress)
}

func (m *Manager) loadOrSwap(ctx context.Context, id models.ID, onProgress models.ProgressFunc) error {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()

	switch state {
	case StateDisposed:
		return ErrManagerDisposed
	case StateReady:
		return m.swap(ctx, id, onProgress)
	}
	return m.load(ctx, id, onProgress)
}

func (m *Manager) load(ctx context.Context, id models.ID, onProgress models.ProgressFunc) error {
	m.setState(StateLoading)

	progress := monotonic(onProgress)
	h, err := m.open(ctx, id, progress)
	if err != nil {
		m.setState(StateUnloaded)
		m.log.Error("model load failed", zap.String("model", string(id)), zap.Error(err))
		return err
	}

	m.mu.Lock()
	m.current = h
	m.state = StateReady
	m.mu.Unlock()

	progress(1)
	m.log.Info("model ready", zap.String("model", string(id)), zap.Stringer("input", h.shape))
	return nil
}

func (m *Manager) swap(ctx context.Context, id models.ID, onProgress models.ProgressFunc) error {
	m.setState(StateSwapping)
	m.log.Info("swapping model", zap.String("model", string(id)))

	progress := monotonic(onProgress)
	h, err := m.open(ctx, id, progress)
	if err != nil {
		m.setState(StateReady)
		m.log.Error("model swap failed, keeping previous model", zap.String("model", string(id)), zap.Error(err))
		return err
	}

	m.mu.Lock()
	old := m.current
	m.current = h
	m.state = StateReady
	m.mu.Unlock()

	if old != nil {
		// Drops the manager's reference; in-flight users keep the old model open.
		if err := old.unref(); err != nil {
			m.log.Warn("closing previous model failed", zap.String("model", string(old.spec.ID)), zap.Error(err))
		}
	}

	progress(1)
	m.log.Info("model ready", zap.String("model", string(id)), zap.Stringer("input", h.shape))
	return nil
}

// Dispose retires the active handle. Subsequent Acquire calls fail with ErrNoModelLoaded.
//
// Returns:
//   - error: The close error of the model if it was closed by this call.
func (m *Manager) Dispose() error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.mu.Lock()
	old := m.current
	m.current = nil
	m.state = StateDisposed
	m.mu.Unlock()

	if old == nil {
		return nil
	}
	return old.unref()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// open resolves, loads and warms up a model without publishing it.
func (m *Manager) open(ctx context.Context, id models.ID, progress models.ProgressFunc) (*Handle, error) {
	spec, err := m.resolve(id)
	if err != nil {
		return nil, &LoadError{ID: id, Err: err}
	}

	m.log.Info("loading model", zap.String("model", string(id)), zap.String("location", spec.Location))
	model, err := m.backend.Load(ctx, spec, progress)
	if err != nil {
		return nil, &LoadError{ID: id, Err: err}
	}

	shape := model.InputShape()
	if !shape.Valid() {
		_ = model.Close()
		return nil, &LoadError{ID: id, Err: errors.Errorf("invalid input shape %v", shape)}
	}

	start := time.Now()
	if err := m.warmUp(ctx, model, shape); err != nil {
		_ = model.Close()
		return nil, &LoadError{ID: id, Err: errors.Wrap(err, "warm-up")}
	}
	m.log.Debug("model warmed up", zap.String("model", string(id)), zap.Duration("took", time.Since(start)))

	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	return &Handle{
		mgr:     m,
		spec:    spec,
		model:   model,
		shape:   shape.Clone(),
		timeout: m.timeout,
		gen:     gen,
		refs:    1,
	}, nil
}

func (m *Manager) warmUp(ctx context.Context, model Model, shape Shape) error {
	scope := NewScope()
	defer func() {
		if err := scope.Close(); err != nil {
			m.log.Warn("releasing warm-up buffers failed", zap.Error(err))
		}
	}()

	input := scope.Tensor(Zeros(shape))
	out, err := model.Run(ctx, input)
	scope.Tensor(out)
	return err
}

// monotonic wraps fn so it only ever sees clamped, non-decreasing fractions.
func monotonic(fn models.ProgressFunc) models.ProgressFunc {
	if fn == nil {
		return func(float64) {}
	}
	var (
		mu   sync.Mutex
		last float64
	)
	return func(f float64) {
		if f < 0 || math.IsNaN(f) {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		mu.Lock()
		if f < last {
			f = last
		}
		last = f
		mu.Unlock()
		fn(f)
	}
}
