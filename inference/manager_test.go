package inference

import (
	"context"
	"testing"
	"time"

	"github.com/nvr-ai/live-detect/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestManagerLoad(t *testing.T) {
	backend := newFakeBackend()
	backend.steps = []float64{0.2, 0.6, 0.4, 1.7}
	model := backend.add("a", newFakeModel(1))

	m := NewManager(backend, WithResolver(resolveAny))
	assert.Equal(t, StateUnloaded, m.State())

	var fractions []float64
	require.NoError(t, m.Load(context.Background(), "a", func(f float64) { fractions = append(fractions, f) }))

	assert.Equal(t, []float64{0.2, 0.6, 0.6, 1, 1}, fractions)
	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, int32(1), model.runs.Load(), "warm-up runs exactly once")
	assert.Equal(t, int32(1), model.outReleased.Load(), "warm-up output is released")

	h, err := m.Acquire()
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, models.ID("a"), h.Spec().ID)
	assert.Equal(t, Shape{1, 8, 8, 3}, h.InputShape())
}

func TestManagerLoadFailure(t *testing.T) {
	cause := errors.New("truncated artifact")
	backend := newFakeBackend()
	backend.failures["broken"] = cause

	m := NewManager(backend, WithResolver(resolveAny))
	err := m.Load(context.Background(), "broken", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelLoad))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, StateUnloaded, m.State())

	_, err = m.Acquire()
	assert.True(t, errors.Is(err, ErrNoModelLoaded))
}

func TestManagerUnknownModel(t *testing.T) {
	m := NewManager(newFakeBackend())
	err := m.Load(context.Background(), "not-registered", nil)
	assert.True(t, errors.Is(err, ErrModelLoad))
	assert.True(t, errors.Is(err, models.ErrUnknownModel))
}

func TestManagerSwapSafety(t *testing.T) {
	backend := newFakeBackend()
	oldModel := backend.add("old", newFakeModel(1))
	newModel := backend.add("new", newFakeModel(2))

	m := NewManager(backend, WithResolver(resolveAny))
	require.NoError(t, m.Load(context.Background(), "old", nil))

	h, err := m.Acquire()
	require.NoError(t, err)

	started, gate := oldModel.hold()
	done := make(chan float32, 1)
	go func() {
		in := Zeros(h.InputShape())
		defer in.Release()
		out, err := h.Run(context.Background(), in)
		if err != nil {
			done <- -1
			return
		}
		done <- out.Data[0]
		out.Release()
	}()
	<-started

	require.NoError(t, m.Swap(context.Background(), "new", nil))
	assert.Equal(t, StateReady, m.State())
	assert.False(t, oldModel.closed.Load(), "old model must stay open while inference is in flight")

	next, err := m.Acquire()
	require.NoError(t, err)
	assert.Equal(t, models.ID("new"), next.Spec().ID)
	assert.Greater(t, next.Generation(), h.Generation())
	next.Release()

	close(gate)
	assert.Equal(t, float32(1), <-done, "in-flight cycle keeps the old handle's output")
	assert.False(t, oldModel.closed.Load())

	h.Release()
	assert.True(t, oldModel.closed.Load())
	assert.True(t, h.Closed())
	assert.False(t, newModel.closed.Load())
}

func TestManagerSwapFailureKeepsPrevious(t *testing.T) {
	backend := newFakeBackend()
	oldModel := backend.add("old", newFakeModel(1))
	backend.failures["bad"] = errors.New("network down")

	m := NewManager(backend, WithResolver(resolveAny))
	require.NoError(t, m.Load(context.Background(), "old", nil))

	err := m.Swap(context.Background(), "bad", nil)
	assert.True(t, errors.Is(err, ErrModelLoad))
	assert.Equal(t, StateReady, m.State())

	h, err := m.Acquire()
	require.NoError(t, err)
	assert.Equal(t, models.ID("old"), h.Spec().ID)
	h.Release()
	assert.False(t, oldModel.closed.Load())
}

func TestManagerLoadWhileReadySwaps(t *testing.T) {
	backend := newFakeBackend()
	first := backend.add("a", newFakeModel(1))
	backend.add("b", newFakeModel(2))

	m := NewManager(backend, WithResolver(resolveAny))
	require.NoError(t, m.Load(context.Background(), "a", nil))
	require.NoError(t, m.Load(context.Background(), "b", nil))

	assert.True(t, first.closed.Load(), "unused previous model closes on swap")
	h, err := m.Acquire()
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, models.ID("b"), h.Spec().ID)
}

func TestManagerDispose(t *testing.T) {
	backend := newFakeBackend()
	model := backend.add("a", newFakeModel(1))

	m := NewManager(backend, WithResolver(resolveAny))
	require.NoError(t, m.Load(context.Background(), "a", nil))
	require.NoError(t, m.Dispose())

	assert.Equal(t, StateDisposed, m.State())
	assert.True(t, model.closed.Load())

	_, err := m.Acquire()
	assert.True(t, errors.Is(err, ErrNoModelLoaded))
	assert.True(t, errors.Is(m.Load(context.Background(), "a", nil), ErrManagerDisposed))
}

func TestManagerRejectsInvalidShape(t *testing.T) {
	backend := newFakeBackend()
	model := newFakeModel(1)
	model.shape = Shape{1, -1, -1, 3}
	backend.add("dyn", model)

	m := NewManager(backend, WithResolver(resolveAny))
	err := m.Load(context.Background(), "dyn", nil)
	assert.True(t, errors.Is(err, ErrModelLoad))
	assert.True(t, model.closed.Load())
}

func TestHandleRunShapeMismatch(t *testing.T) {
	backend := newFakeBackend()
	model := backend.add("a", newFakeModel(1))

	m := NewManager(backend, WithResolver(resolveAny))
	require.NoError(t, m.Load(context.Background(), "a", nil))
	h, err := m.Acquire()
	require.NoError(t, err)
	defer h.Release()

	in := Zeros(Shape{1, 3, 8, 8})
	defer in.Release()
	_, err = h.Run(context.Background(), in)
	assert.True(t, errors.Is(err, ErrInferenceShapeMismatch))
	assert.Equal(t, int32(1), model.runs.Load(), "mismatched input never reaches the model")
}

func TestHandleRunTimeout(t *testing.T) {
	backend := newFakeBackend()
	model := backend.add("slow", newFakeModel(1))

	m := NewManager(backend, WithResolver(resolveAny), WithInferenceTimeout(10*time.Millisecond))
	require.NoError(t, m.Load(context.Background(), "slow", nil))
	model.delay = 50 * time.Millisecond

	h, err := m.Acquire()
	require.NoError(t, err)
	defer h.Release()

	in := Zeros(h.InputShape())
	defer in.Release()
	out, err := h.Run(context.Background(), in)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, ErrInferenceTimeout))
	assert.Equal(t, model.outputs.Load(), model.outReleased.Load(), "late output is released")
}

func TestHandleRunReleasesOutputOnError(t *testing.T) {
	backend := newFakeBackend()
	model := backend.add("partial", newFakeModel(1))

	m := NewManager(backend, WithResolver(resolveAny))
	require.NoError(t, m.Load(context.Background(), "partial", nil))
	model.fail = errors.New("partial failure")

	h, err := m.Acquire()
	require.NoError(t, err)
	defer h.Release()

	in := Zeros(h.InputShape())
	defer in.Release()
	out, err := h.Run(context.Background(), in)
	assert.Nil(t, out)
	assert.ErrorContains(t, err, "partial failure")
	assert.Equal(t, int32(2), model.outputs.Load())
	assert.Equal(t, model.outputs.Load(), model.outReleased.Load(), "output returned with an error is released")
}

func TestWarmUpFailureReleasesOutput(t *testing.T) {
	backend := newFakeBackend()
	model := backend.add("broken", newFakeModel(1))
	model.fail = errors.New("bad kernel")

	m := NewManager(backend, WithResolver(resolveAny))
	err := m.Load(context.Background(), "broken", nil)
	assert.True(t, errors.Is(err, ErrModelLoad))
	assert.Equal(t, int32(1), model.outReleased.Load())
	assert.True(t, model.closed.Load())
	assert.Equal(t, StateUnloaded, m.State())
}

func TestWarmUpReleaseErrorIsLogged(t *testing.T) {
	backend := newFakeBackend()
	model := backend.add("leaky", newFakeModel(1))
	model.releaseErr = errors.New("free failed")

	core, logs := observer.New(zap.WarnLevel)
	m := NewManager(backend, WithResolver(resolveAny), WithLogger(zap.New(core)))
	require.NoError(t, m.Load(context.Background(), "leaky", nil))

	entries := logs.FilterMessage("releasing warm-up buffers failed").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "free failed")
}
