package inference

import (
	"context"
	"sync"
	"time"

	"github.com/nvr-ai/live-detect/models"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// fakeModel echoes a tag value and counts its lifecycle events.
type fakeModel struct {
	shape Shape
	tag   float32
	delay time.Duration
	// fail is returned together with the output when set.
	fail error
	// releaseErr is returned when an output is released.
	releaseErr error

	mu      sync.Mutex
	started chan struct{}
	gate    chan struct{}

	runs        atomic.Int32
	outputs     atomic.Int32
	outReleased atomic.Int32
	closed      atomic.Bool
}

func newFakeModel(tag float32) *fakeModel {
	return &fakeModel{shape: Shape{1, 8, 8, 3}, tag: tag}
}

// hold makes the next Run calls signal started and wait for gate.
func (f *fakeModel) hold() (started chan struct{}, gate chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = make(chan struct{}, 1)
	f.gate = make(chan struct{})
	return f.started, f.gate
}

func (f *fakeModel) InputShape() Shape { return f.shape }

func (f *fakeModel) Run(ctx context.Context, input *Tensor) (*Tensor, error) {
	f.runs.Inc()
	f.mu.Lock()
	started, gate := f.started, f.gate
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
		<-gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.outputs.Inc()
	return WrapTensor(Shape{1}, []float32{f.tag}, func() error {
		f.outReleased.Inc()
		return f.releaseErr
	}), f.fail
}

func (f *fakeModel) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeBackend struct {
	mu       sync.Mutex
	models   map[models.ID]*fakeModel
	failures map[models.ID]error
	steps    []float64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		models:   map[models.ID]*fakeModel{},
		failures: map[models.ID]error{},
	}
}

func (b *fakeBackend) add(id models.ID, m *fakeModel) *fakeModel {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.models[id] = m
	return m
}

func (b *fakeBackend) Load(ctx context.Context, spec models.Spec, progress models.ProgressFunc) (Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.steps {
		progress(s)
	}
	if err := b.failures[spec.ID]; err != nil {
		return nil, err
	}
	m, ok := b.models[spec.ID]
	if !ok {
		return nil, errors.Errorf("no artifact for %s", spec.ID)
	}
	return m, nil
}

func resolveAny(id models.ID) (models.Spec, error) {
	return models.Spec{ID: id, Family: models.FamilyYOLO, NumClasses: 80, InputSize: 8}, nil
}
