package controller

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/inference"
	"github.com/nvr-ai/live-detect/models"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

const side = 64

// rectModel finds the bright pixels of an HWC input and reports their bounding box as a single
// candidate, in the raw [1, 4+C, N] layout of a YOLO head.
type rectModel struct {
	numClasses int
	score      float32

	// delay is slept on every run; step advances clock on every run.
	delay time.Duration
	clock *clock.Mock
	step  time.Duration
	// malformed lists the run numbers that return an undecodable output.
	malformed map[int32]bool

	mu      sync.Mutex
	entered chan struct{}
	gate    chan struct{}
	tensors []*inference.Tensor

	runs        atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	closed      atomic.Bool
}

func newRectModel(score float32) *rectModel {
	return &rectModel{numClasses: 1, score: score, malformed: map[int32]bool{}}
}

// holdRun makes the given run signal entered and wait for gate before returning.
func (m *rectModel) holdRun() (entered chan struct{}, gate chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entered = make(chan struct{}, 1)
	m.gate = make(chan struct{})
	return m.entered, m.gate
}

func (m *rectModel) InputShape() inference.Shape {
	return inference.Shape{1, side, side, 3}
}

func (m *rectModel) Run(ctx context.Context, input *inference.Tensor) (*inference.Tensor, error) {
	n := m.runs.Inc()
	cur := m.inFlight.Inc()
	defer m.inFlight.Dec()
	for {
		peak := m.maxInFlight.Load()
		if cur <= peak || m.maxInFlight.CompareAndSwap(peak, cur) {
			break
		}
	}

	m.mu.Lock()
	entered, gate := m.entered, m.gate
	m.entered, m.gate = nil, nil
	m.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-gate
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.clock != nil && m.step > 0 {
		m.clock.Add(m.step)
	}

	m.track(input)
	if m.malformed[n] {
		out := inference.Zeros(inference.Shape{1, 3, 2})
		m.track(out)
		return out, nil
	}

	out, err := m.detect(input)
	if err != nil {
		return nil, err
	}
	m.track(out)
	return out, nil
}

func (m *rectModel) detect(input *inference.Tensor) (*inference.Tensor, error) {
	if input.Released() {
		return nil, errors.New("input released before inference")
	}
	x1, y1, x2, y2 := side, side, -1, -1
	for y := 0; y < side; y++ {
		for x := 0; x < side; x++ {
			if input.Data[(y*side+x)*3] > 0.5 {
				x1, y1 = min(x1, x), min(y1, y)
				x2, y2 = max(x2, x+1), max(y2, y+1)
			}
		}
	}
	d := int64(4 + m.numClasses)
	if x2 < 0 {
		return inference.NewTensor(inference.Shape{1, d, 0}, nil)
	}
	w, h := float32(x2-x1), float32(y2-y1)
	data := []float32{float32(x1) + w/2, float32(y1) + h/2, w, h}
	for c := 0; c < m.numClasses; c++ {
		data = append(data, m.score/float32(c+1))
	}
	return inference.NewTensor(inference.Shape{1, d, 1}, data)
}

func (m *rectModel) track(t *inference.Tensor) {
	m.mu.Lock()
	m.tensors = append(m.tensors, t)
	m.mu.Unlock()
}

// unreleased counts the tensors seen or produced by the model that are still live.
func (m *rectModel) unreleased() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tensors {
		if !t.Released() {
			n++
		}
	}
	return n
}

func (m *rectModel) Close() error {
	m.closed.Store(true)
	return nil
}

type rectBackend struct {
	models map[models.ID]*rectModel
}

func (b *rectBackend) Load(ctx context.Context, spec models.Spec, progress models.ProgressFunc) (inference.Model, error) {
	m, ok := b.models[spec.ID]
	if !ok {
		return nil, errors.Errorf("no model %s", spec.ID)
	}
	return m, nil
}

// newManager loads the first id into a manager backed by the given models.
func newManager(ms map[models.ID]*rectModel, load models.ID) (*inference.Manager, error) {
	mgr := inference.NewManager(&rectBackend{models: ms},
		inference.WithResolver(func(id models.ID) (models.Spec, error) {
			m, ok := ms[id]
			if !ok {
				return models.Spec{}, models.ErrUnknownModel
			}
			return models.Spec{ID: id, Family: models.FamilyYOLO, NumClasses: m.numClasses, InputSize: side}, nil
		}),
	)
	if load == "" {
		return mgr, nil
	}
	return mgr, mgr.Load(context.Background(), load, nil)
}

// rectFrame is a 100x50 black frame with a white 20x20 square at (20, 10).
func rectFrame() *images.Frame {
	f := images.NewFrame(100, 50)
	f.Fill(rectBounds, color.White)
	return f
}

var rectBounds = image.Rect(20, 10, 40, 30)

// listSource hands out a fixed list of frames, one per ready signal, then ends the stream.
type listSource struct {
	openErr error
	ready   chan struct{}

	mu     sync.Mutex
	frames []*images.Frame
	seq    uint64
	opened bool
	closed bool
	// endless repeats the last frame instead of ending the stream.
	endless bool
}

func newListSource(frames ...*images.Frame) *listSource {
	ready := make(chan struct{})
	close(ready)
	return &listSource{frames: frames, ready: ready}
}

func (s *listSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	s.opened = true
	return nil
}

func (s *listSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *listSource) Ready() <-chan struct{} {
	return s.ready
}

func (s *listSource) CurrentFrame() (*images.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil, false
	}
	f := *s.frames[0]
	if !s.endless || len(s.frames) > 1 {
		s.frames = s.frames[1:]
	}
	s.seq++
	f.Seq = s.seq
	return &f, true
}

func (s *listSource) state() (opened, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

// idleSource opens successfully and never delivers a frame.
type idleSource struct {
	ready chan struct{}
}

func (s *idleSource) Open(context.Context) error         { return nil }
func (s *idleSource) Close() error                       { return nil }
func (s *idleSource) Ready() <-chan struct{}             { return s.ready }
func (s *idleSource) CurrentFrame() (*images.Frame, bool) { return nil, true }
