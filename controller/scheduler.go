// Package controller - The frame scheduling loop that drives detection on a stream.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/nvr-ai/live-detect/capture"
	"github.com/nvr-ai/live-detect/images"
	"github.com/nvr-ai/live-detect/inference"
	"github.com/nvr-ai/live-detect/models"
	"github.com/nvr-ai/live-detect/models/postprocess"
	"github.com/nvr-ai/live-detect/models/preprocess"
	"github.com/nvr-ai/live-detect/profiler"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned by Run while another Run on the same scheduler is active.
var ErrAlreadyRunning = errors.New("scheduler already running")

// Stage names recorded by the scheduler's profiler.
const (
	StagePreprocess = "preprocess"
	StageInference  = "inference"
	StageDecode     = "decode"
)

// Config tunes a scheduler.
type Config struct {
	// Postprocess holds the decode and suppression thresholds.
	Postprocess postprocess.Config `yaml:"detection"`
	// ReportEvery is the number of cycles between frame rate reports.
	ReportEvery int `yaml:"report_every"`
}

// DefaultConfig returns the default decode thresholds and a report every 10 cycles.
func DefaultConfig() Config {
	return Config{
		Postprocess: postprocess.DefaultConfig(),
		ReportEvery: profiler.DefaultWindow,
	}
}

// Result is the output of one successful cycle.
type Result struct {
	// Stream is the id of the scheduler that produced the result.
	Stream string
	// Seq and Captured identify the frame the detections were computed from.
	Seq      uint64
	Captured time.Time
	// Width and Height are the frame dimensions; detection boxes are in this space.
	Width, Height int
	// Model and Generation identify the handle that ran the inference.
	Model      models.ID
	Generation uint64
	Detections []postprocess.Detection
	// Latency is the time from the start of the cycle to publication.
	Latency time.Duration
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	// Cycles is the number of frames taken from the source.
	Cycles uint64
	// Failures is the number of cycles that produced no result.
	Failures uint64
	// Dropped is the number of frames the source superseded before they were taken.
	Dropped uint64
	// FPS is the most recent frame rate report.
	FPS float64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock sets the clock used for latency and frame rate measurement.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithID names the stream. The default is a random UUID.
func WithID(id string) Option {
	return func(s *Scheduler) {
		if id != "" {
			s.id = id
		}
	}
}

// OnResult registers a callback invoked with every published result, on the scheduler goroutine.
func OnResult(fn func(Result)) Option {
	return func(s *Scheduler) { s.onResult = fn }
}

// OnRate registers a callback invoked with every frame rate report.
func OnRate(fn func(fps float64)) Option {
	return func(s *Scheduler) { s.onRate = fn }
}

// Scheduler runs preprocess, inference and decode for one stream, one frame at a time.
//
// Frames are taken from the source only when the previous cycle has finished, so frames that
// arrive during a cycle are superseded by newer ones rather than queued. Every buffer a cycle
// creates is released before the next cycle starts. Failures are contained to their cycle.
type Scheduler struct {
	id       string
	source   capture.Source
	manager  *inference.Manager
	cfg      Config
	clock    clock.Clock
	log      *zap.Logger
	onResult func(Result)
	onRate   func(float64)

	rate *profiler.RateMeter
	prof *profiler.Profiler

	running  atomic.Bool
	stopped  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once

	cycles   atomic.Uint64
	failures atomic.Uint64

	mu     sync.Mutex
	latest *Result
}

// New creates a scheduler.
//
// Arguments:
//   - source: The frame source. Run opens and closes it.
//   - manager: The model manager; may be shared between schedulers.
//   - cfg: Thresholds and reporting.
//   - opts: Optional configuration.
//
// Returns:
//   - *Scheduler: The scheduler, not yet running.
func New(source capture.Source, manager *inference.Manager, cfg Config, opts ...Option) *Scheduler {
	if cfg.ReportEvery <= 0 {
		cfg.ReportEvery = profiler.DefaultWindow
	}
	s := &Scheduler{
		id:      uuid.NewString(),
		source:  source,
		manager: manager,
		cfg:     cfg,
		clock:   clock.New(),
		log:     zap.NewNop(),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("stream", s.id))
	s.rate = profiler.NewRateMeter(cfg.ReportEvery, s.clock)
	s.prof = profiler.New(s.clock, 0)
	return s
}

// ID returns the stream id.
func (s *Scheduler) ID() string {
	return s.id
}

// Running reports whether Run is active.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Run opens the source and processes frames until the stream ends, Stop is called or ctx is done.
//
// An inference call that is already in flight when the loop is stopped runs to completion; the
// loop observes the stop at the next cycle boundary.
//
// Arguments:
//   - ctx: Stops the loop and the source when cancelled.
//
// Returns:
//   - error: nil on a clean stop, the source's open error (e.g. capture.ErrCaptureUnsupported), or
//     ErrAlreadyRunning.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	if err := s.source.Open(ctx); err != nil {
		return errors.Wrap(err, "opening source")
	}
	defer func() {
		if err := s.source.Close(); err != nil {
			s.log.Warn("closing source failed", zap.Error(err))
		}
	}()

	s.rate.Reset()
	s.log.Info("scheduler started")

	for {
		if s.stopped.Load() {
			s.log.Info("scheduler stopped")
			return nil
		}

		select {
		case <-ctx.Done():
			s.log.Info("scheduler cancelled", zap.Error(ctx.Err()))
			return nil
		case <-s.stopCh:
			continue
		case <-s.source.Ready():
		}

		frame, active := s.source.CurrentFrame()
		if !active {
			s.log.Info("stream ended", zap.Uint64("cycles", s.cycles.Load()))
			return nil
		}
		if frame == nil {
			continue
		}
		s.cycle(ctx, frame)
	}
}

// Stop makes Run return at the next cycle boundary. A stopped scheduler cannot be restarted.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

// Latest returns the most recent successful result.
func (s *Scheduler) Latest() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Result{}, false
	}
	return *s.latest, true
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Cycles:   s.cycles.Load(),
		Failures: s.failures.Load(),
		FPS:      s.rate.Last(),
	}
	if r, ok := s.source.(capture.StatsReporter); ok {
		st.Dropped = r.Stats().Dropped
	}
	return st
}

// Profiler returns the per-stage timings of this scheduler.
func (s *Scheduler) Profiler() *profiler.Profiler {
	return s.prof
}

func (s *Scheduler) cycle(ctx context.Context, frame *images.Frame) {
	start := s.clock.Now()
	s.cycles.Inc()

	res, err := s.process(ctx, frame)
	if err != nil {
		s.failures.Inc()
		s.logFailure(frame, err)
	} else {
		res.Latency = s.clock.Since(start)
		s.publish(res)
	}

	if fps, ok := s.rate.Tick(); ok {
		s.log.Info("frame rate", append([]zap.Field{
			zap.Float64("fps", fps),
			zap.Uint64("cycles", s.cycles.Load()),
			zap.Uint64("failures", s.failures.Load()),
		}, s.prof.Fields()...)...)
		if s.onRate != nil {
			s.onRate(fps)
		}
	}
}

// process runs one frame through the pipeline. Every tensor it creates is released before it
// returns, and the handle is released after them.
func (s *Scheduler) process(ctx context.Context, frame *images.Frame) (Result, error) {
	handle, err := s.manager.Acquire()
	if err != nil {
		return Result{}, err
	}
	defer handle.Release()

	scope := inference.NewScope()
	defer func() {
		if err := scope.Close(); err != nil {
			s.log.Warn("releasing cycle buffers failed", zap.Error(err))
		}
	}()

	width, height, order, err := preprocess.ForShape(handle.InputShape())
	if err != nil {
		return Result{}, err
	}

	done := s.prof.StartOperation(StagePreprocess)
	input, lb, err := preprocess.New(order).Prepare(frame, width, height)
	done()
	if err != nil {
		return Result{}, err
	}
	scope.Track(input)

	done = s.prof.StartOperation(StageInference)
	raw, err := handle.Run(context.WithoutCancel(ctx), input)
	done()
	if err != nil {
		return Result{}, err
	}
	scope.Track(raw)

	spec := handle.Spec()
	done = s.prof.StartOperation(StageDecode)
	detections, err := postprocess.Process(raw, spec.NumClasses, lb, s.cfg.Postprocess)
	done()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Stream:     s.id,
		Seq:        frame.Seq,
		Captured:   frame.Timestamp,
		Width:      frame.Width,
		Height:     frame.Height,
		Model:      spec.ID,
		Generation: handle.Generation(),
		Detections: detections,
	}, nil
}

func (s *Scheduler) publish(res Result) {
	s.mu.Lock()
	s.latest = &res
	s.mu.Unlock()

	s.log.Debug("detections",
		zap.Uint64("seq", res.Seq),
		zap.Int("count", len(res.Detections)),
		zap.Duration("latency", res.Latency),
	)
	if s.onResult != nil {
		s.onResult(res)
	}
}

func (s *Scheduler) logFailure(frame *images.Frame, err error) {
	fields := []zap.Field{zap.Uint64("seq", frame.Seq), zap.Error(err)}
	switch {
	case errors.Is(err, inference.ErrInferenceShapeMismatch):
		s.log.Error("input does not match the loaded model", fields...)
	case errors.Is(err, inference.ErrNoModelLoaded):
		s.log.Debug("no model loaded, skipping frame", fields...)
	default:
		s.log.Warn("frame skipped", fields...)
	}
}
