package capture

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Options configures a frame source.
type Options struct {
	// Clock paces replayed sources and stamps frames.
	Clock clock.Clock
	// Logger receives source lifecycle events.
	Logger *zap.Logger
	// FPS is the replay rate of file sources, and the pacing of video files.
	FPS float64
	// Loop restarts a finite source after its last frame instead of ending the stream.
	Loop bool
	// Width and Height request a capture resolution from devices that support it.
	Width, Height int
}

// Option modifies Options.
type Option func(*Options)

// WithClock sets the clock used for pacing and timestamps.
func WithClock(c clock.Clock) Option {
	return func(o *Options) { o.Clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithFPS sets the replay rate.
func WithFPS(fps float64) Option {
	return func(o *Options) { o.FPS = fps }
}

// WithLoop makes finite sources repeat.
func WithLoop(loop bool) Option {
	return func(o *Options) { o.Loop = loop }
}

// WithSize requests a capture resolution.
func WithSize(width, height int) Option {
	return func(o *Options) { o.Width, o.Height = width, height }
}

// NewOptions applies opts over the defaults: real clock, no-op logger, 10 fps, no looping.
func NewOptions(opts ...Option) Options {
	o := Options{
		Clock:  clock.New(),
		Logger: zap.NewNop(),
		FPS:    10,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Interval returns the frame period for the configured FPS, 0 when unpaced.
func (o Options) Interval() time.Duration {
	if o.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / o.FPS)
}
