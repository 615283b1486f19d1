package capture

import (
	"context"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/nvr-ai/live-detect/images"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Files replays still images as a stream, one image per frame period.
//
// The first image is published as soon as the source is opened. After the last image the stream
// ends, unless looping is enabled.
type Files struct {
	paths  []string
	frames []*images.Frame
	opts   Options
	slot   *Slot

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFiles creates a source over the given image files.
func NewFiles(paths []string, opts ...Option) *Files {
	return &Files{
		paths: append([]string(nil), paths...),
		opts:  NewOptions(opts...),
		slot:  NewSlot(),
	}
}

// NewFrames creates a replaying source over frames that are already in memory.
func NewFrames(frames []*images.Frame, opts ...Option) *Files {
	return &Files{
		frames: append([]*images.Frame(nil), frames...),
		opts:   NewOptions(opts...),
		slot:   NewSlot(),
	}
}

// Open decodes every image and starts the replay.
//
// Arguments:
//   - ctx: Stops the replay when cancelled.
//
// Returns:
//   - error: ErrCaptureUnsupported if there are no images or one cannot be decoded.
func (f *Files) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done != nil {
		return errors.New("source already opened")
	}
	frames := f.frames
	for _, p := range f.paths {
		img, err := imaging.Open(p, imaging.AutoOrientation(true))
		if err != nil {
			return errors.Wrapf(ErrCaptureUnsupported, "decoding %s: %v", p, err)
		}
		frames = append(frames, images.FromImage(img))
	}
	if len(frames) == 0 {
		return errors.Wrap(ErrCaptureUnsupported, "no images")
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.opts.Logger.Info("image source opened", zap.Int("images", len(frames)), zap.Float64("fps", f.opts.FPS))

	go f.replay(ctx, frames)
	return nil
}

func (f *Files) replay(ctx context.Context, frames []*images.Frame) {
	defer close(f.done)
	defer f.slot.Close()

	publish := func(i int) {
		frame := *frames[i]
		frame.Timestamp = f.opts.Clock.Now()
		f.slot.Publish(&frame)
	}

	interval := f.opts.Interval()
	if interval <= 0 {
		interval = NewOptions().Interval()
	}
	ticker := f.opts.Clock.Ticker(interval)
	defer ticker.Stop()
	publish(0)

	next := 1
	for {
		if next == len(frames) {
			if !f.opts.Loop {
				return
			}
			next = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish(next)
			next++
		}
	}
}

// Close stops the replay and ends the stream.
func (f *Files) Close() error {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	if cancel == nil {
		f.slot.Close()
		return nil
	}
	cancel()
	<-done
	return nil
}

// Ready implements Source.
func (f *Files) Ready() <-chan struct{} {
	return f.slot.Ready()
}

// CurrentFrame implements Source.
func (f *Files) CurrentFrame() (*images.Frame, bool) {
	return f.slot.Current()
}

// Stats implements StatsReporter.
func (f *Files) Stats() Stats {
	return f.slot.Stats()
}
