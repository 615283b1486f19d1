// Package camera - OpenCV backed capture from devices, video files and stream URLs.
package camera

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/nvr-ai/live-detect/capture"
	"github.com/nvr-ai/live-detect/images"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

// Camera reads frames from a gocv.VideoCapture on a background goroutine.
//
// Frames are converted from BGR to interleaved RGB and published into a latest-frame slot, so a
// slow consumer only ever sees the newest frame. The stream ends when the device stops delivering
// frames.
type Camera struct {
	device string
	opts   capture.Options
	slot   *capture.Slot
	log    *zap.Logger

	mu     sync.Mutex
	vc     *gocv.VideoCapture
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a camera source.
//
// Arguments:
//   - device: A device index such as "0", a video file path or a stream URL.
//   - opts: Capture options. FPS paces video files; devices deliver at their own rate.
//
// Returns:
//   - *Camera: The unopened source.
func New(device string, opts ...capture.Option) *Camera {
	o := capture.NewOptions(opts...)
	return &Camera{
		device: device,
		opts:   o,
		slot:   capture.NewSlot(),
		log:    o.Logger.With(zap.String("device", device)),
	}
}

// Open opens the capture device and starts reading.
//
// Returns:
//   - error: capture.ErrCaptureUnsupported if the device cannot be opened.
func (c *Camera) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vc != nil {
		return errors.New("camera already opened")
	}

	var target interface{} = c.device
	index, isIndex := deviceIndex(c.device)
	if isIndex {
		target = index
	}

	vc, err := gocv.OpenVideoCapture(target)
	if err != nil {
		return errors.Wrapf(capture.ErrCaptureUnsupported, "opening %q: %v", c.device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return errors.Wrapf(capture.ErrCaptureUnsupported, "device %q is not available", c.device)
	}
	if c.opts.Width > 0 && c.opts.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(c.opts.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(c.opts.Height))
	}

	ctx, cancel := context.WithCancel(ctx)
	c.vc = vc
	c.cancel = cancel
	c.done = make(chan struct{})
	c.log.Info("capture opened",
		zap.Float64("width", vc.Get(gocv.VideoCaptureFrameWidth)),
		zap.Float64("height", vc.Get(gocv.VideoCaptureFrameHeight)),
		zap.Float64("fps", vc.Get(gocv.VideoCaptureFPS)),
	)

	go c.read(ctx, vc, !isIndex)
	return nil
}

// read publishes frames until the context ends or the device stops delivering.
func (c *Camera) read(ctx context.Context, vc *gocv.VideoCapture, paced bool) {
	defer close(c.done)
	defer c.slot.Close()

	mat := gocv.NewMat()
	defer mat.Close()
	rgb := gocv.NewMat()
	defer rgb.Close()

	var tick <-chan time.Time
	if interval := c.opts.Interval(); paced && interval > 0 {
		ticker := c.opts.Clock.Ticker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if ok := vc.Read(&mat); !ok {
			c.log.Info("capture ended")
			return
		}
		if mat.Empty() {
			continue
		}
		if err := gocv.CvtColor(mat, &rgb, gocv.ColorBGRToRGB); err != nil {
			c.log.Warn("color conversion failed", zap.Error(err))
			continue
		}
		c.slot.Publish(&images.Frame{
			Width:     rgb.Cols(),
			Height:    rgb.Rows(),
			Pix:       rgb.ToBytes(),
			Timestamp: c.opts.Clock.Now(),
		})

		if tick != nil {
			select {
			case <-ctx.Done():
				return
			case <-tick:
			}
		}
	}
}

// Close stops reading and releases the device.
func (c *Camera) Close() error {
	c.mu.Lock()
	vc, cancel, done := c.vc, c.cancel, c.done
	c.vc = nil
	c.mu.Unlock()

	if vc == nil {
		c.slot.Close()
		return nil
	}
	cancel()
	<-done
	return vc.Close()
}

// Ready implements capture.Source.
func (c *Camera) Ready() <-chan struct{} {
	return c.slot.Ready()
}

// CurrentFrame implements capture.Source.
func (c *Camera) CurrentFrame() (*images.Frame, bool) {
	return c.slot.Current()
}

// Stats implements capture.StatsReporter.
func (c *Camera) Stats() capture.Stats {
	return c.slot.Stats()
}

func deviceIndex(device string) (int, bool) {
	i, err := strconv.Atoi(device)
	return i, err == nil && i >= 0
}
